package qtbridge

import (
	"fmt"
	"reflect"
)

// Wire tag carried by object references and boxed dynamic values exchanged
// with the frontend.
const wireTag = "_qtbridge_"

// toVariant converts a backend value to the generic form shared with the
// frontend. Integers narrow to 32 bits without an overflow check; this
// matches the frontend protocol's integer width.
func toVariant(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	return variantValue(reflect.ValueOf(v))
}

func variantValue(v reflect.Value) interface{} {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		return v.String()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int32(v.Int())

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int32(v.Uint())

	case reflect.Float32, reflect.Float64:
		return v.Float()

	case reflect.Bool:
		return v.Bool()

	case reflect.Slice, reflect.Array:
		list := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			list[i] = variantValue(v.Index(i))
		}
		return list

	case reflect.Map:
		m := make(map[string]interface{}, v.Len())
		for _, key := range v.MapKeys() {
			m[fmt.Sprint(key.Interface())] = variantValue(v.MapIndex(key))
		}
		return m

	default:
		return fmt.Sprint(v.Interface())
	}
}

// fromVariant is the inverse of toVariant for the primitive forms. Lists and
// maps convert element-wise; anything already in generic form passes through.
func fromVariant(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string, int32, float64, bool:
		return val
	case []interface{}:
		list := make([]interface{}, len(val))
		for i, e := range val {
			list[i] = fromVariant(e)
		}
		return list
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, e := range val {
			m[k] = fromVariant(e)
		}
		return m
	default:
		return val
	}
}

// cellValue converts one model cell to its generic form: strings, integers,
// floats, booleans and nil pass through; anything else renders as a string.
func cellValue(v reflect.Value) interface{} {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int32(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int32(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Bool:
		return v.Bool()
	case reflect.Invalid:
		return nil
	default:
		return fmt.Sprint(v.Interface())
	}
}

// unwrapDynamic unboxes a dynamic value wrapper sent by the frontend
// runtime. Writes and invokes may carry either plain generic values or a
// boxed form tagged "value".
func unwrapDynamic(v interface{}) interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		if tag, _ := m[wireTag].(string); tag == "value" {
			return fromVariant(m["value"])
		}
	}
	return v
}

// objectRefIdentifier returns the identifier carried by an opaque object
// reference, or "" if v is not one.
func objectRefIdentifier(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	if tag, _ := m[wireTag].(string); tag != "object" {
		return ""
	}
	id, _ := m["identifier"].(string)
	return id
}
