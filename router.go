package qtbridge

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
)

// MetaCallOp selects which member table a meta-call indexes into.
type MetaCallOp int

const (
	ReadProperty MetaCallOp = iota
	WriteProperty
	InvokeMethod
)

func (op MetaCallOp) String() string {
	switch op {
	case ReadProperty:
		return "readProperty"
	case WriteProperty:
		return "writeProperty"
	case InvokeMethod:
		return "invokeMethod"
	}
	return "metaCall"
}

// MetaCall is the single dispatch entry for member access by index. The
// boolean reports whether the call was handled; failures are logged with a
// severity matching their kind and never propagate as panics.
func (m *Model) MetaCall(op MetaCallOp, id int, args []interface{}) (interface{}, bool) {
	var result interface{}
	var err error

	switch op {
	case ReadProperty:
		result, err = m.ReadProperty(id)
	case WriteProperty:
		var value interface{}
		if len(args) > 0 {
			value = args[0]
		}
		err = m.WriteProperty(id, value)
	case InvokeMethod:
		result, err = m.Invoke(id, args)
	default:
		err = callErrorf(ErrBadValue, "metaCall", "unknown operation %d", int(op))
	}

	if err != nil {
		logCallError(fmt.Sprintf("%s %s[%d]", op, m.desc.Name, id), err)
		return nil, false
	}
	return result, true
}

// ReadProperty resolves a property by index. Registered objects come back
// as their adapter so the frontend receives an opaque object reference;
// slices of instantiable elements come back as a live list handle; anything
// else marshals by value.
func (m *Model) ReadProperty(id int) (interface{}, error) {
	if m.desc == nil {
		return nil, internalErrorf("readProperty", "object has no finalized description")
	}
	if id < 0 || id >= len(m.desc.Properties) {
		return nil, callErrorf(ErrMissingMember, "readProperty", "no property %d on %s", id, m.desc.Name)
	}
	prop := &m.desc.Properties[id]

	if prop.Type == tagList {
		return m.listProperty(id), nil
	}

	field, err := m.propertyField(prop)
	if err != nil {
		return nil, err
	}
	raw := field.Interface()

	if m.c != nil {
		if adapter := m.c.adapterFor(raw); adapter != nil {
			return adapter, nil
		}
	}
	return toVariant(raw), nil
}

// WriteProperty assigns a property by index and raises its change
// notification. Object references resolve to the registered backend object
// before assignment.
func (m *Model) WriteProperty(id int, value interface{}) error {
	if m.desc == nil {
		return internalErrorf("writeProperty", "object has no finalized description")
	}
	if id < 0 || id >= len(m.desc.Properties) {
		return callErrorf(ErrMissingMember, "writeProperty", "no property %d on %s", id, m.desc.Name)
	}
	prop := &m.desc.Properties[id]
	if prop.Type == tagList {
		return callErrorf(ErrBadType, "writeProperty", "property '%s' is a live list and cannot be assigned", prop.Name)
	}

	field, err := m.propertyField(prop)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return internalErrorf("writeProperty", "property '%s' of %s is not settable", prop.Name, m.desc.Name)
	}

	converted, err := convertArg(m.c, unwrapDynamic(value), field.Type())
	if err != nil {
		return callErrorf(ErrBadType, "writeProperty", "property '%s': %s", prop.Name, err)
	}
	field.Set(converted)

	m.EmitPropertyChanged(id)
	return nil
}

// WritePropertyNamed is the by-name convenience over WriteProperty, used
// when applying initial property assignments from the declarative scene.
func (m *Model) WritePropertyNamed(name string, value interface{}) error {
	id := m.desc.PropertyIndex(name)
	if id < 0 {
		return callErrorf(ErrMissingMember, "writeProperty", "no property '%s' on %s", name, m.desc.Name)
	}
	return m.WriteProperty(id, value)
}

// Invoke calls a method by index. Bracketed methods run inside their
// announcement pair; plain methods fetch live from the backend so the
// freshest receiver state applies. The primary return value marshals like a
// property read; a trailing error return aborts the call instead.
func (m *Model) Invoke(id int, args []interface{}) (interface{}, error) {
	if m.desc == nil {
		return nil, internalErrorf("invoke", "object has no finalized description")
	}
	if id < 0 || id >= len(m.desc.Methods) {
		return nil, callErrorf(ErrMissingMember, "invoke", "no method %d on %s", id, m.desc.Name)
	}
	entry := &m.desc.Methods[id]

	var raw interface{}
	var err error
	if entry.bracket != nil {
		raw, err = entry.bracket.call(m.c, args)
	} else {
		raw, err = m.invokePlain(entry, args)
	}
	if err != nil {
		return nil, err
	}
	if entry.Return == tagVoid {
		return nil, nil
	}
	return m.wireResult(raw), nil
}

// InvokeNamed resolves the method index for a wire-protocol invocation.
func (m *Model) InvokeNamed(name string, args []interface{}) (interface{}, error) {
	id := m.desc.MethodIndex(name)
	if id < 0 {
		return nil, callErrorf(ErrMissingMember, "invoke", "no method '%s' on %s", name, m.desc.Name)
	}
	return m.Invoke(id, args)
}

func (m *Model) invokePlain(entry *methodEntry, args []interface{}) (interface{}, error) {
	method := m.backendValue.MethodByName(entry.goName)
	if !method.IsValid() {
		return nil, callErrorf(ErrMissingMember, "invoke", "%s has no method %s", m.desc.Name, entry.goName)
	}
	mt := method.Type()
	if len(args) != mt.NumIn() {
		return nil, callErrorf(ErrBadValue, entry.Name, "wrong number of arguments: %d given, %d expected", len(args), mt.NumIn())
	}

	callArgs := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, err := convertArg(m.c, arg, mt.In(i))
		if err != nil {
			return nil, callErrorf(ErrBadType, entry.Name, "argument %d: %s", i, err)
		}
		callArgs[i] = v
	}

	out, err := safeCall(method, callArgs)
	if err != nil {
		return nil, err
	}
	return firstResult(out)
}

// wireResult marshals a call result for the frontend, resolving registered
// objects to their adapters first.
func (m *Model) wireResult(raw interface{}) interface{} {
	if raw == nil {
		return nil
	}
	if m.c != nil {
		if adapter := m.c.adapterFor(raw); adapter != nil {
			return adapter
		}
	}
	return toVariant(raw)
}

func (m *Model) propertyField(prop *propertyEntry) (reflect.Value, error) {
	object := m.backendValue
	for object.Kind() == reflect.Ptr {
		if object.IsNil() {
			return reflect.Value{}, internalErrorf("property", "backend object is nil")
		}
		object = object.Elem()
	}
	if object.Kind() != reflect.Struct {
		return reflect.Value{}, internalErrorf("property", "backend object is not a struct")
	}
	// A nil embedded pointer along the promotion path would make
	// FieldByIndex panic; FieldByIndexErr reports it instead.
	field, err := object.FieldByIndexErr(prop.fieldIndex)
	if err != nil {
		return reflect.Value{}, callErrorf(ErrBadValue, "property", "property '%s' of %s: %s", prop.Name, m.desc.Name, err)
	}
	return field, nil
}

var (
	errorType           = reflect.TypeOf((*error)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// convertArg coerces one wire argument to the target parameter type. Object
// references and in-process adapters resolve to the backend object they
// stand for; strings can address any TextUnmarshaler target; numeric types
// convert freely to cover the wire format's single number width.
func convertArg(c *Connection, arg interface{}, target reflect.Type) (reflect.Value, error) {
	arg = unwrapDynamic(arg)

	if c != nil {
		if ident := objectRefIdentifier(arg); ident != "" {
			obj := c.objectByIdentifier(ident)
			if obj == nil {
				return reflect.Value{}, fmt.Errorf("unknown object '%s'", ident)
			}
			arg = obj.backend
		}
	}
	if adapter, ok := arg.(*Model); ok {
		arg = adapter.backend
	}

	if arg == nil {
		return reflect.Zero(target), nil
	}

	in := reflect.ValueOf(arg)
	if in.Type() == target {
		return in, nil
	}
	if in.Type().AssignableTo(target) {
		return in.Convert(target), nil
	}

	if str, ok := arg.(string); ok && reflect.PtrTo(target).Implements(textUnmarshalerType) {
		out := reflect.New(target)
		um := out.Interface().(encoding.TextUnmarshaler)
		if err := um.UnmarshalText([]byte(str)); err != nil {
			return reflect.Value{}, err
		}
		return out.Elem(), nil
	}

	if in.Type().ConvertibleTo(target) && convertsSafely(in.Type(), target) {
		return in.Convert(target), nil
	}

	// Structured arguments arrive as generic containers; a JSON round trip
	// lands them in typed slices, maps and structs.
	switch in.Kind() {
	case reflect.Slice, reflect.Map:
		encoded, err := json.Marshal(arg)
		if err != nil {
			break
		}
		out := reflect.New(target)
		if err := json.Unmarshal(encoded, out.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot use %T as %s: %s", arg, target, err)
		}
		return out.Elem(), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, target)
}

// convertsSafely limits free conversion to number-to-number and
// string-alias cases; string-to-number and similar surprises are refused.
func convertsSafely(from, to reflect.Type) bool {
	return numericKind(from.Kind()) && numericKind(to.Kind()) ||
		from.Kind() == reflect.String && to.Kind() == reflect.String
}

func numericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// safeCall invokes fn, converting a panic in backend code to an error so it
// never crosses the scene boundary.
func safeCall(fn reflect.Value, args []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in backend call: %v", r)
		}
	}()
	return fn.Call(args), nil
}

// firstResult splits a call's return values into the primary result and a
// possible error. The first non-error value wins; a non-nil error return
// overrides it.
func firstResult(out []reflect.Value) (interface{}, error) {
	var result interface{}
	for _, v := range out {
		if v.Type() == errorType {
			if !v.IsNil() {
				return nil, v.Interface().(error)
			}
			continue
		}
		if result == nil {
			result = v.Interface()
		}
	}
	return result, nil
}
