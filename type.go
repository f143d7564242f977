package qtbridge

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
)

// The Data method is the row source for view-model classification and is
// never exposed as a callable. SetItem is the per-row write-back target; it
// stays invocable like any other method.
const (
	dataMethodName    = "Data"
	setItemMethodName = "SetItem"
)

// Lifecycle hooks consumed by the bridge itself rather than the frontend.
var methodBlacklist = map[string]bool{
	dataMethodName:      true,
	"InitObject":        true,
	"ClassBegin":        true,
	"ComponentComplete": true,
	"MarshalJSON":       true,
	"String":            true,
}

// describeType walks t and builds a description of its frontend-visible
// surface: exported fields become properties, exported methods and
// bracket-wrapped methods become callables, and func fields become signals.
//
// Member names translate to lowerCamel. A json tag overrides the translated
// name; a `qtbridge:"-"` or `json:"-"` tag hides the member entirely.
func describeType(t reflect.Type) (*descriptionBuilder, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, configError("describe",
			fmt.Sprintf("type %s is not a struct", t.String()),
			"only struct types and pointers to them can be exposed")
	}

	b := newDescriptionBuilder(t.Name())
	if err := describeFields(t, b); err != nil {
		return nil, err
	}
	if err := describeMethods(t, b); err != nil {
		return nil, err
	}
	return b, nil
}

// describeFields scans fields breadth-first, descending into anonymous
// structs after the outer type's own fields.
func describeFields(t reflect.Type, b *descriptionBuilder) error {
	type pending struct {
		t     reflect.Type
		index []int
	}
	queue := []pending{{t, nil}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for i := 0; i < cur.t.NumField(); i++ {
			field := cur.t.Field(i)
			index := append(append([]int(nil), cur.index...), i)

			if field.Anonymous {
				ft := field.Type
				for ft.Kind() == reflect.Ptr {
					ft = ft.Elem()
				}
				if ft.Kind() == reflect.Struct {
					queue = append(queue, pending{ft, index})
				}
				continue
			}
			if shouldIgnoreField(field) {
				continue
			}

			if field.Type.Kind() == reflect.Func {
				name := memberName(field)
				params := signalParams(field)
				if _, err := b.addSignal(name, params, index); err != nil {
					logWarn("signal field '%s' of %s ignored: %s", field.Name, t.Name(), err)
				}
				continue
			}

			b.addProperty(memberName(field), propertyTypeTag(field.Type), index)
		}
	}
	return nil
}

// describeMethods adds exported methods of *t and any bracket-wrapped
// methods registered for t. A bracket left without a wrapped function is a
// hard error; registration cannot continue past it.
func describeMethods(t reflect.Type, b *descriptionBuilder) error {
	brackets := bracketsFor(t)
	ptr := reflect.PtrTo(t)

	for i := 0; i < ptr.NumMethod(); i++ {
		method := ptr.Method(i)
		if methodBlacklist[method.Name] {
			continue
		}

		name := strcase.ToLowerCamel(method.Name)
		br := brackets[method.Name]
		if br != nil {
			if err := br.validate(); err != nil {
				return err
			}
			b.addMethod(name, bracketParams(br), methodReturnTag(t, method.Name, method.Type), method.Name, br)
			continue
		}

		// Receiver is In(0) on a method from the type.
		params := make([]string, 0, method.Type.NumIn()-1)
		for p := 1; p < method.Type.NumIn(); p++ {
			params = append(params, tagVar)
		}
		b.addMethod(name, params, methodReturnTag(t, method.Name, method.Type), method.Name, nil)
	}

	// Brackets may wrap methods that reflection cannot enumerate, such as
	// unexported ones; they are reachable through the wrapped function.
	// Sorted so the description comes out the same on every run.
	leftover := make([]string, 0, len(brackets))
	for goName := range brackets {
		if _, seen := ptr.MethodByName(goName); seen && goName != "" {
			continue
		}
		leftover = append(leftover, goName)
	}
	sort.Strings(leftover)
	for _, goName := range leftover {
		br := brackets[goName]
		if err := br.validate(); err != nil {
			return err
		}
		b.addMethod(strcase.ToLowerCamel(goName), bracketParams(br), methodReturnTag(t, goName, br.fn.Type()), goName, br)
	}
	return nil
}

func bracketParams(br *Bracket) []string {
	params := make([]string, len(br.paramNames))
	for i := range params {
		params[i] = tagVar
	}
	return params
}

// methodReturnTag classifies a method's primary return value. Error returns
// are carried out of band and do not count.
func methodReturnTag(t reflect.Type, goName string, ft reflect.Type) string {
	errType := reflect.TypeOf((*error)(nil)).Elem()
	for i := 0; i < ft.NumOut(); i++ {
		out := ft.Out(i)
		if out == errType {
			continue
		}
		switch out.Kind() {
		case reflect.Slice, reflect.Array:
			return tagArray
		case reflect.Map:
			return tagMap
		default:
			return tagVar
		}
	}
	logWarn("method '%s' of %s returns no value; invocations from the frontend will produce none", goName, t.Name())
	return tagVoid
}

// propertyTypeTag maps a field type to its marshaled tag. Slices of
// instantiable element types surface as live list properties; other slices
// and arrays marshal by value.
func propertyTypeTag(ft reflect.Type) string {
	for ft.Kind() == reflect.Ptr {
		ft = ft.Elem()
	}
	switch ft.Kind() {
	case reflect.Slice, reflect.Array:
		elem := ft.Elem()
		for elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if isInstantiableType(elem) {
			return tagList
		}
		return tagArray
	case reflect.Map:
		return tagMap
	default:
		return tagVar
	}
}

func shouldIgnoreField(field reflect.StructField) bool {
	if field.PkgPath != "" {
		return true
	}
	if tag := field.Tag.Get("qtbridge"); tag == "-" {
		return true
	}
	if field.Type.Kind() != reflect.Func {
		if tag := strings.Split(field.Tag.Get("json"), ",")[0]; tag == "-" {
			return true
		}
	}
	return false
}

// memberName translates a Go field name for the frontend. A json tag name
// wins over the lowerCamel translation.
func memberName(field reflect.StructField) string {
	if field.Type.Kind() != reflect.Func {
		if tag := strings.Split(field.Tag.Get("json"), ",")[0]; tag != "" && tag != "-" {
			return tag
		}
	}
	return strcase.ToLowerCamel(field.Name)
}

// signalParams reads declared parameter names from the field tag, pairing
// each with the marshaled tag of the func parameter at that position.
// Reflection does not record parameter names, so the tag is the only source.
func signalParams(field reflect.StructField) []string {
	names := strings.Split(field.Tag.Get("qtbridge"), ",")
	ft := field.Type
	params := make([]string, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		name := fmt.Sprintf("arg%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		params = append(params, propertyTypeTag(ft.In(i))+" "+name)
	}
	return params
}
