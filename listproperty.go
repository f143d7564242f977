package qtbridge

import (
	"encoding/json"
	"reflect"
)

// ListProperty is a live handle over a slice field whose elements are
// instantiable bridge objects. It carries no snapshot: every operation
// reads or rewrites the field in place, so backend mutations made outside
// the handle are always visible through it.
type ListProperty struct {
	m    *Model
	prop int
	name string
}

func (m *Model) listProperty(id int) *ListProperty {
	return &ListProperty{m: m, prop: id, name: m.desc.Properties[id].Name}
}

func (p *ListProperty) slice() (reflect.Value, error) {
	field, err := p.m.propertyField(&p.m.desc.Properties[p.prop])
	if err != nil {
		return reflect.Value{}, err
	}
	if field.Kind() != reflect.Slice {
		return reflect.Value{}, internalErrorf("list", "property '%s' of %s is not a slice", p.name, p.m.desc.Name)
	}
	return field, nil
}

// Append adds an element to the end of the list. Only objects of the list's
// registered element type are accepted; the element may arrive as an
// adapter, a wire reference or the backend object itself.
func (p *ListProperty) Append(item interface{}) error {
	field, err := p.slice()
	if err != nil {
		return err
	}

	backend := p.resolveBackend(item)
	if backend == nil {
		return callErrorf(ErrBadType, "append", "list '%s' accepts registered objects, got %T", p.name, item)
	}
	elem := reflect.ValueOf(backend)
	if !elem.Type().AssignableTo(field.Type().Elem()) {
		return callErrorf(ErrBadType, "append", "list '%s' holds %s, got %s", p.name, field.Type().Elem(), elem.Type())
	}

	field.Set(reflect.Append(field, elem))
	p.m.EmitPropertyChanged(p.prop)
	return nil
}

// Count reports the live length. A broken field reads as empty.
func (p *ListProperty) Count() int {
	field, err := p.slice()
	if err != nil {
		logCallError("count", err)
		return 0
	}
	return field.Len()
}

// At resolves the element at index to its adapter. Out-of-range indexes and
// elements that were never registered resolve to nothing.
func (p *ListProperty) At(index int) *Model {
	field, err := p.slice()
	if err != nil {
		logCallError("at", err)
		return nil
	}
	if index < 0 || index >= field.Len() {
		return nil
	}
	elem := field.Index(index)
	for elem.Kind() == reflect.Interface {
		if elem.IsNil() {
			return nil
		}
		elem = elem.Elem()
	}
	if p.m.c == nil {
		return nil
	}
	return p.m.c.adapterFor(elem.Interface())
}

// Clear empties the list in place.
func (p *ListProperty) Clear() error {
	field, err := p.slice()
	if err != nil {
		return err
	}
	field.Set(field.Slice(0, 0))
	p.m.EmitPropertyChanged(p.prop)
	return nil
}

func (p *ListProperty) resolveBackend(item interface{}) interface{} {
	switch v := item.(type) {
	case nil:
		return nil
	case *Model:
		return v.backend
	}
	if p.m.c != nil {
		if ident := objectRefIdentifier(item); ident != "" {
			if obj := p.m.c.objectByIdentifier(ident); obj != nil {
				return obj.backend
			}
			return nil
		}
		if p.m.c.adapterFor(item) != nil {
			return item
		}
	}
	return nil
}

// MarshalJSON encodes the list as its element references in order.
func (p *ListProperty) MarshalJSON() ([]byte, error) {
	refs := make([]interface{}, 0, p.Count())
	for i := 0; i < p.Count(); i++ {
		if elem := p.At(i); elem != nil {
			refs = append(refs, elem)
		}
	}
	return json.Marshal(map[string]interface{}{
		wireTag:    "list",
		"elements": refs,
	})
}
