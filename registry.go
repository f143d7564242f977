package qtbridge

import (
	"reflect"
	"sync"
)

// objectRegistry maps live backend objects to their bridge-side counterpart.
// Identity is the key: the same pointer always resolves to the same entry,
// and distinct objects never collide regardless of value equality.
type objectRegistry struct {
	entries map[interface{}]interface{}
}

func newObjectRegistry() *objectRegistry {
	return &objectRegistry{entries: make(map[interface{}]interface{})}
}

// register binds obj to v. Re-registering the same binding is a no-op;
// binding obj to something else is an error.
func (r *objectRegistry) register(obj, v interface{}) error {
	if existing, ok := r.entries[obj]; ok {
		if existing == v {
			return nil
		}
		return internalErrorf("register", "object of type %T is already registered", obj)
	}
	r.entries[obj] = v
	return nil
}

func (r *objectRegistry) find(obj interface{}) interface{} {
	if obj == nil {
		return nil
	}
	return r.entries[obj]
}

func (r *objectRegistry) unregister(obj interface{}) {
	delete(r.entries, obj)
}

func (r *objectRegistry) count() int {
	return len(r.entries)
}

// instantiableTypes records every struct type registered for frontend
// instantiation. The introspector consults it to distinguish live list
// properties from plain marshaled slices, so element types must be
// registered before any type that holds a list of them.
var (
	instantiableMu    sync.Mutex
	instantiableTypes = make(map[reflect.Type]bool)
)

func noteInstantiableType(t reflect.Type) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	instantiableMu.Lock()
	instantiableTypes[t] = true
	instantiableMu.Unlock()
}

func isInstantiableType(t reflect.Type) bool {
	instantiableMu.Lock()
	defer instantiableMu.Unlock()
	return instantiableTypes[t]
}
