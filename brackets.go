package qtbridge

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

type bracketKind int

const (
	bracketInsert bracketKind = iota
	bracketRemove
	bracketMove
	bracketEdit
	bracketReset
	bracketComplete
)

func (k bracketKind) String() string {
	switch k {
	case bracketInsert:
		return "insert"
	case bracketRemove:
		return "remove"
	case bracketMove:
		return "move"
	case bracketEdit:
		return "edit"
	case bracketReset:
		return "reset"
	case bracketComplete:
		return "complete"
	}
	return "unknown"
}

// A Bracket wraps a mutating method so the bridge can announce the
// structural change to attached views before the method runs and settle it
// afterwards, whether the method returns or panics.
//
// Brackets are declared at package level, next to the type they wrap:
//
//	var _ = qtbridge.Insert((*TaskList).AddTask, "name")
//
// The method expression names the wrapped method and its receiver type;
// parameter names are declared explicitly because reflection does not
// record them. A bracket stays unbound until its receiver type or instance
// is registered with a Connection.
//
// A bracket holds one bound receiver at a time. When several instances of
// the same type are live, registering or instantiating a new one rebinds
// every bracket of that type to it, and bracketed invokes on the older
// adapters act on the newest backend.
type Bracket struct {
	kind       bracketKind
	methodName string
	fn         reflect.Value
	paramNames []string
	receiver   reflect.Type

	mu      sync.Mutex
	backend interface{}

	err error
}

var (
	bracketMu       sync.Mutex
	bracketRegistry = make(map[reflect.Type]map[string]*Bracket)
)

// Insert announces a row insertion around the wrapped method. When the
// declared parameter names do not include "index", or the caller omits it,
// the insertion lands after the current last row.
func Insert(method interface{}, paramNames ...string) *Bracket {
	return newBracket(bracketInsert, method, paramNames, nil)
}

// Remove announces a row removal. The wrapped method must declare a
// parameter named "index".
func Remove(method interface{}, paramNames ...string) *Bracket {
	return newBracket(bracketRemove, method, paramNames, []string{"index"})
}

// Move announces a row move. The wrapped method must declare parameters
// named "fromIndex" and "toIndex".
func Move(method interface{}, paramNames ...string) *Bracket {
	return newBracket(bracketMove, method, paramNames, []string{"fromIndex", "toIndex"})
}

// Edit marks a method as an in-place row edit. No announcement is made
// around the call; the method reports its own change through SetItem or a
// data-changed notification.
func Edit(method interface{}, paramNames ...string) *Bracket {
	return newBracket(bracketEdit, method, paramNames, nil)
}

// Reset announces a full model reset around the wrapped method. Role
// discovery reruns afterwards if the model had none.
func Reset(method interface{}, paramNames ...string) *Bracket {
	return newBracket(bracketReset, method, paramNames, nil)
}

// Complete defers the wrapped method until the declarative scene finishes
// constructing the object and assigning its initial properties.
func Complete(method interface{}, paramNames ...string) *Bracket {
	return newBracket(bracketComplete, method, paramNames, nil)
}

func newBracket(kind bracketKind, method interface{}, paramNames, required []string) *Bracket {
	fn := reflect.ValueOf(method)
	if method == nil || fn.Kind() != reflect.Func {
		panic(fmt.Sprintf("qtbridge: %s bracket requires a method expression, got %T", kind, method))
	}
	ft := fn.Type()
	if ft.NumIn() < 1 || ft.In(0).Kind() != reflect.Ptr || ft.In(0).Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("qtbridge: %s bracket requires a method expression with a pointer receiver", kind))
	}

	b := &Bracket{
		kind:       kind,
		methodName: methodExprName(fn),
		fn:         fn,
		paramNames: paramNames,
		receiver:   ft.In(0).Elem(),
	}

	if got, want := len(paramNames), ft.NumIn()-1; got != want {
		b.err = configError(kind.String(),
			fmt.Sprintf("%s bracket on %s.%s declares %d parameter names for %d parameters", kind, b.receiver.Name(), b.methodName, got, want),
			"declare one name per method parameter, in order")
	}
	for _, name := range required {
		if b.err == nil && !contains(paramNames, name) {
			b.err = configError(kind.String(),
				fmt.Sprintf("%s bracket on %s.%s has no parameter named '%s'", kind, b.receiver.Name(), b.methodName, name),
				fmt.Sprintf("name the relevant parameter '%s' in the bracket declaration", name))
		}
	}

	bracketMu.Lock()
	byName := bracketRegistry[b.receiver]
	if byName == nil {
		byName = make(map[string]*Bracket)
		bracketRegistry[b.receiver] = byName
	}
	byName[b.methodName] = b
	bracketMu.Unlock()
	return b
}

func bracketsFor(t reflect.Type) map[string]*Bracket {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	bracketMu.Lock()
	defer bracketMu.Unlock()
	return bracketRegistry[t]
}

// methodExprName recovers the method name from a method expression's
// runtime symbol.
func methodExprName(fn reflect.Value) string {
	pc := runtime.FuncForPC(fn.Pointer())
	if pc == nil {
		return ""
	}
	name := pc.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// validate reports any declaration-time defect. Registration aborts on the
// first invalid bracket rather than exposing a half-described type.
func (b *Bracket) validate() error {
	if b.err != nil {
		return b.err
	}
	if !b.fn.IsValid() {
		return configError(b.kind.String(),
			fmt.Sprintf("%s bracket on %s has no wrapped method", b.kind, b.receiver.Name()),
			"pass the method expression as the first argument")
	}
	return nil
}

func (b *Bracket) bind(backend interface{}) {
	b.mu.Lock()
	b.backend = backend
	b.mu.Unlock()
}

// call runs the wrapped method inside its announcement pair. The closing
// half always runs, including when the method panics; the panic converts to
// an error and never crosses the scene boundary.
func (b *Bracket) call(c *Connection, args []interface{}) (result interface{}, err error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	backend := b.backend
	b.mu.Unlock()
	if backend == nil {
		return nil, internalErrorf(b.kind.String(), "bracket on %s.%s invoked before its receiver was registered", b.receiver.Name(), b.methodName)
	}
	model := c.adapterFor(backend)
	if model == nil {
		return nil, internalErrorf(b.kind.String(), "no adapter for the bound %s instance", b.receiver.Name())
	}

	switch b.kind {
	case bracketInsert:
		index, ok, argErr := b.intArg(args, "index")
		if argErr != nil {
			return nil, argErr
		}
		if !ok {
			index = model.RowCount(InvalidIndex())
		}
		model.StartInsert(index, index)
		defer model.FinishInsert()

	case bracketRemove:
		index, ok, argErr := b.intArg(args, "index")
		if argErr != nil {
			return nil, argErr
		}
		if !ok {
			return nil, callErrorf(ErrBadValue, b.kind.String(), "argument 'index' is required")
		}
		model.StartRemove(index, index)
		defer model.FinishRemove()

	case bracketMove:
		from, okFrom, argErr := b.intArg(args, "fromIndex")
		if argErr != nil {
			return nil, argErr
		}
		to, okTo, argErr := b.intArg(args, "toIndex")
		if argErr != nil {
			return nil, argErr
		}
		if !okFrom || !okTo {
			return nil, callErrorf(ErrBadValue, b.kind.String(), "arguments 'fromIndex' and 'toIndex' are required")
		}
		// A downward move lands after the destination row from the view's
		// perspective.
		dest := to
		if to > from {
			dest++
		}
		model.StartMove(from, from, dest)
		defer model.FinishMove()

	case bracketReset:
		model.StartReset()
		defer model.EndReset()

	case bracketEdit, bracketComplete:
	}

	return b.invokeWrapped(c, backend, args)
}

func (b *Bracket) invokeWrapped(c *Connection, backend interface{}, args []interface{}) (interface{}, error) {
	ft := b.fn.Type()
	if len(args) != ft.NumIn()-1 {
		return nil, callErrorf(ErrBadValue, b.methodName, "wrong number of arguments: %d given, %d expected", len(args), ft.NumIn()-1)
	}

	callArgs := make([]reflect.Value, ft.NumIn())
	callArgs[0] = reflect.ValueOf(backend)
	for i, arg := range args {
		v, err := convertArg(c, arg, ft.In(i+1))
		if err != nil {
			return nil, callErrorf(ErrBadType, b.methodName, "argument '%s': %s", b.paramName(i), err)
		}
		callArgs[i+1] = v
	}

	out, err := safeCall(b.fn, callArgs)
	if err != nil {
		return nil, err
	}
	return firstResult(out)
}

func (b *Bracket) paramName(i int) string {
	if i < len(b.paramNames) {
		return b.paramNames[i]
	}
	return fmt.Sprintf("arg%d", i)
}

// intArg extracts the declared parameter by name from positional arguments.
// A missing or nil argument reports absence rather than failure.
func (b *Bracket) intArg(args []interface{}, name string) (int, bool, error) {
	pos := -1
	for i, n := range b.paramNames {
		if n == name {
			pos = i
			break
		}
	}
	if pos < 0 || pos >= len(args) || args[pos] == nil {
		return 0, false, nil
	}

	switch v := unwrapDynamic(args[pos]).(type) {
	case int:
		return v, true, nil
	case int32:
		return int(v), true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	default:
		return 0, false, callErrorf(ErrBadType, b.kind.String(), "argument '%s' must be an integer, got %T", name, args[pos])
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
