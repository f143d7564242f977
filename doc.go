// qtbridge exposes live Go objects to a QML-style declarative UI engine.
//
// The bridge synthesizes a meta-object description for plain Go structs at
// runtime: exported fields become properties, exported methods become
// callable functions, and func fields become signals. No code generation
// and no cgo are involved; all frontend/backend communication is
// socket-based, so the UI can run out of process. For all-in-one
// applications, the qmlscene package wraps in-process QML execution.
//
// Registration
//
// Objects reach the frontend through one of two registration paths on
// Connection. RegisterInstance exposes one live object as a named
// singleton; the object must have a Data method so the bridge can derive
// its row shape. RegisterType exposes a struct type for declarative
// instantiation; the frontend creates and owns those objects:
//
//	// Go
//	type Tasks struct {
//	    Title string
//	}
//	func (t *Tasks) Data() []string { ... }
//
//	c.RegisterInstance(&Tasks{}, "Tasks", "backend")
//
//	// QML
//	import backend 1.0
//
//	ListView { model: Tasks }
//
// Both paths must complete before the connection starts processing
// messages.
//
// Data Models
//
// Every registered object doubles as a list model. The bridge classifies
// the Data method's return type into rows of primitive values (one display
// role) or rows of record fields (one role per exported field), and serves
// the frontend's item-model protocol from the live slice on every read.
// Rows are never cached, so mutations made anywhere in the backend are
// visible to attached views.
//
// Mutation Brackets
//
// Views track structural changes incrementally, so row mutations must be
// announced. Methods that insert, remove, move or reset rows are wrapped in
// a mutation bracket declared next to the type:
//
//	var _ = qtbridge.Insert((*Tasks).Add, "name")
//	var _ = qtbridge.Remove((*Tasks).Drop, "index")
//
// The bracket announces the change before the wrapped method runs and
// settles it afterwards, even when the method panics. Edit brackets mark
// in-place changes; complete brackets defer a method until the declarative
// scene finishes constructing the object.
//
// Connection
//
// Connection handles communication with the frontend and manages object
// lifetimes. After registration, the connection is started by calling Run()
// or (in a loop) Process(). Registered object data is only accessed during
// calls to Process or other methods of this package; RunLockable() provides
// a sync.Locker for exclusive execution with Process(). See those methods
// for details on avoiding concurrency issues.
package qtbridge
