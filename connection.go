package qtbridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"reflect"
	"strconv"
	"strings"

	uuid "github.com/satori/go.uuid"
)

// Default registration namespace for types and singletons that do not name
// their own.
const (
	defaultURI     = "backend"
	defaultVersion = "1.0"
)

// TypeOptions adjusts how a prototype registers for frontend instantiation.
// The zero value registers under the struct's own name in the default
// namespace.
type TypeOptions struct {
	Name            string
	URI             string
	Version         string
	DefaultProperty string
}

// Handle is the permanent registration record for one exposed type or
// singleton. Instance registrations carry their live adapter; type
// registrations produce an adapter per scene-created object.
type Handle struct {
	typ     reflect.Type
	builder *descriptionBuilder
	desc    *Description

	name         string
	uri          string
	versionMajor int
	versionMinor int

	object  interface{}
	adapter *Model
}

func (h *Handle) Name() string           { return h.name }
func (h *Handle) URI() string            { return h.uri }
func (h *Handle) Describe() *Description { return h.desc }
func (h *Handle) Adapter() *Model        { return h.adapter }

// Connection bridges registered backend objects to a frontend scene over a
// message stream. Registration happens before the connection starts;
// afterwards all object access is confined to Process calls, so backend
// data is only touched when the application allows it.
type Connection struct {
	in  io.ReadCloser
	out io.WriteCloser

	objects      map[string]*Model
	singletons   []*Handle
	instantiable map[string]*Handle
	typeHandles  map[reflect.Type]*Handle

	// instances maps singleton backends to their handle; sceneObjects maps
	// scene-created backends to their adapter. Both key by identity.
	instances    *objectRegistry
	sceneObjects *objectRegistry

	knownTypes map[string]struct{}
	err        error

	started       bool
	processSignal chan struct{}
	queue         chan []byte
}

// NewConnection creates a connection over a single open stream. Register
// objects and types, then call Run or Process to start exchanging messages.
func NewConnection(data io.ReadWriteCloser) *Connection {
	return NewConnectionSplit(data, data)
}

// NewConnectionSplit is NewConnection with separate read and write streams,
// for pipes or stdin/stdout transports.
func NewConnectionSplit(in io.ReadCloser, out io.WriteCloser) *Connection {
	return &Connection{
		in:            in,
		out:           out,
		objects:       make(map[string]*Model),
		instantiable:  make(map[string]*Handle),
		typeHandles:   make(map[reflect.Type]*Handle),
		instances:     newObjectRegistry(),
		sceneObjects:  newObjectRegistry(),
		knownTypes:    make(map[string]struct{}),
		processSignal: make(chan struct{}, 2),
		queue:         make(chan []byte, 128),
	}
}

type messageBase struct {
	Command string `json:"command"`
}

func (c *Connection) fatal(fmsg string, p ...interface{}) {
	msg := fmt.Sprintf(fmsg, p...)
	log.Print("qtbridge: FATAL: " + msg)
	if c.err == nil {
		c.err = fmt.Errorf(fmsg, p...)
		c.in.Close()
		c.out.Close()
	}
}

func (c *Connection) warn(fmsg string, p ...interface{}) {
	log.Printf("qtbridge: WARNING: "+fmsg, p...)
}

// RegisterInstance exposes one live object as a named singleton. The object
// must be a pointer to a struct with a zero-argument Data method whose
// return type identifies the row shape; registration fails with actionable
// detail when the shape cannot be derived.
func (c *Connection) RegisterInstance(object interface{}, name, uri string) (*Handle, error) {
	if c.started {
		return nil, configError("registerInstance",
			fmt.Sprintf("instance '%s' registered after the connection started", name),
			"register all instances before calling Run or Process")
	}
	t := reflect.TypeOf(object)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, configError("registerInstance",
			fmt.Sprintf("instance '%s' is %T, not a pointer to a struct", name, object),
			"pass a pointer to the struct value to expose")
	}
	if existing := c.instances.find(object); existing != nil {
		return existing.(*Handle), nil
	}

	class := inferClassification(object)
	if class == classUnknown {
		return nil, configError("registerInstance",
			fmt.Sprintf("cannot derive the row shape of '%s' (%s)", name, t.Elem().Name()),
			"Declare a Data method with a concrete return type, for example:\n"+
				"  func (o *"+t.Elem().Name()+") Data() []string // rows of primitive values\n"+
				"  func (o *"+t.Elem().Name()+") Data() []Row    // rows of record fields\n"+
				"Supported shapes: slices of strings, numbers or booleans, and slices of structs.")
	}

	if uri == "" {
		uri = defaultURI
	}
	builder, err := describeType(t)
	if err != nil {
		return nil, err
	}
	desc := builder.finalize()

	adapter := newModel(c, object, desc, class, false)
	u, _ := uuid.NewV4()
	adapter.id = u.String()

	h := &Handle{
		typ:     t.Elem(),
		builder: builder,
		desc:    desc,
		name:    name,
		uri:     uri,
		object:  object,
		adapter: adapter,
	}

	c.objects[adapter.id] = adapter
	if err := c.instances.register(object, h); err != nil {
		return nil, err
	}
	c.singletons = append(c.singletons, h)
	bindBrackets(h.typ, object)
	callInitHook(object)
	return h, nil
}

// RegisterType exposes a struct type for instantiation from the declarative
// scene. Registering the same type twice is a no-op with a warning; the
// first registration wins.
func (c *Connection) RegisterType(prototype interface{}, opts *TypeOptions) (*Handle, error) {
	if opts == nil {
		opts = &TypeOptions{}
	}
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, configError("registerType",
			fmt.Sprintf("prototype is %T, not a struct", prototype),
			"pass a struct value or pointer naming the type to register")
	}
	name := opts.Name
	if name == "" {
		name = t.Name()
	}
	if c.started {
		return nil, configError("registerType",
			fmt.Sprintf("type '%s' registered after the connection started", name),
			"register all types before calling Run or Process")
	}

	if existing, ok := c.typeHandles[t]; ok {
		c.warn("type '%s' is already registered; keeping the first registration", existing.name)
		return existing, nil
	}
	if _, taken := c.instantiable[name]; taken {
		c.warn("type name '%s' is already registered; keeping the first registration", name)
		return c.instantiable[name], nil
	}

	uri := opts.URI
	if uri == "" {
		uri = defaultURI
	}
	major, minor, err := parseVersion(opts.Version)
	if err != nil {
		return nil, err
	}

	// List detection in later registrations depends on this type being on
	// record before their fields are described.
	noteInstantiableType(t)

	builder, err := describeType(t)
	if err != nil {
		return nil, err
	}
	if opts.DefaultProperty != "" {
		builder.setDefaultProperty(opts.DefaultProperty)
	}
	desc := builder.finalize()

	h := &Handle{
		typ:          t,
		builder:      builder,
		desc:         desc,
		name:         name,
		uri:          uri,
		versionMajor: major,
		versionMinor: minor,
	}
	c.typeHandles[t] = h
	c.instantiable[name] = h
	return h, nil
}

func parseVersion(version string) (int, int, error) {
	if version == "" {
		version = defaultVersion
	}
	majorStr, minorStr, ok := strings.Cut(version, ".")
	if !ok {
		return 0, 0, configError("registerType",
			fmt.Sprintf("version '%s' is malformed", version),
			"use the form 'major.minor', for example \"1.0\"")
	}
	major, err1 := strconv.Atoi(majorStr)
	minor, err2 := strconv.Atoi(minorStr)
	if err1 != nil || err2 != nil {
		return 0, 0, configError("registerType",
			fmt.Sprintf("version '%s' is malformed", version),
			"use the form 'major.minor', for example \"1.0\"")
	}
	return major, minor, nil
}

func bindBrackets(t reflect.Type, backend interface{}) {
	for _, br := range bracketsFor(t) {
		br.bind(backend)
	}
}

// Optional lifecycle hooks on backend types. InitObject runs when the
// adapter is created; ClassBegin and ComponentComplete bracket scene
// construction the way the declarative engine does for native elements.
type ParserStatus interface {
	ClassBegin()
	ComponentComplete()
}

type hasInit interface {
	InitObject()
}

func callInitHook(object interface{}) {
	if h, ok := object.(hasInit); ok {
		h.InitObject()
	}
}

// createObject instantiates a registered type for the scene. The two-phase
// construction contract applies: ClassBegin fires here, initial property
// assignments follow, and completeObject closes the phase.
func (c *Connection) createObject(typeName, identifier string) (*Model, error) {
	h, ok := c.instantiable[typeName]
	if !ok {
		return nil, fmt.Errorf("create of unknown type %s", typeName)
	}
	if _, exists := c.objects[identifier]; exists {
		return nil, fmt.Errorf("create of duplicate identifier %s", identifier)
	}

	backend := reflect.New(h.typ).Interface()
	adapter := newModel(c, backend, h.desc, inferClassification(backend), true)
	adapter.id = identifier
	adapter.ref = true

	c.objects[identifier] = adapter
	if err := c.sceneObjects.register(backend, adapter); err != nil {
		return nil, err
	}
	bindBrackets(h.typ, backend)
	callInitHook(backend)
	if ps, ok := backend.(ParserStatus); ok {
		ps.ClassBegin()
	}
	return adapter, nil
}

// completeObject closes scene construction: the backend's completion hook
// and any completion brackets run, then every property notification fires
// so bindings pick up state set during construction.
func (c *Connection) completeObject(adapter *Model) {
	if ps, ok := adapter.backend.(ParserStatus); ok {
		ps.ComponentComplete()
	}
	for _, br := range bracketsFor(reflect.TypeOf(adapter.backend)) {
		if br.kind != bracketComplete {
			continue
		}
		if _, err := br.call(c, nil); err != nil {
			logCallError("complete "+adapter.desc.Name, err)
		}
	}
	adapter.emitAllPropertyChanges()
}

func (c *Connection) destroyObject(adapter *Model) {
	adapter.ref = false
	delete(c.objects, adapter.id)
	c.sceneObjects.unregister(adapter.backend)
}

// adapterFor resolves a backend object to its adapter through either
// identity registry.
func (c *Connection) adapterFor(backend interface{}) *Model {
	if h, ok := c.instances.find(backend).(*Handle); ok {
		return h.adapter
	}
	if m, ok := c.sceneObjects.find(backend).(*Model); ok {
		return m
	}
	return nil
}

// objectByIdentifier resolves a wire identifier to its adapter.
func (c *Connection) objectByIdentifier(identifier string) *Model {
	return c.objects[identifier]
}

func (c *Connection) typeIsKnown(name string) bool {
	_, ok := c.knownTypes[name]
	return ok
}

func (c *Connection) noteTypeKnown(name string) {
	c.knownTypes[name] = struct{}{}
}

func (c *Connection) sendMessage(msg interface{}) {
	buf, err := json.Marshal(msg)
	if err != nil {
		c.fatal("message encoding failed: %s", err)
		return
	}
	fmt.Fprintf(c.out, "%d %s\n", len(buf), buf)
}

// handle runs in an internal goroutine reading 'in'. Messages are posted to
// the queue and processSignal is triggered; Process drains the queue on the
// application's thread.
func (c *Connection) handle() {
	defer close(c.processSignal)
	defer close(c.queue)

	c.sendMessage(struct {
		messageBase
		Version int `json:"version"`
	}{messageBase{"VERSION"}, 2})

	{
		types := make([]interface{}, 0, len(c.instantiable))
		for _, h := range c.instantiable {
			types = append(types, map[string]interface{}{
				"name":    h.name,
				"uri":     h.uri,
				"version": fmt.Sprintf("%d.%d", h.versionMajor, h.versionMinor),
				"type":    h.desc,
			})
		}
		c.sendMessage(struct {
			messageBase
			Types []interface{} `json:"types"`
		}{messageBase{"CREATABLE_TYPES"}, types})
	}

	{
		singletons := make([]interface{}, 0, len(c.singletons))
		for _, h := range c.singletons {
			h.adapter.ref = true
			singletons = append(singletons, map[string]interface{}{
				"name":       h.name,
				"uri":        h.uri,
				"identifier": h.adapter.id,
				"type":       h.desc,
				"data":       h.adapter.marshalObject(),
			})
		}
		c.sendMessage(struct {
			messageBase
			Singletons []interface{} `json:"singletons"`
		}{messageBase{"SINGLETONS"}, singletons})
	}

	rd := bufio.NewReader(c.in)
	for c.err == nil {
		sizeStr, err := rd.ReadString(' ')
		if err != nil {
			c.fatal("read error: %s", err)
			return
		} else if len(sizeStr) < 2 {
			c.fatal("read invalid message: invalid size")
			return
		}

		byteCnt, _ := strconv.ParseInt(sizeStr[:len(sizeStr)-1], 10, 32)
		if byteCnt < 1 {
			c.fatal("read invalid message: size too short")
			return
		}

		blob := make([]byte, byteCnt)
		for p := 0; p < len(blob); {
			if n, err := rd.Read(blob[p:]); err != nil {
				c.fatal("read error: %s", err)
				return
			} else {
				p += n
			}
		}

		if nl, err := rd.ReadByte(); err != nil {
			c.fatal("read error: %s", err)
			return
		} else if nl != '\n' {
			c.fatal("read invalid message: expected terminating newline, read %c", nl)
			return
		}

		c.queue <- blob
		c.processSignal <- struct{}{}
	}
}

func (c *Connection) ensureHandler() error {
	if !c.started {
		c.started = true
		if c.err != nil {
			return c.err
		}
		go c.handle()
	}
	return nil
}

func (c *Connection) Started() bool {
	return c.started
}

// Run processes messages until the connection is closed. When using Run,
// registered objects can be accessed by the connection at any time; for
// control over concurrency, see Process.
func (c *Connection) Run() error {
	c.ensureHandler()
	for {
		if _, open := <-c.processSignal; !open {
			return c.err
		}
		if err := c.Process(); err != nil {
			return err
		}
	}
}

// Process handles pending messages without blocking for new ones.
// ProcessSignal signals when messages are waiting.
//
// Registered object data is only touched during Process, so applications
// single-thread all backend access by controlling when Process runs.
func (c *Connection) Process() error {
	c.ensureHandler()

	for {
		var data []byte
		select {
		case data = <-c.queue:
		default:
			return c.err
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			c.fatal("process invalid message: %s", err)
			continue
		}
		c.processMessage(msg)
	}
}

func (c *Connection) processMessage(msg map[string]interface{}) {
	identifier, _ := msg["identifier"].(string)
	obj, objExists := c.objects[identifier]

	switch msg["command"] {
	case "OBJECT_REF":
		if !objExists {
			c.warn("ref of unknown object %s", identifier)
			break
		}
		obj.ref = true
		c.noteTypeKnown(obj.desc.Name)

	case "OBJECT_DEREF":
		if !objExists {
			c.warn("deref of unknown object %s", identifier)
			break
		}
		obj.ref = false

	case "OBJECT_QUERY":
		if !objExists {
			c.fatal("query of unknown object %s", identifier)
			break
		}
		c.sendUpdate(obj)

	case "OBJECT_CREATE":
		typeName, _ := msg["typeName"].(string)
		adapter, err := c.createObject(typeName, identifier)
		if err != nil {
			c.fatal("%s", err)
			break
		}
		if props, ok := msg["properties"].(map[string]interface{}); ok {
			for name, value := range props {
				if err := adapter.WritePropertyNamed(name, value); err != nil {
					logCallError("create "+typeName, err)
				}
			}
		}
		c.completeObject(adapter)

	case "OBJECT_DESTROYED":
		if !objExists {
			c.warn("destroy of unknown object %s", identifier)
			break
		}
		c.destroyObject(obj)

	case "INVOKE":
		method, _ := msg["method"].(string)
		if !objExists {
			c.fatal("invoke of %s on unknown object %s", method, identifier)
			break
		}
		params, ok := msg["parameters"].([]interface{})
		if !ok {
			c.fatal("invoke with invalid parameters of %s on %s", method, identifier)
			break
		}
		result, err := obj.InvokeNamed(method, params)
		if err != nil {
			logCallError(fmt.Sprintf("invoke of %s on %s", method, identifier), err)
			break
		}
		if id := obj.desc.MethodIndex(method); id >= 0 && obj.desc.Methods[id].Return != tagVoid {
			c.sendMessage(struct {
				messageBase
				Identifier string      `json:"identifier"`
				Method     string      `json:"method"`
				Value      interface{} `json:"value"`
			}{messageBase{"RETURN"}, identifier, method, result})
		}

	case "READ_PROPERTY":
		property, _ := msg["property"].(string)
		if !objExists {
			c.warn("read of %s on unknown object %s", property, identifier)
			break
		}
		id := obj.desc.PropertyIndex(property)
		value, handled := obj.MetaCall(ReadProperty, id, nil)
		if !handled {
			break
		}
		c.sendMessage(struct {
			messageBase
			Identifier string      `json:"identifier"`
			Property   string      `json:"property"`
			Value      interface{} `json:"value"`
		}{messageBase{"PROPERTY_VALUE"}, identifier, property, value})

	case "WRITE_PROPERTY":
		property, _ := msg["property"].(string)
		if !objExists {
			c.warn("write of %s on unknown object %s", property, identifier)
			break
		}
		id := obj.desc.PropertyIndex(property)
		obj.MetaCall(WriteProperty, id, []interface{}{msg["value"]})

	case "MODEL_ROWS":
		if !objExists {
			c.warn("row query on unknown object %s", identifier)
			break
		}
		start := intField(msg, "start")
		count := intField(msg, "count")
		total := obj.RowCount(InvalidIndex())
		if count <= 0 || start+count > total {
			count = total - start
		}
		rows := make([]map[string]interface{}, 0, maxInt(count, 0))
		for row := start; row < start+count; row++ {
			rows = append(rows, obj.rowData(row))
		}
		c.sendMessage(struct {
			messageBase
			Identifier string                   `json:"identifier"`
			Start      int                      `json:"start"`
			Rows       []map[string]interface{} `json:"rows"`
		}{messageBase{"MODEL_DATA"}, identifier, start, rows})

	case "MODEL_SET_DATA":
		if !objExists {
			c.warn("edit on unknown object %s", identifier)
			break
		}
		row := intField(msg, "row")
		obj.SetData(obj.Index(row, 0, InvalidIndex()), msg["value"], RoleEdit)

	default:
		c.fatal("unknown command %v", msg["command"])
	}
}

func intField(msg map[string]interface{}, key string) int {
	if f, ok := msg[key].(float64); ok {
		return int(f)
	}
	return 0
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (c *Connection) ProcessSignal() <-chan struct{} {
	c.ensureHandler()
	return c.processSignal
}

// Object returns a registered adapter by its identifier.
func (c *Connection) Object(identifier string) *Model {
	return c.objects[identifier]
}

// sendUpdate pushes an object's full property state. Objects the frontend
// does not reference stay silent.
func (c *Connection) sendUpdate(adapter *Model) error {
	if !adapter.Referenced() {
		return nil
	}
	c.sendMessage(struct {
		messageBase
		Identifier string                 `json:"identifier"`
		Data       map[string]interface{} `json:"data"`
	}{messageBase{"OBJECT_RESET"}, adapter.id, adapter.marshalObject()})
	return nil
}

func (c *Connection) sendEmit(adapter *Model, method string, data []interface{}) {
	if data == nil {
		data = []interface{}{}
	}
	c.sendMessage(struct {
		messageBase
		Identifier string        `json:"identifier"`
		Method     string        `json:"method"`
		Parameters []interface{} `json:"parameters"`
	}{messageBase{"EMIT"}, adapter.id, method, data})
}

// sendModelEvent announces a structural model change to attached views.
func (c *Connection) sendModelEvent(adapter *Model, event string, args []interface{}) {
	if !adapter.Referenced() {
		return
	}
	if args == nil {
		args = []interface{}{}
	}
	c.sendMessage(struct {
		messageBase
		Identifier string        `json:"identifier"`
		Event      string        `json:"event"`
		Args       []interface{} `json:"args"`
	}{messageBase{"MODEL_EVENT"}, adapter.id, event, args})
}
