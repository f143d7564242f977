package qtbridge

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Role numbering shared with the frontend. Record fields occupy a window
// starting above the frontend's user-role floor so they never collide with
// built-in roles.
const (
	RoleDisplay = 0
	RoleEdit    = 2

	roleUser       = 256
	recordRoleBase = roleUser + 1000
)

// ItemFlags mirror the frontend's item capability bits.
type ItemFlags int

const (
	FlagNone       ItemFlags = 0
	FlagSelectable ItemFlags = 1
	FlagEditable   ItemFlags = 2
	FlagEnabled    ItemFlags = 32
)

// classification of a backend object's row shape, inferred from its Data
// method. Unknown objects answer the model protocol inertly; table shape is
// reserved and never inferred.
type classification int

const (
	classUnknown classification = iota
	classPrimitiveList
	classRecordList
	classTable
)

func (c classification) String() string {
	switch c {
	case classPrimitiveList:
		return "list"
	case classRecordList:
		return "recordList"
	case classTable:
		return "table"
	}
	return "unknown"
}

// ModelIndex locates one cell. The zero value is invalid, as is anything
// outside a known row shape.
type ModelIndex struct {
	row    int
	column int
	valid  bool
}

func InvalidIndex() ModelIndex { return ModelIndex{} }

func (ix ModelIndex) IsValid() bool { return ix.valid }
func (ix ModelIndex) Row() int      { return ix.row }
func (ix ModelIndex) Column() int   { return ix.column }

// Model adapts one backend object to the frontend's item-model protocol and
// is its single meta-object dispatch target. Rows are never cached; every
// read consults the backend's Data method so external mutation is always
// visible.
type Model struct {
	c  *Connection
	id string

	backend      interface{}
	backendValue reflect.Value
	desc         *Description
	class        classification

	// created marks objects instantiated from the declarative scene, which
	// get a usage diagnostic when used as a view model without a row shape.
	created bool
	ref     bool

	roles    map[int]string
	goFields map[int]string

	pendingFirst int
	pendingLast  int
	pendingDest  int

	usageErrorReported bool
}

func newModel(c *Connection, backend interface{}, desc *Description, class classification, created bool) *Model {
	m := &Model{
		c:            c,
		backend:      backend,
		backendValue: reflect.ValueOf(backend),
		desc:         desc,
		class:        class,
		created:      created,
	}
	if class == classRecordList {
		m.setupRecordRoles()
	}
	initSignals(m)
	return m
}

func (m *Model) Identifier() string     { return m.id }
func (m *Model) Backend() interface{}   { return m.backend }
func (m *Model) Describe() *Description { return m.desc }
func (m *Model) Referenced() bool       { return m.ref }

// RowCount reports the live row count. Child indexes have no rows; a model
// without a row shape has none either, and reports the misconfiguration
// once when the object came from the declarative scene.
func (m *Model) RowCount(parent ModelIndex) int {
	if parent.IsValid() {
		return 0
	}
	if m.class == classUnknown || m.class == classTable {
		m.reportShapeError()
		return 0
	}
	rows, err := m.dataRows()
	if err != nil {
		logCallError("rowCount", err)
		return 0
	}
	return rows.Len()
}

// ColumnCount is always one column wide; the row shapes here have no
// table form.
func (m *Model) ColumnCount(parent ModelIndex) int {
	if parent.IsValid() {
		return 0
	}
	return 1
}

// Data reads one cell. Failures resolve to no value; the reason is logged
// with a severity matching whether the caller or the backend is at fault.
func (m *Model) Data(index ModelIndex, role int) interface{} {
	if !index.IsValid() {
		return nil
	}
	rows, err := m.dataRows()
	if err != nil {
		logCallError("data", err)
		return nil
	}
	if index.Row() < 0 || index.Row() >= rows.Len() {
		logCallError("data", callErrorf(ErrIndexRange, "data", "row %d of %d", index.Row(), rows.Len()))
		return nil
	}
	row := rows.Index(index.Row())

	switch m.class {
	case classPrimitiveList:
		if role != RoleDisplay {
			return nil
		}
		return cellValue(row)

	case classRecordList:
		return m.recordCell(row, role)
	}
	return nil
}

func (m *Model) recordCell(row reflect.Value, role int) interface{} {
	for row.Kind() == reflect.Ptr || row.Kind() == reflect.Interface {
		if row.IsNil() {
			return nil
		}
		row = row.Elem()
	}

	goField := m.goFields[role]
	if goField == "" {
		if role == RoleDisplay {
			return fmt.Sprint(row.Interface())
		}
		return nil
	}
	field := row.FieldByName(goField)
	if !field.IsValid() {
		logCallError("data", callErrorf(ErrMissingMember, "data", "record has no field %s", goField))
		return nil
	}
	return cellValue(field)
}

// SetData routes an edit to the backend's SetItem method. Only the edit
// role is writable. A successful write refreshes the display and edit roles
// of the touched cell.
func (m *Model) SetData(index ModelIndex, value interface{}, role int) bool {
	if !index.IsValid() || role != RoleEdit {
		return false
	}
	setter := m.backendValue.MethodByName(setItemMethodName)
	if !setter.IsValid() {
		logCallError("setData", callErrorf(ErrMissingMember, "setData", "%s has no %s method", m.desc.Name, setItemMethodName))
		return false
	}
	st := setter.Type()
	if st.NumIn() != 2 {
		logCallError("setData", callErrorf(ErrBadType, "setData", "%s.%s must take a row index and a value", m.desc.Name, setItemMethodName))
		return false
	}

	rowArg, err := convertArg(m.c, index.Row(), st.In(0))
	if err != nil {
		logCallError("setData", err)
		return false
	}
	valueArg, err := convertArg(m.c, unwrapDynamic(value), st.In(1))
	if err != nil {
		logCallError("setData", err)
		return false
	}

	out, err := safeCall(setter, []reflect.Value{rowArg, valueArg})
	if err == nil {
		_, err = firstResult(out)
	}
	if err != nil {
		logCallError("setData", err)
		return false
	}

	m.rowUpdated(index.Row(), []int{RoleDisplay, RoleEdit})
	return true
}

// Flags reports every valid cell as enabled, selectable and editable;
// per-cell write failures surface from SetData instead.
func (m *Model) Flags(index ModelIndex) ItemFlags {
	if !index.IsValid() {
		return FlagNone
	}
	return FlagEnabled | FlagSelectable | FlagEditable
}

// RoleNames exposes the cached role map. Primitive lists and shapeless
// models present only the display role.
func (m *Model) RoleNames() map[int]string {
	if m.class == classRecordList && len(m.roles) > 0 {
		return m.roles
	}
	return map[int]string{RoleDisplay: "display"}
}

// Index builds a top-level index. Nothing nests: a valid parent or nonzero
// column yields nothing, as does a model without a row shape.
func (m *Model) Index(row, column int, parent ModelIndex) ModelIndex {
	if parent.IsValid() || column != 0 {
		return InvalidIndex()
	}
	if m.class != classPrimitiveList && m.class != classRecordList {
		return InvalidIndex()
	}
	return ModelIndex{row: row, column: column, valid: true}
}

func (m *Model) Parent(ModelIndex) ModelIndex { return InvalidIndex() }

// Structural change announcements. Start captures the range; Finish settles
// it and notifies attached views. The pairs are what mutation brackets call
// around the wrapped method.

func (m *Model) StartInsert(first, last int) {
	m.pendingFirst, m.pendingLast = first, last
}

func (m *Model) FinishInsert() {
	m.sendModelEvent("insert", m.pendingFirst, m.pendingLast)
}

func (m *Model) StartRemove(first, last int) {
	m.pendingFirst, m.pendingLast = first, last
}

func (m *Model) FinishRemove() {
	m.sendModelEvent("remove", m.pendingFirst, m.pendingLast)
}

func (m *Model) StartMove(first, last, dest int) {
	m.pendingFirst, m.pendingLast, m.pendingDest = first, last, dest
}

func (m *Model) FinishMove() {
	m.sendModelEvent("move", m.pendingFirst, m.pendingLast, m.pendingDest)
}

func (m *Model) StartReset() {}

// EndReset settles a full reset. A record model that never discovered its
// roles retries now; roles discovered earlier are stable for the model's
// lifetime so views keep their bindings.
func (m *Model) EndReset() {
	if m.class == classRecordList && len(m.roles) == 0 {
		m.setupRecordRoles()
	}
	m.sendModelEvent("reset")
}

func (m *Model) rowUpdated(row int, roles []int) {
	m.sendModelEvent("update", row, roles)
}

func (m *Model) sendModelEvent(event string, args ...interface{}) {
	if m.c == nil {
		return
	}
	m.c.sendModelEvent(m, event, args)
}

// dataRows fetches the live row slice from the backend's Data method.
func (m *Model) dataRows() (reflect.Value, error) {
	method := m.backendValue.MethodByName(dataMethodName)
	if !method.IsValid() {
		return reflect.Value{}, callErrorf(ErrMissingMember, "data", "%s has no %s method", m.desc.Name, dataMethodName)
	}
	if method.Type().NumIn() != 0 {
		return reflect.Value{}, callErrorf(ErrBadType, "data", "%s.%s must take no arguments", m.desc.Name, dataMethodName)
	}

	out, err := safeCall(method, nil)
	if err != nil {
		return reflect.Value{}, err
	}
	if len(out) == 0 {
		return reflect.Value{}, callErrorf(ErrBadType, "data", "%s.%s returns nothing", m.desc.Name, dataMethodName)
	}
	rows := out[0]
	for rows.Kind() == reflect.Interface || rows.Kind() == reflect.Ptr {
		if rows.IsNil() {
			return reflect.Zero(reflect.TypeOf([]interface{}{})), nil
		}
		rows = rows.Elem()
	}
	if rows.Kind() != reflect.Slice && rows.Kind() != reflect.Array {
		return reflect.Value{}, callErrorf(ErrBadType, "data", "%s.%s returned %s, not a slice", m.desc.Name, dataMethodName, rows.Kind())
	}
	return rows, nil
}

// setupRecordRoles derives the stable role window from the record type's
// exported fields. Static derivation from the Data signature is preferred;
// a dynamic row shape falls back to probing the first row.
func (m *Model) setupRecordRoles() {
	recordType := m.staticRecordType()
	if recordType == nil {
		recordType = m.probedRecordType()
	}
	if recordType == nil {
		return
	}

	m.roles = make(map[int]string)
	m.goFields = make(map[int]string)
	role := recordRoleBase
	for i := 0; i < recordType.NumField(); i++ {
		field := recordType.Field(i)
		if field.PkgPath != "" || field.Anonymous {
			continue
		}
		if shouldIgnoreField(field) {
			continue
		}
		m.roles[role] = memberName(field)
		m.goFields[role] = field.Name
		role++
	}
}

func (m *Model) staticRecordType() reflect.Type {
	method, ok := m.backendValue.Type().MethodByName(dataMethodName)
	if !ok || method.Type.NumOut() == 0 {
		return nil
	}
	rt := method.Type.Out(0)
	if rt.Kind() != reflect.Slice && rt.Kind() != reflect.Array {
		return nil
	}
	elem := rt.Elem()
	for elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil
	}
	return elem
}

func (m *Model) probedRecordType() reflect.Type {
	rows, err := m.dataRows()
	if err != nil || rows.Len() == 0 {
		return nil
	}
	elem := rows.Index(0)
	for elem.Kind() == reflect.Interface || elem.Kind() == reflect.Ptr {
		if elem.IsNil() {
			return nil
		}
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil
	}
	return elem.Type()
}

// rowData collects every role of one row for bulk transfer to the frontend.
func (m *Model) rowData(row int) map[string]interface{} {
	data := make(map[string]interface{})
	switch m.class {
	case classPrimitiveList:
		data["display"] = m.Data(m.Index(row, 0, InvalidIndex()), RoleDisplay)
	case classRecordList:
		index := m.Index(row, 0, InvalidIndex())
		for role, name := range m.RoleNames() {
			data[name] = m.Data(index, role)
		}
	}
	return data
}

func (m *Model) reportShapeError() {
	if !m.created || m.usageErrorReported {
		return
	}
	m.usageErrorReported = true
	logWarn("type '%s' is used as a view model but has no usable %s method\n"+
		"Declare a %s method with a concrete return type, for example:\n"+
		"  func (t *%s) %s() []string // rows of primitive values\n"+
		"  func (t *%s) %s() []Row    // rows of record fields",
		m.desc.Name, dataMethodName, dataMethodName,
		m.desc.Name, dataMethodName, m.desc.Name, dataMethodName)
}

// marshalObject snapshots every property for an object state push.
func (m *Model) marshalObject() map[string]interface{} {
	data := make(map[string]interface{}, len(m.desc.Properties))
	for i := range m.desc.Properties {
		v, err := m.ReadProperty(i)
		if err != nil {
			logCallError("marshal "+m.desc.Properties[i].Name, err)
			continue
		}
		data[m.desc.Properties[i].Name] = v
	}
	return data
}

// MarshalJSON encodes the model as an opaque object reference. The full
// description rides along the first time; peers that already know the type
// get only its name.
func (m *Model) MarshalJSON() ([]byte, error) {
	ref := map[string]interface{}{
		wireTag:      "object",
		"identifier": m.id,
	}
	if m.c != nil && m.c.typeIsKnown(m.desc.Name) {
		ref["type"] = map[string]interface{}{"name": m.desc.Name, "omitted": true}
	} else {
		ref["type"] = m.desc
		if m.c != nil {
			m.c.noteTypeKnown(m.desc.Name)
		}
	}
	return json.Marshal(ref)
}

// inferClassification decides the row shape from the Data method's static
// return type. A dynamic return type defers to the rows actually present; a
// missing or malformed Data method leaves the shape unknown.
func inferClassification(backend interface{}) classification {
	method := reflect.ValueOf(backend).MethodByName(dataMethodName)
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() == 0 {
		return classUnknown
	}

	rt := method.Type().Out(0)
	if rt.Kind() == reflect.Interface {
		return probeClassification(method)
	}
	if rt.Kind() != reflect.Slice && rt.Kind() != reflect.Array {
		return classUnknown
	}

	elem := rt.Elem()
	for elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	switch elem.Kind() {
	case reflect.Struct:
		return classRecordList
	case reflect.Interface:
		return probeClassification(method)
	default:
		return classPrimitiveList
	}
}

// probeClassification calls Data once and looks at the first row. An empty
// result classifies as a primitive list until a reset says otherwise.
func probeClassification(method reflect.Value) classification {
	out, err := safeCall(method, nil)
	if err != nil || len(out) == 0 {
		return classUnknown
	}
	rows := out[0]
	for rows.Kind() == reflect.Interface || rows.Kind() == reflect.Ptr {
		if rows.IsNil() {
			return classUnknown
		}
		rows = rows.Elem()
	}
	if rows.Kind() != reflect.Slice && rows.Kind() != reflect.Array {
		return classUnknown
	}
	if rows.Len() == 0 {
		return classPrimitiveList
	}
	first := rows.Index(0)
	for first.Kind() == reflect.Interface || first.Kind() == reflect.Ptr {
		if first.IsNil() {
			return classPrimitiveList
		}
		first = first.Elem()
	}
	if first.Kind() == reflect.Struct {
		return classRecordList
	}
	return classPrimitiveList
}

// initSignals assigns an emitting closure to every func field declared as a
// signal, so backend code can raise its own notifications by calling the
// field.
func initSignals(m *Model) {
	object := m.backendValue
	for object.Kind() == reflect.Ptr {
		object = object.Elem()
	}
	if object.Kind() != reflect.Struct {
		return
	}

	for _, sig := range m.desc.Signals {
		if sig.fieldIndex == nil {
			continue
		}
		field, err := object.FieldByIndexErr(sig.fieldIndex)
		if err != nil || !field.IsValid() || field.Kind() != reflect.Func || !field.CanSet() {
			continue
		}
		name := sig.Name
		field.Set(reflect.MakeFunc(field.Type(), func(args []reflect.Value) []reflect.Value {
			params := make([]interface{}, len(args))
			for i, a := range args {
				params[i] = toVariant(a.Interface())
			}
			m.emitSignal(name, params)
			return nil
		}))
	}
}

func (m *Model) emitSignal(name string, args []interface{}) {
	if m.c == nil || !m.ref {
		return
	}
	m.c.sendEmit(m, name, args)
}

// EmitPropertyChanged raises the change notification for one property by
// index. Properties without a notification slot stay silent.
func (m *Model) EmitPropertyChanged(id int) {
	if id < 0 || id >= len(m.desc.Properties) {
		return
	}
	notify := m.desc.Properties[id].NotifySignal
	if notify < 0 {
		return
	}
	m.emitSignal(m.desc.Signals[notify].Name, nil)
}

// emitAllPropertyChanges pushes every notification at once, used after the
// declarative scene finishes constructing an object.
func (m *Model) emitAllPropertyChanges() {
	for i := range m.desc.Properties {
		m.EmitPropertyChanged(i)
	}
}

// ResetProperties pushes the full property state to the frontend.
func (m *Model) ResetProperties() {
	if m.c == nil || !m.ref {
		return
	}
	m.c.sendUpdate(m)
}

