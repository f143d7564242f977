package qtbridge

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type TaskRow struct {
	Name string
	Done bool

	internal string
}

type TaskModel struct {
	Title string

	tasks []TaskRow
}

func (m *TaskModel) Data() []TaskRow { return m.tasks }

func (m *TaskModel) SetItem(row int, name string) error {
	if row < 0 || row >= len(m.tasks) {
		return callErrorf(ErrIndexRange, "setItem", "row %d of %d", row, len(m.tasks))
	}
	m.tasks[row].Name = name
	return nil
}

type LineModel struct {
	lines []string
}

func (m *LineModel) Data() []string { return m.lines }

func (m *LineModel) SetItem(row int, text string) error {
	if row < 0 || row >= len(m.lines) {
		return callErrorf(ErrIndexRange, "setItem", "row %d of %d", row, len(m.lines))
	}
	m.lines[row] = text
	return nil
}

func (m *LineModel) AddLine(text string) {
	m.lines = append(m.lines, text)
}

func (m *LineModel) DropLine(index int) {
	m.lines = append(m.lines[:index], m.lines[index+1:]...)
}

func (m *LineModel) MoveLine(fromIndex, toIndex int) {
	line := m.lines[fromIndex]
	m.lines = append(m.lines[:fromIndex], m.lines[fromIndex+1:]...)
	m.lines = append(m.lines[:toIndex], append([]string{line}, m.lines[toIndex:]...)...)
}

func (m *LineModel) ClearLines() {
	m.lines = nil
}

func (m *LineModel) FailingAdd(text string) {
	panic("backend rejected " + text)
}

type DynModel struct {
	rows []interface{}
}

func (m *DynModel) Data() []interface{} { return m.rows }

func newTestAdapter(t *testing.T, backend interface{}, created bool) *Model {
	t.Helper()
	b, err := describeType(reflect.TypeOf(backend))
	if err != nil {
		t.Fatalf("describe failed: %s", err)
	}
	return newModel(nil, backend, b.finalize(), inferClassification(backend), created)
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name    string
		backend interface{}
		class   classification
	}{
		{"strings", &LineModel{}, classPrimitiveList},
		{"records", &TaskModel{}, classRecordList},
		{"noData", &PlainObject{}, classUnknown},
		{"dynamicEmpty", &DynModel{}, classUnknown},
		{"dynamicPrimitive", &DynModel{rows: []interface{}{"a"}}, classPrimitiveList},
		{"dynamicRecord", &DynModel{rows: []interface{}{TaskRow{Name: "x"}}}, classRecordList},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inferClassification(tc.backend); got != tc.class {
				t.Errorf("classified as %s, expected %s", got, tc.class)
			}
		})
	}
}

func TestPrimitiveListModel(t *testing.T) {
	m := newTestAdapter(t, &LineModel{lines: []string{"a", "b"}}, false)

	if n := m.RowCount(InvalidIndex()); n != 2 {
		t.Errorf("rowCount is %d, expected 2", n)
	}
	if n := m.RowCount(m.Index(0, 0, InvalidIndex())); n != 0 {
		t.Errorf("child rowCount is %d, expected 0", n)
	}
	if n := m.ColumnCount(InvalidIndex()); n != 1 {
		t.Errorf("columnCount is %d, expected 1", n)
	}

	idx := m.Index(0, 0, InvalidIndex())
	if v := m.Data(idx, RoleDisplay); v != "a" {
		t.Errorf("display data is %v, expected a", v)
	}
	if v := m.Data(idx, RoleEdit); v != nil {
		t.Errorf("primitive list answered a non-display role: %v", v)
	}
	if v := m.Data(m.Index(5, 0, InvalidIndex()), RoleDisplay); v != nil {
		t.Errorf("out-of-range read produced %v", v)
	}
	if v := m.Data(InvalidIndex(), RoleDisplay); v != nil {
		t.Errorf("invalid index read produced %v", v)
	}

	if diff := cmp.Diff(map[int]string{RoleDisplay: "display"}, m.RoleNames()); diff != "" {
		t.Errorf("role names mismatch:\n%s", diff)
	}
}

func TestRecordRolesStable(t *testing.T) {
	m := newTestAdapter(t, &TaskModel{tasks: []TaskRow{{Name: "x", Done: true}}}, false)

	want := map[int]string{
		recordRoleBase:     "name",
		recordRoleBase + 1: "done",
	}
	if diff := cmp.Diff(want, m.RoleNames()); diff != "" {
		t.Errorf("role window mismatch:\n%s", diff)
	}

	first := m.RoleNames()
	m.EndReset()
	if diff := cmp.Diff(first, m.RoleNames()); diff != "" {
		t.Errorf("roles changed across a reset:\n%s", diff)
	}
}

func TestRecordData(t *testing.T) {
	m := newTestAdapter(t, &TaskModel{tasks: []TaskRow{{Name: "x", Done: true}}}, false)
	idx := m.Index(0, 0, InvalidIndex())

	if v := m.Data(idx, recordRoleBase); v != "x" {
		t.Errorf("name role read %v, expected x", v)
	}
	if v := m.Data(idx, recordRoleBase+1); v != true {
		t.Errorf("done role read %v, expected true", v)
	}
	if v := m.Data(idx, RoleDisplay); v == nil {
		t.Error("display fallback for a record produced nothing")
	}
	if v := m.Data(idx, recordRoleBase+42); v != nil {
		t.Errorf("unmapped role read %v, expected nothing", v)
	}
}

func TestSetData(t *testing.T) {
	backend := &TaskModel{tasks: []TaskRow{{Name: "x"}}}
	m := newTestAdapter(t, backend, false)
	idx := m.Index(0, 0, InvalidIndex())

	if !m.SetData(idx, "y", RoleEdit) {
		t.Fatal("edit-role write failed")
	}
	if backend.tasks[0].Name != "y" {
		t.Errorf("backend row is %q after write", backend.tasks[0].Name)
	}

	if m.SetData(idx, "z", RoleDisplay) {
		t.Error("display-role write succeeded")
	}
	if m.SetData(m.Index(9, 0, InvalidIndex()), "z", RoleEdit) {
		t.Error("out-of-range write succeeded")
	}
	if backend.tasks[0].Name != "y" {
		t.Error("failed writes changed the backend")
	}
}

func TestFlags(t *testing.T) {
	m := newTestAdapter(t, &LineModel{lines: []string{"a"}}, false)

	if f := m.Flags(InvalidIndex()); f != FlagNone {
		t.Errorf("invalid index has flags %d", f)
	}
	f := m.Flags(m.Index(0, 0, InvalidIndex()))
	if f&FlagEditable == 0 || f&FlagEnabled == 0 || f&FlagSelectable == 0 {
		t.Errorf("valid cell has flags %d", f)
	}
}

func TestFlatIndexing(t *testing.T) {
	m := newTestAdapter(t, &LineModel{lines: []string{"a"}}, false)

	root := m.Index(0, 0, InvalidIndex())
	if !root.IsValid() {
		t.Fatal("top-level index is invalid")
	}
	if m.Index(0, 0, root).IsValid() {
		t.Error("child index is valid")
	}
	if m.Index(0, 1, InvalidIndex()).IsValid() {
		t.Error("nonzero column index is valid")
	}
	if m.Parent(root).IsValid() {
		t.Error("top-level index has a parent")
	}
}

func TestUnknownShapeReportsOnce(t *testing.T) {
	b, err := describeType(reflect.TypeOf(&PlainObject{}))
	if err != nil {
		t.Fatalf("describe failed: %s", err)
	}
	m := newModel(nil, &PlainObject{}, b.finalize(), classUnknown, true)

	if n := m.RowCount(InvalidIndex()); n != 0 {
		t.Errorf("shapeless rowCount is %d", n)
	}
	if !m.usageErrorReported {
		t.Error("shape diagnostic not recorded")
	}
	m.RowCount(InvalidIndex())

	if m.Index(0, 0, InvalidIndex()).IsValid() {
		t.Error("shapeless model produced a valid index")
	}
}

func TestEndResetDerivesRoles(t *testing.T) {
	backend := &DynModel{}
	b, err := describeType(reflect.TypeOf(backend))
	if err != nil {
		t.Fatalf("describe failed: %s", err)
	}
	m := newModel(nil, backend, b.finalize(), classRecordList, false)
	if len(m.roles) != 0 {
		t.Fatalf("roles derived from an empty dynamic model: %v", m.roles)
	}

	backend.rows = []interface{}{TaskRow{Name: "x"}}
	m.EndReset()

	if m.roles[recordRoleBase] != "name" {
		t.Errorf("roles after reset: %v", m.roles)
	}
}

func TestRowData(t *testing.T) {
	m := newTestAdapter(t, &TaskModel{tasks: []TaskRow{{Name: "x", Done: true}}}, false)
	want := map[string]interface{}{"name": "x", "done": true}
	if diff := cmp.Diff(want, m.rowData(0)); diff != "" {
		t.Errorf("row data mismatch:\n%s", diff)
	}

	p := newTestAdapter(t, &LineModel{lines: []string{"a"}}, false)
	if diff := cmp.Diff(map[string]interface{}{"display": "a"}, p.rowData(0)); diff != "" {
		t.Errorf("primitive row data mismatch:\n%s", diff)
	}
}
