package qtbridge

import (
	"encoding/json"
	"fmt"
)

// Marshaled type tags shared with the frontend. Backend members carry the
// generic tag unless a dedicated representation exists for the shape.
const (
	tagVar   = "var"
	tagArray = "array"
	tagMap   = "map"
	tagList  = "list"
	tagVoid  = "void"
)

// Class-info markers read by the frontend's instantiation path. Element and
// ParserStatus are declared for every type; DefaultProperty only on request.
const (
	infoElement         = "QML.Element"
	infoParserStatus    = "QML.ParserStatus"
	infoDefaultProperty = "DefaultProperty"
)

type propertyEntry struct {
	Name string
	Type string
	// NotifySignal is the index of the change-notification signal, or -1
	// when allocation failed and the property reads once from the UI side.
	NotifySignal int

	fieldIndex []int
}

type methodEntry struct {
	Name   string
	Params []string
	Return string

	goName  string
	bracket *Bracket
}

type signalEntry struct {
	Name   string
	Params []string

	fieldIndex []int
}

type classInfoEntry struct {
	Key   string
	Value string
}

// descriptionBuilder accumulates introspected members and compiles them into
// one immutable Description. Compilation happens exactly once; calling
// finalize again returns the same description.
type descriptionBuilder struct {
	name       string
	properties []propertyEntry
	methods    []methodEntry
	signals    []signalEntry
	classInfo  []classInfoEntry

	propIndex map[string]int
	methIndex map[string]int
	sigIndex  map[string]int

	final *Description
}

func newDescriptionBuilder(name string) *descriptionBuilder {
	b := &descriptionBuilder{
		name:      name,
		propIndex: make(map[string]int),
		methIndex: make(map[string]int),
		sigIndex:  make(map[string]int),
	}
	b.addClassInfo(infoElement, "auto")
	b.addClassInfo(infoParserStatus, "QQmlParserStatus")
	return b
}

// addSignal allocates a signal entry, adopting an existing one with a
// matching parameter list. A same-named signal with a different parameter
// list cannot be adopted.
func (b *descriptionBuilder) addSignal(name string, params []string, fieldIndex []int) (int, error) {
	if i, exists := b.sigIndex[name]; exists {
		existing := &b.signals[i]
		if len(existing.Params) != len(params) {
			return -1, fmt.Errorf("signal '%s' already declared with %d parameters", name, len(existing.Params))
		}
		if fieldIndex != nil && existing.fieldIndex == nil {
			existing.fieldIndex = fieldIndex
		}
		return i, nil
	}
	b.signals = append(b.signals, signalEntry{Name: name, Params: params, fieldIndex: fieldIndex})
	b.sigIndex[name] = len(b.signals) - 1
	return len(b.signals) - 1, nil
}

// addProperty allocates the property's change-notification signal first,
// then registers the property bound to it. A failed signal allocation is not
// fatal; the property is created without notify capability.
func (b *descriptionBuilder) addProperty(name, typeTag string, fieldIndex []int) int {
	if b.final != nil {
		logError("property '%s' discovered after the description for %s was finalized; ignoring", name, b.name)
		return -1
	}
	if i, exists := b.propIndex[name]; exists {
		return i
	}

	notify, err := b.addSignal(changedSignalName(name), nil, nil)
	if err != nil {
		logWarn("no change notification for property '%s' of %s: %s", name, b.name, err)
		notify = -1
	}

	b.properties = append(b.properties, propertyEntry{
		Name:         name,
		Type:         typeTag,
		NotifySignal: notify,
		fieldIndex:   fieldIndex,
	})
	b.propIndex[name] = len(b.properties) - 1
	return len(b.properties) - 1
}

func (b *descriptionBuilder) addMethod(name string, params []string, ret, goName string, br *Bracket) int {
	if i, exists := b.methIndex[name]; exists {
		return i
	}
	b.methods = append(b.methods, methodEntry{
		Name:    name,
		Params:  params,
		Return:  ret,
		goName:  goName,
		bracket: br,
	})
	b.methIndex[name] = len(b.methods) - 1
	return len(b.methods) - 1
}

func (b *descriptionBuilder) addClassInfo(key, value string) {
	b.classInfo = append(b.classInfo, classInfoEntry{Key: key, Value: value})
}

func (b *descriptionBuilder) setDefaultProperty(name string) {
	b.addClassInfo(infoDefaultProperty, name)
}

// finalize compiles the accumulated entries. The result is immutable and is
// the only thing the frontend's registration path reads.
func (b *descriptionBuilder) finalize() *Description {
	if b.final != nil {
		return b.final
	}

	d := &Description{
		Name:       b.name,
		Properties: append([]propertyEntry(nil), b.properties...),
		Methods:    append([]methodEntry(nil), b.methods...),
		Signals:    append([]signalEntry(nil), b.signals...),
		ClassInfo:  append([]classInfoEntry(nil), b.classInfo...),
		propIndex:  make(map[string]int, len(b.properties)),
		methIndex:  make(map[string]int, len(b.methods)),
		sigIndex:   make(map[string]int, len(b.signals)),
	}
	for i, p := range d.Properties {
		d.propIndex[p.Name] = i
	}
	for i, m := range d.Methods {
		d.methIndex[m.Name] = i
	}
	for i, s := range d.Signals {
		d.sigIndex[s.Name] = i
	}

	b.final = d
	return d
}

func changedSignalName(property string) string {
	return property + "Changed"
}

// Description is the finalized object-model description consumed by the
// frontend. It never changes after finalize; members discovered later must
// associate with an existing slot by name.
type Description struct {
	Name       string
	Properties []propertyEntry
	Methods    []methodEntry
	Signals    []signalEntry
	ClassInfo  []classInfoEntry

	propIndex map[string]int
	methIndex map[string]int
	sigIndex  map[string]int
}

func (d *Description) PropertyIndex(name string) int {
	if i, ok := d.propIndex[name]; ok {
		return i
	}
	return -1
}

func (d *Description) MethodIndex(name string) int {
	if i, ok := d.methIndex[name]; ok {
		return i
	}
	return -1
}

func (d *Description) SignalIndex(name string) int {
	if i, ok := d.sigIndex[name]; ok {
		return i
	}
	return -1
}

// MarshalJSON encodes the description in the typeinfo structure expected by
// the client.
func (d *Description) MarshalJSON() ([]byte, error) {
	props := make(map[string]string, len(d.Properties))
	for _, p := range d.Properties {
		props[p.Name] = p.Type
	}
	methods := make(map[string]interface{}, len(d.Methods))
	for _, m := range d.Methods {
		params := m.Params
		if params == nil {
			params = []string{}
		}
		methods[m.Name] = struct {
			Params []string `json:"params"`
			Return string   `json:"return"`
		}{params, m.Return}
	}
	signals := make(map[string][]string, len(d.Signals))
	for _, s := range d.Signals {
		params := s.Params
		if params == nil {
			params = []string{}
		}
		signals[s.Name] = params
	}
	info := make(map[string]string, len(d.ClassInfo))
	for _, ci := range d.ClassInfo {
		info[ci.Key] = ci.Value
	}

	return json.Marshal(struct {
		Name       string                 `json:"name"`
		Properties map[string]string      `json:"properties"`
		Methods    map[string]interface{} `json:"methods"`
		Signals    map[string][]string    `json:"signals"`
		ClassInfo  map[string]string      `json:"classInfo"`
	}{d.Name, props, methods, signals, info})
}

func (d *Description) String() string {
	str, _ := json.MarshalIndent(d, "", "  ")
	return string(str)
}
