package qtbridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
)

var dummyConnection *Connection

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }

// recordingStream captures outgoing messages for inspection. Reads never
// supply data, so the connection's handler loop stays parked.
type recordingStream struct {
	bytes.Buffer
}

func (r *recordingStream) Close() error { return nil }

func newTestConnection() (*Connection, *recordingStream) {
	r, _ := io.Pipe()
	out := &recordingStream{}
	return NewConnectionSplit(r, out), out
}

func sentMessages(t *testing.T, out *recordingStream) []map[string]interface{} {
	t.Helper()
	var msgs []map[string]interface{}
	rd := bufio.NewReader(bytes.NewReader(out.Bytes()))
	for {
		sizeStr, err := rd.ReadString(' ')
		if err != nil {
			return msgs
		}
		size, err := strconv.Atoi(strings.TrimSpace(sizeStr))
		if err != nil {
			t.Fatalf("malformed frame size %q", sizeStr)
		}
		blob := make([]byte, size)
		if _, err := io.ReadFull(rd, blob); err != nil {
			t.Fatalf("truncated frame: %s", err)
		}
		rd.ReadByte()

		var msg map[string]interface{}
		if err := json.Unmarshal(blob, &msg); err != nil {
			t.Fatalf("frame is not JSON: %s", err)
		}
		msgs = append(msgs, msg)
	}
}

func TestMain(m *testing.M) {
	r, _ := io.Pipe()
	dummyConnection = NewConnectionSplit(r, discardCloser{})
	os.Exit(m.Run())
}

type PlainObject struct {
	Title string
}

func TestRegisterInstanceRequiresRowShape(t *testing.T) {
	c, _ := newTestConnection()

	_, err := c.RegisterInstance(&PlainObject{}, "Plain", "")
	if err == nil {
		t.Fatal("registration succeeded without a Data method")
	}
	var cfg *ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected a configuration error, got %T: %s", err, err)
	}
	if cfg.Remedy == "" {
		t.Error("configuration error carries no remediation text")
	}
	if !strings.Contains(cfg.Remedy, "Data") {
		t.Errorf("remediation text does not mention the Data method: %q", cfg.Remedy)
	}
}

func TestRegisterInstanceNotAStruct(t *testing.T) {
	c, _ := newTestConnection()
	if _, err := c.RegisterInstance(42, "Number", ""); err == nil {
		t.Error("registration succeeded for a non-struct value")
	}
}

func TestRegisterInstance(t *testing.T) {
	c, _ := newTestConnection()

	lines := &LineModel{lines: []string{"a", "b"}}
	h, err := c.RegisterInstance(lines, "Lines", "")
	if err != nil {
		t.Fatalf("registration failed: %s", err)
	}
	if h.URI() != "backend" {
		t.Errorf("default uri is %q, expected backend", h.URI())
	}
	if h.Adapter() == nil {
		t.Fatal("instance registration has no adapter")
	}
	if h.Adapter().Identifier() == "" {
		t.Error("adapter has no identifier")
	}
	if c.adapterFor(lines) != h.Adapter() {
		t.Error("instance registry does not resolve the backend to its adapter")
	}

	// Same object again adopts the existing registration.
	h2, err := c.RegisterInstance(lines, "Lines", "")
	if err != nil {
		t.Fatalf("re-registration failed: %s", err)
	}
	if h2 != h {
		t.Error("re-registration produced a second handle")
	}
}

func TestRegisterTypeDuplicate(t *testing.T) {
	c, _ := newTestConnection()

	h1, err := c.RegisterType(ChildItem{}, nil)
	if err != nil {
		t.Fatalf("first registration failed: %s", err)
	}
	h2, err := c.RegisterType(&ChildItem{}, nil)
	if err != nil {
		t.Fatalf("duplicate registration returned an error: %s", err)
	}
	if h1 != h2 {
		t.Error("duplicate registration did not adopt the first handle")
	}
}

func TestRegisterTypeVersion(t *testing.T) {
	c, _ := newTestConnection()

	if _, err := c.RegisterType(ChildItem{}, &TypeOptions{Name: "Versioned", Version: "2.1"}); err != nil {
		t.Fatalf("versioned registration failed: %s", err)
	}
	if h := c.instantiable["Versioned"]; h.versionMajor != 2 || h.versionMinor != 1 {
		t.Errorf("version parsed as %d.%d, expected 2.1", h.versionMajor, h.versionMinor)
	}

	if _, err := c.RegisterType(ChildItem{}, &TypeOptions{Name: "Bad", Version: "latest"}); err == nil {
		t.Error("malformed version accepted")
	}
}

func TestCreateObjectLifecycle(t *testing.T) {
	c, out := newTestConnection()
	if _, err := c.RegisterType(LifecycleItem{}, nil); err != nil {
		t.Fatalf("registration failed: %s", err)
	}

	adapter, err := c.createObject("LifecycleItem", "obj-1")
	if err != nil {
		t.Fatalf("create failed: %s", err)
	}
	backend := adapter.Backend().(*LifecycleItem)
	if !backend.began {
		t.Error("ClassBegin did not run at creation")
	}
	if backend.completed {
		t.Error("ComponentComplete ran before construction finished")
	}

	if err := adapter.WritePropertyNamed("label", "hello"); err != nil {
		t.Fatalf("initial property write failed: %s", err)
	}
	c.completeObject(adapter)

	if !backend.completed {
		t.Error("ComponentComplete did not run")
	}
	if backend.Label != "hello" {
		t.Errorf("initial property not applied: %q", backend.Label)
	}
	if !backend.bracketRan {
		t.Error("completion bracket did not run")
	}

	// Every property notification fires after completion.
	emits := 0
	for _, msg := range sentMessages(t, out) {
		if msg["command"] == "EMIT" && strings.HasSuffix(msg["method"].(string), "Changed") {
			emits++
		}
	}
	if emits < len(adapter.Describe().Properties) {
		t.Errorf("%d change notifications after completion, expected at least %d", emits, len(adapter.Describe().Properties))
	}

	c.destroyObject(adapter)
	if c.Object("obj-1") != nil {
		t.Error("destroyed object still resolvable by identifier")
	}
	if c.adapterFor(backend) != nil {
		t.Error("destroyed object still in the identity registry")
	}
}

func TestCreateUnknownType(t *testing.T) {
	c, _ := newTestConnection()
	if _, err := c.createObject("Nope", "obj-1"); err == nil {
		t.Error("create of an unregistered type succeeded")
	}
}

type LifecycleItem struct {
	Label string

	began      bool
	completed  bool
	bracketRan bool
}

func (l *LifecycleItem) ClassBegin()        { l.began = true }
func (l *LifecycleItem) ComponentComplete() { l.completed = true }

func (l *LifecycleItem) afterComplete() { l.bracketRan = true }

var _ = Complete((*LifecycleItem).afterComplete)
