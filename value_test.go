package qtbridge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVariantPrimitives(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		out  interface{}
	}{
		{"string", "hello", "hello"},
		{"int", 42, int32(42)},
		{"int64Narrows", int64(1 << 40), int32(0)},
		{"uint", uint(7), int32(7)},
		{"float", 2.5, 2.5},
		{"float32", float32(1.5), 1.5},
		{"bool", true, true},
		{"nil", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.out, toVariant(tc.in)); diff != "" {
				t.Errorf("conversion mismatch:\n%s", diff)
			}
		})
	}
}

func TestVariantRoundTrip(t *testing.T) {
	values := []interface{}{"x", int32(-3), 2.25, true, nil}
	for _, v := range values {
		if got := fromVariant(toVariant(v)); got != v {
			t.Errorf("%#v did not survive the round trip: %#v", v, got)
		}
	}
}

func TestVariantContainers(t *testing.T) {
	got := toVariant([]int{1, 2})
	if diff := cmp.Diff([]interface{}{int32(1), int32(2)}, got); diff != "" {
		t.Errorf("slice conversion:\n%s", diff)
	}

	got = toVariant(map[int]string{3: "c"})
	if diff := cmp.Diff(map[string]interface{}{"3": "c"}, got); diff != "" {
		t.Errorf("map keys do not stringify:\n%s", diff)
	}

	nested := toVariant(map[string]interface{}{"rows": []interface{}{int64(1)}})
	want := map[string]interface{}{"rows": []interface{}{int32(1)}}
	if diff := cmp.Diff(want, nested); diff != "" {
		t.Errorf("nested conversion:\n%s", diff)
	}
}

type opaque struct{ a, b int }

func TestVariantFallbackStringifies(t *testing.T) {
	v := toVariant(opaque{1, 2})
	if _, ok := v.(string); !ok {
		t.Errorf("unconvertible value became %T, expected a string", v)
	}
}

func TestVariantPointerDeref(t *testing.T) {
	s := "deep"
	p := &s
	if got := toVariant(&p); got != "deep" {
		t.Errorf("pointer chain converted to %#v", got)
	}
	var nilPtr *string
	if got := toVariant(nilPtr); got != nil {
		t.Errorf("nil pointer converted to %#v", got)
	}
}

func TestUnwrapDynamic(t *testing.T) {
	boxed := map[string]interface{}{wireTag: "value", "value": "inner"}
	if got := unwrapDynamic(boxed); got != "inner" {
		t.Errorf("boxed value unwrapped to %#v", got)
	}

	plain := map[string]interface{}{"value": "inner"}
	if diff := cmp.Diff(plain, unwrapDynamic(plain)); diff != "" {
		t.Errorf("untagged map was altered:\n%s", diff)
	}
	if got := unwrapDynamic("text"); got != "text" {
		t.Errorf("plain value unwrapped to %#v", got)
	}
}

func TestObjectRefIdentifier(t *testing.T) {
	ref := map[string]interface{}{wireTag: "object", "identifier": "obj-7"}
	if got := objectRefIdentifier(ref); got != "obj-7" {
		t.Errorf("reference resolved to %q", got)
	}
	if objectRefIdentifier(map[string]interface{}{wireTag: "value"}) != "" {
		t.Error("boxed value mistaken for an object reference")
	}
	if objectRefIdentifier("obj-7") != "" {
		t.Error("plain string mistaken for an object reference")
	}
}
