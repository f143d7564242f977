package qtbridge

import (
	"testing"
)

type ChildItem struct {
	Label string
}

type HolderItem struct {
	Children []*ChildItem
}

func holderWithChildren(t *testing.T) (*Connection, *Model, *ListProperty) {
	t.Helper()
	c, _ := newTestConnection()

	// Element registration first, so the holder's field describes as a
	// live list.
	if _, err := c.RegisterType(ChildItem{}, nil); err != nil {
		t.Fatalf("element registration failed: %s", err)
	}
	if _, err := c.RegisterType(HolderItem{}, nil); err != nil {
		t.Fatalf("holder registration failed: %s", err)
	}

	holder, err := c.createObject("HolderItem", "holder-1")
	if err != nil {
		t.Fatalf("holder create failed: %s", err)
	}

	id := holder.Describe().PropertyIndex("children")
	if id < 0 {
		t.Fatal("children property not described")
	}
	if tag := holder.Describe().Properties[id].Type; tag != tagList {
		t.Fatalf("children described as %q, expected %q", tag, tagList)
	}

	v, err := holder.ReadProperty(id)
	if err != nil {
		t.Fatalf("list read failed: %s", err)
	}
	list, ok := v.(*ListProperty)
	if !ok {
		t.Fatalf("list property read back as %T", v)
	}
	return c, holder, list
}

func TestListAppendAndAt(t *testing.T) {
	c, holder, list := holderWithChildren(t)

	child, err := c.createObject("ChildItem", "child-1")
	if err != nil {
		t.Fatalf("child create failed: %s", err)
	}
	if err := list.Append(child); err != nil {
		t.Fatalf("append failed: %s", err)
	}

	if list.Count() != 1 {
		t.Errorf("count is %d after append", list.Count())
	}
	if list.At(0) != child {
		t.Error("element does not resolve to its adapter")
	}
	if list.At(1) != nil || list.At(-1) != nil {
		t.Error("out-of-range element resolved")
	}

	backend := holder.Backend().(*HolderItem)
	if len(backend.Children) != 1 || backend.Children[0] != child.Backend() {
		t.Error("append did not reach the live slice")
	}
}

func TestListAppendByReference(t *testing.T) {
	c, _, list := holderWithChildren(t)

	if _, err := c.createObject("ChildItem", "child-2"); err != nil {
		t.Fatalf("child create failed: %s", err)
	}
	ref := map[string]interface{}{wireTag: "object", "identifier": "child-2"}
	if err := list.Append(ref); err != nil {
		t.Fatalf("append by reference failed: %s", err)
	}
	if list.Count() != 1 {
		t.Errorf("count is %d after append", list.Count())
	}
}

func TestListRejectsForeignValues(t *testing.T) {
	_, _, list := holderWithChildren(t)

	if err := list.Append("just a string"); err == nil {
		t.Error("list accepted an unregistered value")
	}
	if err := list.Append(&ChildItem{Label: "stray"}); err == nil {
		t.Error("list accepted an object that was never created")
	}
	if list.Count() != 0 {
		t.Errorf("count is %d after rejected appends", list.Count())
	}
}

func TestListClear(t *testing.T) {
	c, holder, list := holderWithChildren(t)

	for _, id := range []string{"c1", "c2"} {
		child, err := c.createObject("ChildItem", id)
		if err != nil {
			t.Fatalf("child create failed: %s", err)
		}
		if err := list.Append(child); err != nil {
			t.Fatalf("append failed: %s", err)
		}
	}

	if err := list.Clear(); err != nil {
		t.Fatalf("clear failed: %s", err)
	}
	if list.Count() != 0 {
		t.Errorf("count is %d after clear", list.Count())
	}
	if len(holder.Backend().(*HolderItem).Children) != 0 {
		t.Error("clear did not reach the live slice")
	}
}

func TestListSeesExternalMutation(t *testing.T) {
	c, holder, list := holderWithChildren(t)

	child, err := c.createObject("ChildItem", "ext-1")
	if err != nil {
		t.Fatalf("child create failed: %s", err)
	}
	backend := holder.Backend().(*HolderItem)
	backend.Children = append(backend.Children, child.Backend().(*ChildItem))

	if list.Count() != 1 {
		t.Error("external append is not visible through the handle")
	}
	if list.At(0) != child {
		t.Error("externally appended element does not resolve")
	}
}
