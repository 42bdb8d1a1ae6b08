package containers

import (
	"errors"
	"reflect"
	"testing"
)

type recorder struct {
	order *[]string
	name  string
	calls int
}

func (r *recorder) Release() {
	if r.calls > 0 {
		return
	}
	r.calls++
	*r.order = append(*r.order, r.name)
}

func TestOwnershipTreeReverseTeardown(t *testing.T) {
	var order []string
	tree := NewOwnershipTree()

	mk := func(name string) *recorder { return &recorder{order: &order, name: name} }

	device, _ := tree.Add(NoParent, "device", mk("device"))
	registry, _ := tree.Add(device, "registry", mk("registry"))
	if _, err := tree.Add(registry, "uniform", mk("uniform")); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Add(registry, "storage", mk("storage")); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Add(device, "pipeline", mk("pipeline")); err != nil {
		t.Fatal(err)
	}
	if _, err := tree.Add(NoParent, "window", mk("window")); err != nil {
		t.Fatal(err)
	}

	if err := tree.ReleaseAll(); err != nil {
		t.Fatal(err)
	}
	want := []string{"window", "pipeline", "storage", "uniform", "registry", "device"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("unexpected teardown order\nwant %v\ngot  %v", want, order)
	}
	if tree.Len() != 0 {
		t.Fatalf("expected empty tree, %d nodes left", tree.Len())
	}

	// second teardown is a no-op
	if err := tree.ReleaseAll(); err != nil {
		t.Fatal(err)
	}
	if err := tree.Release(device); err != nil {
		t.Fatal(err)
	}
	if len(order) != len(want) {
		t.Fatalf("resources released twice: %v", order)
	}
}

func TestOwnershipTreeStaleHandles(t *testing.T) {
	var order []string
	tree := NewOwnershipTree()

	a, _ := tree.Add(NoParent, "a", &recorder{order: &order, name: "a"})
	if err := tree.Release(a); err != nil {
		t.Fatal(err)
	}
	b, _ := tree.Add(NoParent, "b", &recorder{order: &order, name: "b"})
	if tree.Alive(a) {
		t.Fatal("released handle must be stale even when its slot is reused")
	}
	if name, ok := tree.Name(b); !ok || name != "b" {
		t.Fatalf("unexpected name %q %v", name, ok)
	}
	if err := tree.Release(a); err != nil {
		t.Fatal(err)
	}
	if !tree.Alive(b) {
		t.Fatal("releasing a stale handle must not touch the reused slot")
	}
	if _, err := tree.Add(a, "orphan", &recorder{order: &order, name: "orphan"}); err == nil {
		t.Fatal("expected error when adding under a dead parent")
	}
}

func TestOwnershipTreeCollectsErrors(t *testing.T) {
	tree := NewOwnershipTree()
	boom := errors.New("boom")

	root, _ := tree.AddFunc(NoParent, "root", nil)
	ran := 0
	_, _ = tree.AddFunc(root, "bad", func() error { ran++; return boom })
	_, _ = tree.AddFunc(root, "good", func() error { ran++; return nil })

	err := tree.Release(root)
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if ran != 2 {
		t.Fatalf("every release function must run, ran %d", ran)
	}
	if len(tree.Children(root)) != 0 {
		t.Fatal("released node must not report children")
	}
}
