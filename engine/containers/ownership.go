package containers

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Handle points into an OwnershipTree. The zero Handle means "no parent".
// A handle stays valid until the node it names is released; afterwards the
// slot may be reused with a new generation and the old handle goes stale.
type Handle struct {
	index      uint32
	generation uint32
}

// NoParent adds a node at the root of the tree.
var NoParent = Handle{}

func (h Handle) IsZero() bool {
	return h.generation == 0
}

// Resource is anything the tree can tear down. Release must be idempotent.
type Resource interface {
	Release()
}

// ReleaseFunc adapts a function to the tree. Errors are collected and
// returned by Release/ReleaseAll after the whole subtree is torn down.
// Release functions run with the tree locked and must not call back into it.
type ReleaseFunc func() error

type ownerNode struct {
	id         uuid.UUID
	name       string
	parent     Handle
	children   []Handle
	release    ReleaseFunc
	generation uint32
	alive      bool
}

// OwnershipTree gives every GPU object exactly one owner. Releasing a node
// releases its children first, newest to oldest, and then the node itself.
type OwnershipTree struct {
	mu    sync.Mutex
	nodes []ownerNode
	free  []uint32
	roots []Handle
}

func NewOwnershipTree() *OwnershipTree {
	return &OwnershipTree{
		nodes: make([]ownerNode, 0, 64),
	}
}

// Add registers r under parent.
func (t *OwnershipTree) Add(parent Handle, name string, r Resource) (Handle, error) {
	if r == nil {
		return Handle{}, errors.Newf("ownership: nil resource `%s`", name)
	}
	return t.AddFunc(parent, name, func() error {
		r.Release()
		return nil
	})
}

// AddFunc registers a release function under parent. A nil function
// creates a pure grouping node.
func (t *OwnershipTree) AddFunc(parent Handle, name string, release ReleaseFunc) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !parent.IsZero() && !t.validLocked(parent) {
		return Handle{}, errors.Newf("ownership: parent of `%s` is not alive", name)
	}

	var index uint32
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.nodes = append(t.nodes, ownerNode{})
		index = uint32(len(t.nodes) - 1)
	}

	node := &t.nodes[index]
	node.generation++
	node.id = uuid.New()
	node.name = name
	node.parent = parent
	node.children = node.children[:0]
	node.release = release
	node.alive = true

	h := Handle{index: index, generation: node.generation}
	if parent.IsZero() {
		t.roots = append(t.roots, h)
	} else {
		p := &t.nodes[parent.index]
		p.children = append(p.children, h)
	}
	return h, nil
}

func (t *OwnershipTree) validLocked(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(t.nodes) {
		return false
	}
	n := &t.nodes[h.index]
	return n.alive && n.generation == h.generation
}

// Alive reports whether h still names a live node.
func (t *OwnershipTree) Alive(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.validLocked(h)
}

func (t *OwnershipTree) Name(h Handle) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.validLocked(h) {
		return "", false
	}
	return t.nodes[h.index].name, true
}

// ID is a stable identifier for log correlation.
func (t *OwnershipTree) ID(h Handle) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.validLocked(h) {
		return uuid.Nil, false
	}
	return t.nodes[h.index].id, true
}

func (t *OwnershipTree) Children(h Handle) []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.validLocked(h) {
		return nil
	}
	out := make([]Handle, len(t.nodes[h.index].children))
	copy(out, t.nodes[h.index].children)
	return out
}

// Len is the number of live nodes.
func (t *OwnershipTree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes) - len(t.free)
}

// Release tears down h and everything it owns. Releasing a stale handle
// is a no-op.
func (t *OwnershipTree) Release(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.validLocked(h) {
		return nil
	}
	parent := t.nodes[h.index].parent
	err := t.releaseLocked(h)
	if parent.IsZero() {
		t.roots = removeHandle(t.roots, h)
	} else if t.validLocked(parent) {
		p := &t.nodes[parent.index]
		p.children = removeHandle(p.children, h)
	}
	return err
}

// ReleaseAll tears down every root, newest first.
func (t *OwnershipTree) ReleaseAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	for i := len(t.roots) - 1; i >= 0; i-- {
		err = errors.CombineErrors(err, t.releaseLocked(t.roots[i]))
	}
	t.roots = t.roots[:0]
	return err
}

func (t *OwnershipTree) releaseLocked(h Handle) error {
	if !t.validLocked(h) {
		return nil
	}
	node := &t.nodes[h.index]
	node.alive = false

	var err error
	children := node.children
	for i := len(children) - 1; i >= 0; i-- {
		err = errors.CombineErrors(err, t.releaseLocked(children[i]))
	}

	if node.release != nil {
		if rerr := node.release(); rerr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(rerr, "releasing `%s`", node.name))
		}
	}
	node.release = nil
	node.children = node.children[:0]
	node.parent = Handle{}
	t.free = append(t.free, h.index)
	return err
}

func removeHandle(list []Handle, h Handle) []Handle {
	for i, c := range list {
		if c == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
