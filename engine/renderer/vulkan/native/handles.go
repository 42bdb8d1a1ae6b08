package native

import "sync"

// handleTable maps the opaque driver handles to goki/vulkan objects. Zero
// is never handed out, so it keeps meaning the null handle.
type handleTable[T any] struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]T
}

func newHandleTable[T any]() *handleTable[T] {
	return &handleTable[T]{items: make(map[uint64]T)}
}

func (t *handleTable[T]) put(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *handleTable[T]) get(h uint64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[h]
	return v, ok
}

// lookup returns the zero value for unknown handles, which goki/vulkan
// treats as VK_NULL_HANDLE.
func (t *handleTable[T]) lookup(h uint64) T {
	v, _ := t.get(h)
	return v
}

func (t *handleTable[T]) take(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	if ok {
		delete(t.items, h)
	}
	return v, ok
}

func (t *handleTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func lookupAll[T any, H ~uint64](t *handleTable[T], handles []H) []T {
	out := make([]T, len(handles))
	for i, h := range handles {
		out[i] = t.lookup(uint64(h))
	}
	return out
}
