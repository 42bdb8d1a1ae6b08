package vulkan

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vulkanese/engine/core"
)

// Scalar is any Go type that maps one to one onto a buffer item.
type Scalar interface {
	float32 | float64 | int32 | uint32 | uint16
}

func sizeOf[T Scalar]() uint32 {
	var zero T
	return uint32(unsafe.Sizeof(zero))
}

func (b *Buffer) checkAccess(itemSize uint32, start, count uint64) error {
	if b.released {
		return errors.Wrapf(core.ErrReleased, "buffer `%s`", b.name)
	}
	if !b.hostVisible || b.mapped == nil {
		return errors.Wrapf(core.ErrNotHostVisible, "buffer `%s`", b.name)
	}
	if itemSize != b.elementType.ItemSize() {
		return errors.Wrapf(core.ErrSizeMismatch, "buffer `%s`: %d byte items addressed with a %d byte type", b.name, b.elementType.ItemSize(), itemSize)
	}
	if start > b.count || count > b.count-start {
		return errors.Wrapf(core.ErrOutOfRange, "buffer `%s`: [%d, %d) outside %d elements", b.name, start, start+count, b.count)
	}
	return nil
}

// Write stores data at logical elements [start, start+len(data)).
func Write[T Scalar](b *Buffer, start int, data []T) error {
	if start < 0 {
		return errors.Wrapf(core.ErrOutOfRange, "buffer `%s`: negative start %d", b.name, start)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, n := uint64(start), uint64(len(data))
	if err := b.checkAccess(sizeOf[T](), s, n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	for i, v := range data {
		off := (s + uint64(i)) * b.stride
		putScalar(b.mapped[off:], v)
	}
	b.markDirty(s*b.stride, (s+n-1)*b.stride+uint64(b.elementType.ItemSize()))
	return nil
}

// Set replaces the whole contents of the buffer. len(data) must equal the
// element count.
func Set[T Scalar](b *Buffer, data []T) error {
	if uint64(len(data)) != b.count {
		return errors.Wrapf(core.ErrSizeMismatch, "buffer `%s`: %d elements written to %d", b.name, len(data), b.count)
	}
	return Write(b, 0, data)
}

func WriteAt[T Scalar](b *Buffer, index int, value T) error {
	return Write(b, index, []T{value})
}

// Read returns count logical elements starting at start.
func Read[T Scalar](b *Buffer, start, count int) ([]T, error) {
	if start < 0 || count < 0 {
		return nil, errors.Wrapf(core.ErrOutOfRange, "buffer `%s`: invalid range %d+%d", b.name, start, count)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, n := uint64(start), uint64(count)
	if err := b.checkAccess(sizeOf[T](), s, n); err != nil {
		return nil, err
	}
	if !b.coherent && n > 0 {
		if err := b.invalidateLocked(s*b.stride, (s+n)*b.stride); err != nil {
			return nil, err
		}
	}
	out := make([]T, n)
	for i := range out {
		off := (s + uint64(i)) * b.stride
		out[i] = getScalar[T](b.mapped[off:])
	}
	return out, nil
}

// Get returns every element of the buffer.
func Get[T Scalar](b *Buffer) ([]T, error) {
	return Read[T](b, 0, int(b.count))
}

func ReadAt[T Scalar](b *Buffer, index int) (T, error) {
	out, err := Read[T](b, index, 1)
	if err != nil {
		var zero T
		return zero, err
	}
	return out[0], nil
}

// WriteBytes copies raw bytes to the start of the mapped region. It
// ignores the element stride and is meant for uniform structs laid out by
// the caller.
func (b *Buffer) WriteBytes(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return errors.Wrapf(core.ErrReleased, "buffer `%s`", b.name)
	}
	if !b.hostVisible || b.mapped == nil {
		return errors.Wrapf(core.ErrNotHostVisible, "buffer `%s`", b.name)
	}
	if uint64(len(data)) != b.size {
		return errors.Wrapf(core.ErrSizeMismatch, "buffer `%s`: %d bytes written to %d", b.name, len(data), b.size)
	}
	copy(b.mapped, data)
	b.markDirty(0, b.size)
	return nil
}

func (b *Buffer) invalidateLocked(lo, hi uint64) error {
	atom := b.device.NonCoherentAtomSize()
	if atom == 0 {
		atom = 1
	}
	lo = lo / atom * atom
	hi = (hi + atom - 1) / atom * atom
	if hi > b.allocationSize {
		hi = b.allocationSize
	}
	if err := b.device.InvalidateMappedMemory(b.memory, lo, hi-lo); err != nil {
		return errors.Wrapf(core.ErrDevice, "buffer `%s`: invalidate: %v", b.name, err)
	}
	return nil
}

func putScalar[T Scalar](dst []byte, v T) {
	switch x := any(v).(type) {
	case float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(x))
	case float64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(x))
	case int32:
		binary.LittleEndian.PutUint32(dst, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(dst, x)
	case uint16:
		binary.LittleEndian.PutUint16(dst, x)
	}
}

func getScalar[T Scalar](src []byte) T {
	var out T
	switch p := any(&out).(type) {
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(src))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(src))
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(src))
	case *uint32:
		*p = binary.LittleEndian.Uint32(src)
	case *uint16:
		*p = binary.LittleEndian.Uint16(src)
	}
	return out
}
