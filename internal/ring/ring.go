// Package ring provides a fixed-capacity FIFO that overwrites its oldest
// element when full.
package ring

// Ring holds up to Cap elements. It is not safe for concurrent use;
// callers synchronize.
type Ring[T any] struct {
	buf   []T
	head  int // next write position
	count int
}

// New creates a Ring with room for capacity elements (at least one).
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. It reports whether the oldest element was overwritten.
func (r *Ring[T]) Push(v T) (overwrote bool) {
	overwrote = r.count == len(r.buf)
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if !overwrote {
		r.count++
	}
	return overwrote
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Do calls fn for each element, oldest first.
func (r *Ring[T]) Do(fn func(T)) {
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		fn(r.buf[(start+i)%len(r.buf)])
	}
}

// Items returns a copy of the elements, oldest first. It returns nil when
// the ring is empty.
func (r *Ring[T]) Items() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, 0, r.count)
	r.Do(func(v T) { out = append(out, v) })
	return out
}

// Drain returns the elements, oldest first, and empties the ring.
func (r *Ring[T]) Drain() []T {
	out := r.Items()
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.count = 0, 0
	return out
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)], true
}
