package orchestrator

// ringLog is a FIFO log with fixed capacity; pushing onto a full log evicts
// the oldest entry. It is not safe for concurrent use and is only touched
// from the orchestrator loop.
type ringLog[T any] struct {
	items    []T
	capacity int
}

func newRingLog[T any](capacity int) *ringLog[T] {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ringLog[T]{items: make([]T, 0, capacity), capacity: capacity}
}

// push appends v and reports whether an entry was evicted to make room.
func (r *ringLog[T]) push(v T) bool {
	evicted := false
	if len(r.items) == r.capacity {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
		evicted = true
	}
	r.items = append(r.items, v)
	return evicted
}

func (r *ringLog[T]) len() int { return len(r.items) }

// snapshot returns a copy, oldest first.
func (r *ringLog[T]) snapshot() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// removeFirst deletes the oldest entry matching fn.
func (r *ringLog[T]) removeFirst(fn func(T) bool) bool {
	for i, v := range r.items {
		if fn(v) {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

// removeAll deletes every entry matching fn and returns how many went.
func (r *ringLog[T]) removeAll(fn func(T) bool) int {
	kept := r.items[:0]
	for _, v := range r.items {
		if !fn(v) {
			kept = append(kept, v)
		}
	}
	n := len(r.items) - len(kept)
	clear(r.items[len(kept):])
	r.items = kept
	return n
}

// updateLast applies fn to the newest entries until it returns true.
func (r *ringLog[T]) updateLast(fn func(*T) bool) bool {
	for i := len(r.items) - 1; i >= 0; i-- {
		if fn(&r.items[i]) {
			return true
		}
	}
	return false
}
