package music

// Queue is an ordered FIFO of tracks. It is not safe for concurrent
// use on its own; the engine guards it with its own mutex.
type Queue struct {
	items []Track
}

func (q *Queue) Enqueue(t Track) {
	q.items = append(q.items, t)
}

// Dequeue pops the front of the queue. Calling it on an empty queue is
// not an error.
func (q *Queue) Dequeue() (Track, bool) {
	if len(q.items) == 0 {
		return Track{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *Queue) Clear() {
	q.items = nil
}

// Peek returns a copy of up to n tracks from the front without
// consuming them. n <= 0 means all.
func (q *Queue) Peek(n int) []Track {
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := make([]Track, n)
	copy(out, q.items[:n])
	return out
}

func (q *Queue) Len() int {
	return len(q.items)
}

// History is a bounded stack of finished tracks. Pushing past capacity
// drops the oldest entry.
type History struct {
	items []Track
	max   int
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 50
	}
	return &History{max: max}
}

func (h *History) Push(t Track) {
	h.items = append(h.items, t)
	if len(h.items) > h.max {
		h.items = h.items[1:]
	}
}

func (h *History) Pop() (Track, bool) {
	if len(h.items) == 0 {
		return Track{}, false
	}
	t := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return t, true
}

func (h *History) Len() int {
	return len(h.items)
}
