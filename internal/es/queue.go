package es

// Queue is a bounded FIFO of pending events for one service. It is owned by
// the scheduler goroutine and has no locking.
type Queue struct {
	buf   []Event
	head  int
	count int
}

func NewQueue(size int) *Queue {
	return &Queue{buf: make([]Event, size)}
}

// Push appends an event, returning false when the queue is full
func (q *Queue) Push(ev Event) bool {
	if q.count == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = ev
	q.count++
	return true
}

// Pop removes the oldest event
func (q *Queue) Pop() (Event, bool) {
	if q.count == 0 {
		return None, false
	}
	ev := q.buf[q.head]
	q.buf[q.head] = None
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return ev, true
}

func (q *Queue) Len() int { return q.count }
func (q *Queue) Cap() int { return len(q.buf) }

func (q *Queue) Clear() {
	for i := range q.buf {
		q.buf[i] = None
	}
	q.head = 0
	q.count = 0
}
