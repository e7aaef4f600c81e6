package sched

import (
	"sync"

	"github.com/forgebuild/forge/graph"
)

// job is one unit of work handed to a worker: a node index plus the
// user-data tag it was enqueued under, so Cancel can find it later.
type job struct {
	node graph.NodeIndex
	tag  string
}

// queue is the scheduler's pending set: two priority bands, each FIFO,
// mutex-protected, matching spec.md §4.5's "Ordering: within one priority
// band, FIFO. PCH-creating object nodes are raised to high priority."
type queue struct {
	mu       sync.Mutex
	high     []job
	normal   []job
	notEmpty chan struct{} // buffered 1; signals a waiting worker
}

func newQueue() *queue {
	return &queue{notEmpty: make(chan struct{}, 1)}
}

func (q *queue) push(j job, highPriority bool) {
	q.mu.Lock()
	if highPriority {
		q.high = append(q.high, j)
	} else {
		q.normal = append(q.normal, j)
	}
	q.mu.Unlock()
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// pop returns the next job, blocking on notEmpty when none is available.
// It returns ok=false only when closed is signaled via the done channel.
func (q *queue) pop(done <-chan struct{}) (job, bool) {
	for {
		q.mu.Lock()
		j, ok := q.popLocked()
		q.mu.Unlock()
		if ok {
			return j, true
		}
		select {
		case <-q.notEmpty:
			continue
		case <-done:
			return job{}, false
		}
	}
}

func (q *queue) popLocked() (job, bool) {
	if len(q.high) > 0 {
		j := q.high[0]
		q.high = q.high[1:]
		return j, true
	}
	if len(q.normal) > 0 {
		j := q.normal[0]
		q.normal = q.normal[1:]
		return j, true
	}
	return job{}, false
}

// removeTag deletes every queued entry carrying tag, for Cancel. It returns
// the count removed.
func (q *queue) removeTag(tag string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	q.high, removed = filterTag(q.high, tag, removed)
	q.normal, removed = filterTag(q.normal, tag, removed)
	return removed
}

func filterTag(jobs []job, tag string, removed int) ([]job, int) {
	out := jobs[:0]
	for _, j := range jobs {
		if j.tag == tag {
			removed++
			continue
		}
		out = append(out, j)
	}
	return out, removed
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal)
}
