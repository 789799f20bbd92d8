package resolve

// A task is one unit of resolver work. Only package evaluation exists
// today; the queue semantics (FIFO with skip-and-requeue while preloads
// are pending) live in the main loop.
type task interface {
	_task()
}

// evalTask asks for dest's relations to be evaluated and folded into the
// resolver state.
type evalTask struct {
	dest *PackageRequest
}

func (evalTask) _task() {}

// taskQueue is a FIFO of pending work.
type taskQueue struct {
	items []task
}

func (q *taskQueue) push(t task) {
	q.items = append(q.items, t)
}

func (q *taskQueue) pop() (task, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *taskQueue) len() int {
	return len(q.items)
}

// pendingEvalDests returns the destination of every queued evaluation, in
// queue order.
func (q *taskQueue) pendingEvalDests() []*PackageRequest {
	var out []*PackageRequest
	for _, t := range q.items {
		if et, ok := t.(evalTask); ok {
			out = append(out, et.dest)
		}
	}
	return out
}
