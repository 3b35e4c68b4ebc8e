package reconcile

import (
	"container/heap"
	"time"
)

// Scheduler is a single-threaded delayed-task queue. Tasks run only from
// RunDue, on the caller's goroutine, in deadline order (submission order for
// equal deadlines).
type Scheduler struct {
	now   func() time.Time
	tasks taskHeap
	seq   uint64
}

// Handle cancels a scheduled task.
type Handle struct {
	task *task
}

type task struct {
	at    time.Time
	seq   uint64
	fn    func()
	index int
	done  bool
}

// NewScheduler builds a scheduler reading time from now.
func NewScheduler(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{now: now}
}

// After schedules fn to run once d has elapsed.
func (s *Scheduler) After(d time.Duration, fn func()) Handle {
	s.seq++
	t := &task{at: s.now().Add(d), seq: s.seq, fn: fn}
	heap.Push(&s.tasks, t)
	return Handle{task: t}
}

// Cancel removes the task if it has not run yet. It reports whether the
// task was still pending.
func (s *Scheduler) Cancel(h Handle) bool {
	t := h.task
	if t == nil || t.done {
		return false
	}
	t.done = true
	heap.Remove(&s.tasks, t.index)
	return true
}

// Active reports whether the handle refers to a task that has not run.
func (h Handle) Active() bool {
	return h.task != nil && !h.task.done
}

// RunDue runs every task whose deadline is at or before now, including
// tasks scheduled by those tasks that are already due. It returns the
// number of tasks run.
func (s *Scheduler) RunDue(now time.Time) int {
	ran := 0
	for len(s.tasks) > 0 {
		next := s.tasks[0]
		if next.at.After(now) {
			break
		}
		heap.Pop(&s.tasks)
		next.done = true
		next.fn()
		ran++
	}
	return ran
}

// NextDeadline returns the earliest pending deadline.
func (s *Scheduler) NextDeadline() (time.Time, bool) {
	if len(s.tasks) == 0 {
		return time.Time{}, false
	}
	return s.tasks[0].at, true
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int { return len(s.tasks) }

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
