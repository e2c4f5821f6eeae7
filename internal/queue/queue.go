package queue

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicate = errors.New("task already queued for symbol")
	ErrCapacity  = errors.New("task queue at capacity")
)

type TaskQueue struct {
	tasks map[string]*OrderTask
}

func New() *TaskQueue {
	return &TaskQueue{tasks: make(map[string]*OrderTask)}
}

// Admit inserts task if the symbol is free and the queue holds fewer than
// maxTotal tasks.
func (q *TaskQueue) Admit(task *OrderTask, maxTotal int) error {
	if task == nil || task.Symbol == "" {
		return fmt.Errorf("admit: empty task")
	}
	if _, exists := q.tasks[task.Symbol]; exists {
		return fmt.Errorf("%s: %w", task.Symbol, ErrDuplicate)
	}
	if len(q.tasks) >= maxTotal {
		return fmt.Errorf("%d/%d: %w", len(q.tasks), maxTotal, ErrCapacity)
	}
	q.tasks[task.Symbol] = task
	return nil
}

func (q *TaskQueue) Get(symbol string) (*OrderTask, bool) {
	t, ok := q.tasks[symbol]
	return t, ok
}

// Lookup returns the task for symbol only if it is still the task with id.
// A removed or replaced task yields false.
func (q *TaskQueue) Lookup(symbol, id string) (*OrderTask, bool) {
	t, ok := q.tasks[symbol]
	if !ok || t.ID != id {
		return nil, false
	}
	return t, true
}

// Remove deletes the task for symbol and returns it.
func (q *TaskQueue) Remove(symbol string) (*OrderTask, bool) {
	t, ok := q.tasks[symbol]
	if ok {
		delete(q.tasks, symbol)
	}
	return t, ok
}

func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// Filled returns the tasks carrying a position, sorted by symbol.
func (q *TaskQueue) Filled() []*OrderTask {
	out := make([]*OrderTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		if t.Filled() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Snapshot returns value copies of every task, sorted by symbol.
func (q *TaskQueue) Snapshot() []OrderTask {
	out := make([]OrderTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		cp := *t
		if t.ResultPosition != nil {
			pos := *t.ResultPosition
			cp.ResultPosition = &pos
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
