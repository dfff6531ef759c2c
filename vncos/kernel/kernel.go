package kernel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lcdvnc/hal"

	"golang.org/x/sync/errgroup"
)

var errTaskReturned = errors.New("task returned")

// DefaultRestartDelay is the pause before a failed task is started again.
const DefaultRestartDelay = time.Second

type TaskID uint8

// Priority orders task start-up; higher starts first. Goroutines are not
// preemptively prioritized, so it is also the order tasks are listed in.
type Priority uint8

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityRealtime
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityRealtime:
		return "realtime"
	default:
		return fmt.Sprintf("prio(%d)", uint8(p))
	}
}

// Task is a long-running loop. Run should return only when ctx is done;
// any other return is treated as a failure and the task is restarted.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// TaskInfo describes a registered task.
type TaskInfo struct {
	ID       TaskID
	Name     string
	Priority Priority
	Restarts uint32
}

type taskState struct {
	id       TaskID
	name     string
	prio     Priority
	task     Task
	restarts atomic.Uint32
}

// Kernel supervises a fixed set of tasks. No task failure stops the
// kernel; only cancelling the context passed to Run does.
type Kernel struct {
	log          hal.Logger
	restartDelay time.Duration

	mu    sync.Mutex
	tasks []*taskState
}

func New(log hal.Logger) *Kernel {
	return &Kernel{log: log, restartDelay: DefaultRestartDelay}
}

func (k *Kernel) SetRestartDelay(d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.restartDelay = d
}

func (k *Kernel) logf(format string, args ...any) {
	if k.log == nil {
		return
	}
	k.log.WriteLineString("kernel: " + fmt.Sprintf(format, args...))
}

// AddTask registers a task and returns its ID. Tasks added after Run has
// started are not scheduled.
func (k *Kernel) AddTask(name string, prio Priority, t Task) TaskID {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := TaskID(len(k.tasks))
	k.tasks = append(k.tasks, &taskState{id: id, name: name, prio: prio, task: t})
	return id
}

// Tasks lists registered tasks, highest priority first.
func (k *Kernel) Tasks() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]TaskInfo, 0, len(k.tasks))
	for _, st := range k.ordered() {
		out = append(out, TaskInfo{ID: st.id, Name: st.name, Priority: st.prio, Restarts: st.restarts.Load()})
	}
	return out
}

func (k *Kernel) ordered() []*taskState {
	tasks := append([]*taskState(nil), k.tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].prio > tasks[j].prio })
	return tasks
}

// Run starts every task and blocks until ctx is cancelled.
func (k *Kernel) Run(ctx context.Context) error {
	k.mu.Lock()
	tasks := k.ordered()
	delay := k.restartDelay
	k.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range tasks {
		st := st
		k.logf("start %s (%s)", st.name, st.prio)
		g.Go(func() error { return k.supervise(gctx, st, delay) })
	}
	return g.Wait()
}

func (k *Kernel) supervise(ctx context.Context, st *taskState, delay time.Duration) error {
	for {
		err := k.runOnce(ctx, st)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st.restarts.Add(1)
		k.logf("task %s stopped: %v; restart in %s", st.name, err, delay)
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (k *Kernel) runOnce(ctx context.Context, st *taskState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			info := PanicInfo{TaskID: st.id, Task: st.name, Value: r, Stack: captureStack()}
			if !reportPanic(info) {
				k.logf("task %s panic: %v", st.name, r)
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := st.task.Run(ctx); err != nil {
		return err
	}
	return errTaskReturned
}
