package kernel

import "sync/atomic"

// PanicInfo contains details about a recovered task panic.
type PanicInfo struct {
	TaskID TaskID
	Task   string
	Value  any
	Stack  []byte
}

var (
	panicCount   atomic.Uint32
	panicHandler atomic.Value // func(PanicInfo)
)

// SetPanicHandler installs a process-wide panic reporter. It is called
// for every recovered task panic, before the task is restarted, and must
// not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

// Panics returns the number of task panics recovered so far.
func Panics() uint32 {
	return panicCount.Load()
}

func reportPanic(info PanicInfo) bool {
	panicCount.Add(1)
	if v := panicHandler.Load(); v != nil {
		if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
			fn(info)
			return true
		}
	}
	return false
}
