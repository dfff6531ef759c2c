package app

import (
	"fmt"
	"strings"

	"lcdvnc/hal"
	"lcdvnc/vncos/kernel"
)

// Printer is where the panic summary is shown on screen.
type Printer interface {
	PrintString(text string)
}

func installPanicHandler(log hal.Logger, out Printer) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := panicLines(info)
		if log != nil {
			for _, line := range lines {
				log.WriteLineString(line)
			}
		}
		if out != nil {
			out.PrintString(lines[0] + "\n")
		}
	})
}

// panicLines renders info as a header line followed by the non-empty
// stack lines.
func panicLines(info kernel.PanicInfo) []string {
	lines := []string{fmt.Sprintf("panic: task=%s(%d) %v", info.Task, info.TaskID, info.Value)}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
