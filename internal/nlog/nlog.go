// Package nlog is a minimal leveled logger in the style of the teacher's
// cmn/nlog: per-module verbosity gates, no global mutable level, timestamped
// lines on stderr.
package nlog

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const timeFmt = "15:04:05.000000"

var (
	mu     sync.Mutex
	levels = map[string]int{}
)

// SetLevel sets the verbosity level for module. Higher is more verbose.
func SetLevel(module string, lvl int) {
	mu.Lock()
	levels[module] = lvl
	mu.Unlock()
}

// FastV reports whether module is configured at or above lvl.
func FastV(lvl int, module string) bool {
	mu.Lock()
	cur := levels[module]
	mu.Unlock()
	return cur >= lvl
}

func line(kind, format string, args []any) string {
	ts := time.Now().Format(timeFmt)
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return fmt.Sprintf("%s %s %s\n", ts, kind, msg)
}

// Infoln writes an informational line unconditionally (callers gate with
// FastV when the line is hot-path or high-volume).
func Infoln(args ...any) {
	fmt.Fprint(os.Stderr, line("INFO", fmt.Sprint(args...), nil))
}

// Warningln writes a warning line.
func Warningln(args ...any) {
	fmt.Fprint(os.Stderr, line("WARNING", fmt.Sprint(args...), nil))
}

// Errorln writes an error line.
func Errorln(args ...any) {
	fmt.Fprint(os.Stderr, line("ERROR", fmt.Sprint(args...), nil))
}

// Infof writes a formatted informational line.
func Infof(format string, args ...any) {
	fmt.Fprint(os.Stderr, line("INFO", format, args))
}

// Warningf writes a formatted warning line.
func Warningf(format string, args ...any) {
	fmt.Fprint(os.Stderr, line("WARNING", format, args))
}

// Errorf writes a formatted error line.
func Errorf(format string, args ...any) {
	fmt.Fprint(os.Stderr, line("ERROR", format, args))
}
