package reap

import (
	"fmt"
	"sync"
	"time"
)

// logRingCap is the fixed capacity of the shared log ring.
const logRingCap = 1000

// Lifecycle step tags attached to log lines. The TUI colors by tag.
const (
	StepFetch    = "fetch"
	StepClone    = "clone"
	StepEdit     = "edit"
	StepBuild    = "build"
	StepInstall  = "install"
	StepCleanup  = "cleanup"
	StepGpg      = "gpg"
	StepHook     = "hook"
	StepPriority = "priority"
	StepTiming   = "timing"
	StepBackup   = "backup"
	StepResolve  = "resolve"
	StepVerify   = "verify"
)

// LogLine is one structured entry in the shared log ring.
type LogLine struct {
	Time  time.Time
	Pkg   string
	Step  string
	Level string
	Msg   string
}

func (l LogLine) String() string {
	if l.Pkg != "" {
		return fmt.Sprintf("%s [%s] %s: %s", l.Time.Format("15:04:05"), l.Step, l.Pkg, l.Msg)
	}
	return fmt.Sprintf("%s [%s] %s", l.Time.Format("15:04:05"), l.Step, l.Msg)
}

// LogPane is a bounded ring of log lines shared between the install
// pipeline and the TUI. Writers append; readers take a snapshot copy.
// The lock is held for single method calls only.
type LogPane struct {
	mu    sync.Mutex
	lines []LogLine
	echo  func(LogLine)
	clock func() time.Time
}

// NewLogPane returns an empty pane. echo, when non-nil, receives every
// appended line (the CLI uses it to mirror lines to the terminal).
func NewLogPane(echo func(LogLine)) *LogPane {
	return &LogPane{echo: echo, clock: time.Now}
}

// Append adds a line, dropping the oldest entry past capacity.
func (p *LogPane) Append(pkg, step, level, msg string) {
	p.mu.Lock()
	line := LogLine{Time: p.clock(), Pkg: pkg, Step: step, Level: level, Msg: msg}
	p.lines = append(p.lines, line)
	if len(p.lines) > logRingCap {
		p.lines = p.lines[len(p.lines)-logRingCap:]
	}
	echo := p.echo
	p.mu.Unlock()
	if echo != nil {
		echo(line)
	}
}

func (p *LogPane) Infof(pkg, step, format string, args ...any) {
	p.Append(pkg, step, "info", fmt.Sprintf(format, args...))
}

func (p *LogPane) Warnf(pkg, step, format string, args ...any) {
	p.Append(pkg, step, "warn", fmt.Sprintf(format, args...))
}

func (p *LogPane) Errorf(pkg, step, format string, args ...any) {
	p.Append(pkg, step, "error", fmt.Sprintf(format, args...))
}

// Snapshot returns a copy of the current ring contents, oldest first.
func (p *LogPane) Snapshot() []LogLine {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LogLine, len(p.lines))
	copy(out, p.lines)
	return out
}

// Len reports the number of retained lines.
func (p *LogPane) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lines)
}
