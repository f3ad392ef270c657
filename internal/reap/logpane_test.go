package reap

import (
	"fmt"
	"testing"
)

func TestLogPaneRingOverflow(t *testing.T) {
	pane := NewLogPane(nil)
	for i := 0; i < logRingCap+1; i++ {
		pane.Infof("pkg", StepBuild, "line %d", i)
	}
	if got := pane.Len(); got != logRingCap {
		t.Fatalf("Len = %d, want %d", got, logRingCap)
	}
	lines := pane.Snapshot()
	if lines[0].Msg != "line 1" {
		t.Errorf("oldest retained line = %q, want %q", lines[0].Msg, "line 1")
	}
	if last := lines[len(lines)-1].Msg; last != fmt.Sprintf("line %d", logRingCap) {
		t.Errorf("newest line = %q, want %q", last, fmt.Sprintf("line %d", logRingCap))
	}
}

func TestLogPaneSnapshotIsCopy(t *testing.T) {
	pane := NewLogPane(nil)
	pane.Infof("a", StepFetch, "first")
	snap := pane.Snapshot()
	pane.Warnf("b", StepBuild, "second")
	if len(snap) != 1 {
		t.Fatalf("snapshot grew with the pane: len = %d", len(snap))
	}
	snap[0].Msg = "mutated"
	if pane.Snapshot()[0].Msg != "first" {
		t.Error("mutating a snapshot leaked into the pane")
	}
}

func TestLogPaneEcho(t *testing.T) {
	var seen []LogLine
	pane := NewLogPane(func(l LogLine) { seen = append(seen, l) })
	pane.Errorf("pkg", StepInstall, "boom")
	if len(seen) != 1 {
		t.Fatalf("echo received %d lines, want 1", len(seen))
	}
	if seen[0].Level != "error" || seen[0].Msg != "boom" {
		t.Errorf("echoed line = %+v", seen[0])
	}
}

func TestLogLineString(t *testing.T) {
	line := LogLine{Pkg: "yay", Step: StepBuild, Msg: "compiling"}
	s := line.String()
	if want := "[build] yay: compiling"; len(s) < len(want) || s[len(s)-len(want):] != want {
		t.Errorf("String() = %q, want suffix %q", s, want)
	}
	bare := LogLine{Step: StepFetch, Msg: "syncing"}
	if s := bare.String(); s[len(s)-len("[fetch] syncing"):] != "[fetch] syncing" {
		t.Errorf("String() without pkg = %q", s)
	}
}
