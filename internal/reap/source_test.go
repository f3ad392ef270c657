package reap

import "testing"

func TestParseSource(t *testing.T) {
	tests := []struct {
		tok  string
		want Source
		ok   bool
	}{
		{"pacman", Source{Kind: SourcePacman}, true},
		{"aur", Source{Kind: SourceAur}, true},
		{"AUR", Source{Kind: SourceAur}, true},
		{" flatpak ", Source{Kind: SourceFlatpak}, true},
		{"apt", Source{Kind: SourceApt}, true},
		{"tap", Source{Kind: SourceTap}, true},
		{"tap:core-utils", Source{Kind: SourceTap, Name: "core-utils"}, true},
		{"repo:mybin", Source{Kind: SourceBinaryRepo, Name: "mybin"}, true},
		{"snap", Source{}, false},
		{"", Source{}, false},
	}
	for _, tt := range tests {
		got, err := ParseSource(tt.tok)
		if tt.ok != (err == nil) {
			t.Errorf("ParseSource(%q) err = %v, want ok=%v", tt.tok, err, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSource(%q) = %+v, want %+v", tt.tok, got, tt.want)
		}
	}
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		src  Source
		want string
	}{
		{Source{Kind: SourcePacman}, "[PACMAN]"},
		{Source{Kind: SourceAur}, "[AUR]"},
		{Source{Kind: SourceFlatpak}, "[FLATPAK]"},
		{Source{Kind: SourceApt}, "[APT]"},
		{Source{Kind: SourceBinaryRepo, Name: "mybin"}, "[REPO]mybin"},
		{Source{Kind: SourceTap, Name: "utils"}, "[CUSTOM]utils"},
		{Source{Kind: SourceCustom, Name: "local"}, "[CUSTOM]local"},
	}
	for _, tt := range tests {
		if got := tt.src.Label(); got != tt.want {
			t.Errorf("Label(%+v) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestSourceString(t *testing.T) {
	if s := (Source{Kind: SourceTap, Name: "utils"}).String(); s != "tap:utils" {
		t.Errorf("String = %q, want tap:utils", s)
	}
	if s := (Source{Kind: SourceAur}).String(); s != "aur" {
		t.Errorf("String = %q, want aur", s)
	}
}

func TestPriorityClassOrdering(t *testing.T) {
	order := []Source{
		{Kind: SourceTap},
		{Kind: SourceBinaryRepo},
		{Kind: SourcePacman},
		{Kind: SourceAur},
		{Kind: SourceFlatpak},
		{Kind: SourceApt},
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].priorityClass() <= order[i].priorityClass() {
			t.Errorf("%s should outrank %s", order[i-1].Kind, order[i].Kind)
		}
	}
}

func TestCandidateLess(t *testing.T) {
	tap := &Candidate{Source: Source{Kind: SourceTap, Name: "a"}, TapPriority: 5}
	tapHigh := &Candidate{Source: Source{Kind: SourceTap, Name: "b"}, TapPriority: 9}
	aur := &Candidate{Source: Source{Kind: SourceAur}, declIndex: 1}
	pacman := &Candidate{Source: Source{Kind: SourcePacman}, declIndex: 2}
	aurEarly := &Candidate{Source: Source{Kind: SourceAur}, declIndex: 0}

	if !candidateLess(tap, aur) {
		t.Error("tap should rank before aur")
	}
	if !candidateLess(tapHigh, tap) {
		t.Error("higher tap priority should rank first")
	}
	if !candidateLess(pacman, aur) {
		t.Error("pacman should rank before aur")
	}
	if !candidateLess(aurEarly, aur) {
		t.Error("earlier declaration should win inside a class")
	}
}
