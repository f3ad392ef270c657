package reap

import "testing"

func TestDedupeResults(t *testing.T) {
	in := []SearchResult{
		{Name: "ripgrep", Source: Source{Kind: SourceAur}},
		{Name: "ripgrep", Source: Source{Kind: SourcePacman}},
		{Name: "ripgrep", Source: Source{Kind: SourceFlatpak}},
		{Name: "fd", Source: Source{Kind: SourceApt}},
	}
	out := dedupeResults(in)
	if len(out) != 2 {
		t.Fatalf("dedupe kept %d results, want 2", len(out))
	}
	byName := make(map[string]SearchResult)
	for _, r := range out {
		byName[r.Name] = r
	}
	if byName["ripgrep"].Source.Kind != SourcePacman {
		t.Errorf("ripgrep kept source %s, want pacman", byName["ripgrep"].Source.Kind)
	}
	if byName["fd"].Source.Kind != SourceApt {
		t.Errorf("fd kept source %s, want apt", byName["fd"].Source.Kind)
	}
}

func TestRankResults(t *testing.T) {
	in := []SearchResult{
		{Name: "obscure-tool", Description: "mentions htop in its description"},
		{Name: "htop"},
		{Name: "htop-vim"},
	}
	out := rankResults("htop", in)
	if len(out) != 3 {
		t.Fatalf("ranked %d results, want 3", len(out))
	}
	if out[0].Name != "htop" {
		t.Errorf("top result = %q, want htop", out[0].Name)
	}
	if out[len(out)-1].Name != "obscure-tool" {
		t.Errorf("unmatched result should sink to the bottom, got %q last", out[len(out)-1].Name)
	}
}

func TestParsePacmanSearch(t *testing.T) {
	out := `core/linux 6.10.arch1-1 [installed]
    The Linux kernel and modules
extra/linux-lts 6.6.44-1
    The LTS Linux kernel and modules
`
	results := parsePacmanSearch(out)
	if len(results) != 2 {
		t.Fatalf("parsed %d results, want 2", len(results))
	}
	if results[0].Name != "linux" || results[0].Version != "6.10.arch1-1" {
		t.Errorf("first = %+v", results[0])
	}
	if results[0].Description != "The Linux kernel and modules" {
		t.Errorf("first description = %q", results[0].Description)
	}
	if results[0].Source.Kind != SourcePacman {
		t.Errorf("first source = %s", results[0].Source.Kind)
	}
	if results[1].Name != "linux-lts" {
		t.Errorf("second = %+v", results[1])
	}
}

func TestParsePacmanSearchEmpty(t *testing.T) {
	if results := parsePacmanSearch(""); len(results) != 0 {
		t.Errorf("empty output produced %d results", len(results))
	}
}
