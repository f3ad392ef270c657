package reap

import "testing"

func TestVerCmp(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"1.1", "1.0", 1},
		{"1.0-1", "1.0-2", -1},
		{"1.0-2", "1.0-1", 1},
		{"1:1.0", "2.0", 1},   // epoch wins
		{"0:1.0", "1.0", 0},   // explicit zero epoch equals none
		{"1.0a", "1.0", -1},   // trailing alpha is older
		{"1.0", "1.0.1", -1},  // longer numeric chain is newer
		{"1.002", "1.2", 0},   // leading zeros stripped
		{"12.0", "2.0", 1},    // numeric compare, not lexical
		{"1.0rc1", "1.0", -1}, // pre-release style suffix
		{"2.0", "1.99", 1},
		{"1.0.alpha", "1.0.beta", -1},
	}
	for _, tt := range tests {
		if got := VerCmp(tt.a, tt.b); got != tt.want {
			t.Errorf("VerCmp(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSplitDepSpec(t *testing.T) {
	tests := []struct {
		spec     string
		wantName string
		wantOp   string
		wantVer  string
	}{
		{"glibc", "glibc", "", ""},
		{"glibc>=2.38", "glibc", ">=", "2.38"},
		{"foo=1.0", "foo", "=", "1.0"},
		{"bar<2", "bar", "<", "2"},
		{"baz<=3.1-1", "baz", "<=", "3.1-1"},
		{"qux>0", "qux", ">", "0"},
	}
	for _, tt := range tests {
		name, cons := SplitDepSpec(tt.spec)
		if name != tt.wantName {
			t.Errorf("SplitDepSpec(%q) name = %q, want %q", tt.spec, name, tt.wantName)
		}
		if cons.Op != tt.wantOp || cons.Version != tt.wantVer {
			t.Errorf("SplitDepSpec(%q) = %s %s, want %s %s", tt.spec, cons.Op, cons.Version, tt.wantOp, tt.wantVer)
		}
	}
}

func TestConstraintSatisfies(t *testing.T) {
	tests := []struct {
		op, ver, candidate string
		want               bool
	}{
		{">=", "2.38", "2.38", true},
		{">=", "2.38", "2.39", true},
		{">=", "2.38", "2.37", false},
		{"=", "1.0", "1.0", true},
		{"=", "1.0", "1.0.1", false},
		{"<", "2.0", "1.9", true},
		{"<", "2.0", "2.0", false},
		{"<=", "2.0", "2.0", true},
		{">", "1.0", "1.0", false},
		{">", "1.0", "1.0.1", true},
	}
	for _, tt := range tests {
		c := Constraint{Op: tt.op, Version: tt.ver}
		if got := c.Satisfies(tt.candidate); got != tt.want {
			t.Errorf("(%s%s).Satisfies(%q) = %v, want %v", tt.op, tt.ver, tt.candidate, got, tt.want)
		}
	}
}
