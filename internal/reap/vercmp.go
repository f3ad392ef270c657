package reap

import "strings"

// VerCmp compares two package versions the way alpm's vercmp does:
// optional epoch prefix ("epoch:ver"), optional pkgrel suffix
// ("ver-rel"), and segment-wise comparison where numeric segments
// compare numerically and alphabetic segments lexically, with numeric
// segments always newer than alphabetic ones. Returns -1, 0 or 1.
func VerCmp(a, b string) int {
	ae, av, ar := splitEVR(a)
	be, bv, br := splitEVR(b)
	if c := rpmVerCmp(ae, be); c != 0 {
		return c
	}
	if c := rpmVerCmp(av, bv); c != 0 {
		return c
	}
	if ar == "" || br == "" {
		return 0
	}
	return rpmVerCmp(ar, br)
}

func splitEVR(v string) (epoch, ver, rel string) {
	epoch = "0"
	if i := strings.IndexByte(v, ':'); i >= 0 {
		epoch, v = v[:i], v[i+1:]
	}
	if i := strings.LastIndexByte(v, '-'); i >= 0 {
		v, rel = v[:i], v[i+1:]
	}
	return epoch, v, rel
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func rpmVerCmp(a, b string) int {
	if a == b {
		return 0
	}
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		for i < len(a) && !isDigit(a[i]) && !isAlpha(a[i]) {
			i++
		}
		for j < len(b) && !isDigit(b[j]) && !isAlpha(b[j]) {
			j++
		}
		if i >= len(a) || j >= len(b) {
			break
		}

		var sa, sb string
		numeric := isDigit(a[i])
		if numeric != isDigit(b[j]) {
			// numeric segments are always newer than alpha segments
			if numeric {
				return 1
			}
			return -1
		}
		if numeric {
			si, sj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			sa, sb = strings.TrimLeft(a[si:i], "0"), strings.TrimLeft(b[sj:j], "0")
			if len(sa) != len(sb) {
				if len(sa) > len(sb) {
					return 1
				}
				return -1
			}
		} else {
			si, sj := i, j
			for i < len(a) && isAlpha(a[i]) {
				i++
			}
			for j < len(b) && isAlpha(b[j]) {
				j++
			}
			sa, sb = a[si:i], b[sj:j]
		}
		if sa != sb {
			if sa > sb {
				return 1
			}
			return -1
		}
	}
	// one string ran out; whichever has remaining content wins unless the
	// remainder starts with an alpha segment (1.0 > 1.0rc1 style)
	switch {
	case i >= len(a) && j >= len(b):
		return 0
	case i < len(a):
		if isAlpha(a[i]) {
			return -1
		}
		return 1
	default:
		if isAlpha(b[j]) {
			return 1
		}
		return -1
	}
}

// Constraint is a parsed dependency version requirement.
type Constraint struct {
	Op      string // ">=", "<=", "=", ">", "<" or "" for none
	Version string
}

// Satisfies reports whether installed meets the constraint.
func (c Constraint) Satisfies(installed string) bool {
	if c.Op == "" || c.Version == "" {
		return true
	}
	cmp := VerCmp(installed, c.Version)
	switch c.Op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case "=":
		return cmp == 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	}
	return true
}

// SplitDepSpec splits a dependency string like "libc>=2.39" into the
// bare package name and its constraint. Operators checked longest first.
func SplitDepSpec(dep string) (name string, c Constraint) {
	for _, op := range []string{">=", "<=", "=", ">", "<"} {
		if i := strings.Index(dep, op); i > 0 {
			return dep[:i], Constraint{Op: op, Version: dep[i+len(op):]}
		}
	}
	return dep, Constraint{}
}
