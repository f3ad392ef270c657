package reap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PkgbuildInfo is the structured form of a parsed PKGBUILD.
type PkgbuildInfo struct {
	Package          string   `json:"package"`
	Version          string   `json:"version"`
	Description      string   `json:"description"`
	Dependencies     []string `json:"dependencies"`
	MakeDependencies []string `json:"make_dependencies"`
	Conflicts        []string `json:"conflicts"`
	Provides         []string `json:"provides"`
	SourceFiles      []string `json:"source_files"`
	IntegrityChecks  []string `json:"integrity_checks"`
}

// PkgbuildStore fetches, parses and caches PKGBUILDs. Cache keys are
// (pkg, source); entries live until `perf clear-cache`.
type PkgbuildStore struct {
	mu    sync.Mutex
	memo  map[string]*PkgbuildInfo
	AUR   *AurClient
	Taps  *TapManager
	Log   *LogPane
}

func NewPkgbuildStore(aur *AurClient, taps *TapManager, log *LogPane) *PkgbuildStore {
	return &PkgbuildStore{
		memo: make(map[string]*PkgbuildInfo),
		AUR:  aur,
		Taps: taps,
		Log:  log,
	}
}

func cacheKeyFor(pkg string, src Source) string {
	return pkg + "@" + src.String()
}

func parsedCachePath(pkg string) string {
	return filepath.Join(aurCacheDir(), pkg+".json")
}

func rawCachePath(pkg string) string {
	return filepath.Join(aurCacheDir(), pkg, "PKGBUILD")
}

// Raw returns the raw PKGBUILD text for (pkg, src), consulting the disk
// cache first for AUR packages.
func (s *PkgbuildStore) Raw(pkg string, src Source) (string, error) {
	switch src.Kind {
	case SourceAur:
		if data, err := os.ReadFile(rawCachePath(pkg)); err == nil {
			return string(data), nil
		}
		text, err := s.AUR.FetchPkgbuild(pkg)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(rawCachePath(pkg)), 0o755); err == nil {
			os.WriteFile(rawCachePath(pkg), []byte(text), 0o644)
		}
		return text, nil
	case SourceTap, SourceCustom:
		tap := s.Taps.Find(src.Name)
		if tap == nil {
			return "", stepError(KindNotFound, StepFetch, pkg, fmt.Errorf("tap %q is not configured", src.Name))
		}
		path, err := s.Taps.EnsureCloned(tap)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(pkgbuildPathIn(path, pkg))
		if err != nil {
			return "", stepError(KindNotFound, StepFetch, pkg, fmt.Errorf("tap %s does not ship %s: %w", src.Name, pkg, err))
		}
		return string(data), nil
	default:
		return "", stepError(KindNotFound, StepFetch, pkg, fmt.Errorf("source %s has no PKGBUILD", src))
	}
}

// Get returns parsed PKGBUILD info, memoizing in memory and on disk.
func (s *PkgbuildStore) Get(pkg string, src Source) (*PkgbuildInfo, error) {
	key := cacheKeyFor(pkg, src)
	s.mu.Lock()
	if info, ok := s.memo[key]; ok {
		s.mu.Unlock()
		return info, nil
	}
	s.mu.Unlock()

	if src.Kind == SourceAur {
		if data, err := os.ReadFile(parsedCachePath(pkg)); err == nil {
			var info PkgbuildInfo
			if json.Unmarshal(data, &info) == nil && info.Package == pkg {
				s.mu.Lock()
				s.memo[key] = &info
				s.mu.Unlock()
				return &info, nil
			}
		}
	}

	raw, err := s.Raw(pkg, src)
	if err != nil {
		return nil, err
	}
	info := ParsePkgbuild(pkg, raw, s.Log)

	s.mu.Lock()
	s.memo[key] = info
	s.mu.Unlock()

	if src.Kind == SourceAur {
		if err := os.MkdirAll(aurCacheDir(), 0o755); err == nil {
			if data, err := json.MarshalIndent(info, "", "  "); err == nil {
				os.WriteFile(parsedCachePath(pkg), data, 0o644)
			}
		}
	}
	return info, nil
}

// ClearMemo drops the in-memory cache. Disk entries are handled by
// `perf clear-cache`.
func (s *PkgbuildStore) ClearMemo() {
	s.mu.Lock()
	s.memo = make(map[string]*PkgbuildInfo)
	s.mu.Unlock()
}

// ParsePkgbuild consumes PKGBUILD text leniently. Array variables may
// span lines: the opening token is `name=(`, content accumulates until a
// line ending in `)`. Unknown fields are ignored; malformed arrays yield
// empty lists with a warning.
func ParsePkgbuild(pkg, content string, log *LogPane) *PkgbuildInfo {
	info := &PkgbuildInfo{Package: pkg}

	arrayFields := map[string]*[]string{
		"depends":     &info.Dependencies,
		"makedepends": &info.MakeDependencies,
		"conflicts":   &info.Conflicts,
		"provides":    &info.Provides,
		"source":      &info.SourceFiles,
		"sha256sums":  &info.IntegrityChecks,
		"b2sums":      &info.IntegrityChecks,
		"md5sums":     &info.IntegrityChecks,
	}

	var inArray string
	var acc strings.Builder

	flush := func(closing string) {
		acc.WriteString(" ")
		acc.WriteString(strings.TrimSuffix(closing, ")"))
		if dst, ok := arrayFields[inArray]; ok {
			*dst = append(*dst, splitArrayTokens(acc.String())...)
		}
		inArray = ""
		acc.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if inArray != "" {
			if strings.HasSuffix(trimmed, ")") {
				flush(trimmed)
			} else {
				acc.WriteString(" ")
				acc.WriteString(trimmed)
			}
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "pkgver="):
			info.Version = unquote(strings.TrimPrefix(trimmed, "pkgver="))
		case strings.HasPrefix(trimmed, "pkgdesc="):
			info.Description = unquote(strings.TrimPrefix(trimmed, "pkgdesc="))
		default:
			name, rest, ok := matchArrayOpen(trimmed)
			if !ok {
				continue
			}
			if _, known := arrayFields[name]; !known {
				continue
			}
			if strings.HasSuffix(rest, ")") {
				if dst, ok := arrayFields[name]; ok {
					*dst = append(*dst, splitArrayTokens(strings.TrimSuffix(rest, ")"))...)
				}
			} else {
				inArray = name
				acc.Reset()
				acc.WriteString(rest)
			}
		}
	}
	if inArray != "" && log != nil {
		log.Warnf(pkg, StepFetch, "unterminated %s array in PKGBUILD; field left empty", inArray)
	}
	return info
}

// matchArrayOpen recognizes `name=(` openings and returns the variable
// name plus the remainder of the line.
func matchArrayOpen(line string) (name, rest string, ok bool) {
	idx := strings.Index(line, "=(")
	if idx <= 0 {
		return "", "", false
	}
	name = line[:idx]
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return "", "", false
		}
	}
	return name, line[idx+2:], true
}

func splitArrayTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(s) {
		tok = unquote(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// unquote strips one surrounding pair of single or double quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// EmitPkgbuild renders info back into PKGBUILD text. Round-trips with
// ParsePkgbuild for ASCII names.
func EmitPkgbuild(info *PkgbuildInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pkgname=%s\n", info.Package)
	fmt.Fprintf(&b, "pkgver=%s\n", info.Version)
	fmt.Fprintf(&b, "pkgdesc=%q\n", info.Description)
	writeArr := func(name string, items []string) {
		if len(items) == 0 {
			return
		}
		quoted := make([]string, len(items))
		for i, it := range items {
			quoted[i] = "'" + it + "'"
		}
		fmt.Fprintf(&b, "%s=(%s)\n", name, strings.Join(quoted, " "))
	}
	writeArr("depends", info.Dependencies)
	writeArr("makedepends", info.MakeDependencies)
	writeArr("conflicts", info.Conflicts)
	writeArr("provides", info.Provides)
	writeArr("source", info.SourceFiles)
	writeArr("sha256sums", info.IntegrityChecks)
	return b.String()
}
