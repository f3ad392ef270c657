package reap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Badge bands for a trust score.
const (
	BadgeTrusted  = "TRUSTED"
	BadgeVerified = "VERIFIED"
	BadgeCaution  = "CAUTION"
	BadgeRisky    = "RISKY"
	BadgeUnsafe   = "UNSAFE"
)

// FlagKind classifies a single PKGBUILD audit finding.
type FlagKind string

const (
	FlagNetworkAccess   FlagKind = "NetworkAccess"
	FlagSystemAccess    FlagKind = "SystemAccess"
	FlagSuspiciousFiles FlagKind = "SuspiciousFiles"

	// Metadata findings attached after scoring, so they don't stack on
	// top of the signature and publisher terms already in the score.
	FlagUnverifiedSignature  FlagKind = "UnverifiedSignature"
	FlagUnknownPublisher     FlagKind = "UnknownPublisher"
	FlagRecentVulnerability  FlagKind = "RecentVulnerability"
	FlagOutdatedDependencies FlagKind = "OutdatedDependencies"
)

// AuditFlag is one matched pattern with the line it fired on.
type AuditFlag struct {
	Kind    FlagKind `json:"kind"`
	Pattern string   `json:"pattern"`
	Line    int      `json:"line"`
	Excerpt string   `json:"excerpt"`
}

// TrustReport is the scored result for one package, cached on disk.
type TrustReport struct {
	Pkg               string      `json:"pkg"`
	Score             float64     `json:"score"`
	Badge             string      `json:"badge"`
	SignatureValid    bool        `json:"signature_valid"`
	PublisherVerified bool        `json:"publisher_verified"`
	Votes             int         `json:"votes"`
	Reputation        float64     `json:"reputation"`
	Flags             []AuditFlag `json:"flags"`
	ScannedAt         time.Time   `json:"scanned_at"`
}

// auditRules maps shell patterns to the finding they raise. Patterns are
// substring matches over non-comment PKGBUILD lines, per rule category.
var auditRules = []struct {
	kind     FlagKind
	patterns []string
}{
	{FlagNetworkAccess, []string{"curl ", "curl\t", "wget ", "git clone"}},
	{FlagSystemAccess, []string{"sudo ", "chmod +x"}},
	{FlagSuspiciousFiles, []string{"rm -rf", "dd if=", "eval ", "exec ", "mktemp"}},
}

var commentLine = regexp.MustCompile(`^\s*#`)

// AuditPkgbuild scans raw PKGBUILD text against the rule set. Comment
// lines never fire.
func AuditPkgbuild(raw string) []AuditFlag {
	var flags []AuditFlag
	for i, line := range strings.Split(raw, "\n") {
		if commentLine.MatchString(line) {
			continue
		}
		for _, rule := range auditRules {
			for _, pat := range rule.patterns {
				if strings.Contains(line, pat) {
					flags = append(flags, AuditFlag{
						Kind:    rule.kind,
						Pattern: strings.TrimSpace(pat),
						Line:    i + 1,
						Excerpt: strings.TrimSpace(line),
					})
				}
			}
		}
	}
	return flags
}

// trustScore applies the additive model: a 5.0 base, signature and
// publisher bonuses, vote and reputation adjustments, and a half-point
// penalty per audit flag, clamped to [0, 10].
func trustScore(sigValid, pubVerified bool, votes int, reputation float64, flagCount int) float64 {
	score := 5.0
	if sigValid {
		score += 2.0
	}
	if pubVerified {
		score += 1.5
	}
	voteBonus := float64(votes) * 0.01
	if voteBonus > 1.0 {
		voteBonus = 1.0
	}
	score += voteBonus
	score += (reputation - 5.0) * 0.5
	score -= 0.5 * float64(flagCount)
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// BadgeFor maps a score to its display band.
func BadgeFor(score float64) string {
	switch {
	case score >= 8.0:
		return BadgeTrusted
	case score >= 6.0:
		return BadgeVerified
	case score >= 4.0:
		return BadgeCaution
	case score >= 2.0:
		return BadgeRisky
	default:
		return BadgeUnsafe
	}
}

// TrustEngine scores packages by combining signature verification,
// publisher metadata, AUR vote counts, community ratings, and a static
// PKGBUILD audit.
type TrustEngine struct {
	AUR   *AurClient
	Taps  *TapManager
	Store *PkgbuildStore
	GPG   *GpgClient
	Log   *LogPane
}

func trustReportPath(pkg string) string {
	return filepath.Join(trustCacheDir(), pkg+".json")
}

// CachedReport loads a previously computed report, or nil.
func (t *TrustEngine) CachedReport(pkg string) *TrustReport {
	b, err := os.ReadFile(trustReportPath(pkg))
	if err != nil {
		return nil
	}
	var r TrustReport
	if json.Unmarshal(b, &r) != nil {
		return nil
	}
	return &r
}

// Score computes (and caches) the trust report for pkg from src.
func (t *TrustEngine) Score(pkg string, src Source) (*TrustReport, error) {
	report := &TrustReport{Pkg: pkg, ScannedAt: time.Now()}

	raw, err := t.Store.Raw(pkg, src)
	if err == nil && raw != "" {
		report.Flags = AuditPkgbuild(raw)
	}

	switch src.Kind {
	case SourceAur:
		if info, err := t.AUR.Info(pkg); err == nil && info != nil {
			report.Votes = int(info.NumVotes)
		}
		if sig, err := t.AUR.FetchSignature(pkg); err == nil && sig != nil && raw != "" {
			report.SignatureValid = t.GPG.VerifyDetached([]byte(raw), sig, pkg) == nil
		}
	case SourceTap, SourceCustom:
		if tap := t.Taps.Find(src.Name); tap != nil {
			if pub, err := t.Taps.PublisherInfo(tap); err == nil && pub != nil {
				report.PublisherVerified = pub.Verified
			}
			sigPath := pkgbuildPathIn(t.Taps.ClonePath(tap), pkg) + ".sig"
			if raw != "" && fileExists(sigPath) {
				sig, rerr := os.ReadFile(sigPath)
				report.SignatureValid = rerr == nil && t.GPG.VerifyDetached([]byte(raw), sig, pkg) == nil
			}
		}
	}

	report.Reputation = averageRating(pkg)
	if report.Reputation == 0 {
		report.Reputation = 5.0 // neutral when nobody has rated it
	}
	report.Score = trustScore(report.SignatureValid, report.PublisherVerified,
		report.Votes, report.Reputation, len(report.Flags))
	report.Badge = BadgeFor(report.Score)
	annotateReport(report, src)

	if err := t.saveReport(report); err != nil {
		t.Log.Warnf(pkg, StepVerify, "trust cache write failed: %v", err)
	}
	return report, nil
}

// annotateReport appends metadata flags for display. It runs after
// trustScore, which already prices signatures and publishers, so these
// never feed back into the score. Vulnerability and dependency-age
// flags wait on an advisory feed.
func annotateReport(r *TrustReport, src Source) {
	switch src.Kind {
	case SourceAur, SourceTap, SourceCustom:
		if !r.SignatureValid {
			r.Flags = append(r.Flags, AuditFlag{Kind: FlagUnverifiedSignature, Excerpt: "no valid PKGBUILD signature"})
		}
	}
	if (src.Kind == SourceTap || src.Kind == SourceCustom) && !r.PublisherVerified {
		r.Flags = append(r.Flags, AuditFlag{Kind: FlagUnknownPublisher, Excerpt: "tap publisher not verified"})
	}
}

func (t *TrustEngine) saveReport(r *TrustReport) error {
	if err := os.MkdirAll(trustCacheDir(), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(trustReportPath(r.Pkg), b, 0o644)
}

// ScanAll rescores every package with a cached report and returns the
// refreshed set, worst first.
func (t *TrustEngine) ScanAll(resolve func(pkg string) (Source, error)) ([]*TrustReport, error) {
	entries, err := os.ReadDir(trustCacheDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, stepError(KindIO, StepVerify, "", err)
	}
	var reports []*TrustReport
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if name == e.Name() {
			continue
		}
		src, err := resolve(name)
		if err != nil {
			continue
		}
		r, err := t.Score(name, src)
		if err != nil {
			t.Log.Warnf(name, StepVerify, "rescan failed: %v", err)
			continue
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Score < reports[j].Score })
	return reports, nil
}

// TrustStats summarizes the cached report set per badge band.
func TrustStats() (map[string]int, int) {
	entries, err := os.ReadDir(trustCacheDir())
	if err != nil {
		return nil, 0
	}
	stats := make(map[string]int)
	total := 0
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(trustCacheDir(), e.Name()))
		if err != nil {
			continue
		}
		var r TrustReport
		if json.Unmarshal(b, &r) != nil {
			continue
		}
		stats[r.Badge]++
		total++
	}
	return stats, total
}

// ratings: community scores recorded locally by `reap rate`.

type ratingRecord struct {
	Score   float64   `json:"score"`
	Comment string    `json:"comment,omitempty"`
	RatedAt time.Time `json:"rated_at"`
}

func ratingsPath(pkg string) string {
	return filepath.Join(trustCacheDir(), "ratings", pkg+".json")
}

// RatePackage appends a 1-10 rating for pkg.
func RatePackage(pkg string, score float64, comment string) error {
	if score < 1 || score > 10 {
		return stepError(KindConfigError, "rate", pkg, fmt.Errorf("rating must be between 1 and 10, got %.1f", score))
	}
	var records []ratingRecord
	if b, err := os.ReadFile(ratingsPath(pkg)); err == nil {
		_ = json.Unmarshal(b, &records)
	}
	records = append(records, ratingRecord{Score: score, Comment: comment, RatedAt: time.Now()})
	if err := os.MkdirAll(filepath.Dir(ratingsPath(pkg)), 0o755); err != nil {
		return stepError(KindIO, "rate", pkg, err)
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return stepError(KindIO, "rate", pkg, err)
	}
	return os.WriteFile(ratingsPath(pkg), b, 0o644)
}

// averageRating returns the mean recorded rating, or 0 when unrated.
func averageRating(pkg string) float64 {
	b, err := os.ReadFile(ratingsPath(pkg))
	if err != nil {
		return 0
	}
	var records []ratingRecord
	if json.Unmarshal(b, &records) != nil || len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.Score
	}
	return sum / float64(len(records))
}

// badgeColor picks the display color for a badge.
func badgeColor(badge string) func(format string, a ...interface{}) {
	switch badge {
	case BadgeTrusted, BadgeVerified:
		return colSuccess.Printf
	case BadgeCaution:
		return colWarn.Printf
	default:
		return colError.Printf
	}
}
