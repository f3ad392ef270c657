package reap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// BuildMetric is one pipeline run, appended to a JSONL log per day.
type BuildMetric struct {
	Pkg      string        `json:"pkg"`
	Source   string        `json:"source"`
	Outcome  string        `json:"outcome"` // success or failure
	State    string        `json:"state"`   // last pipeline state reached
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}

// MetricsRecorder appends build metrics. A nil-Log recorder still works;
// write failures are only ever warnings.
type MetricsRecorder struct {
	Log *LogPane
}

func metricsFile(t time.Time) string {
	return filepath.Join(metricsDir(), t.Format("2006-01-02")+".jsonl")
}

// Record appends m to the current day's metrics file.
func (r *MetricsRecorder) Record(m BuildMetric) {
	m.At = time.Now()
	if err := os.MkdirAll(metricsDir(), 0o755); err != nil {
		r.warn(err)
		return
	}
	f, err := os.OpenFile(metricsFile(m.At), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		r.warn(err)
		return
	}
	defer f.Close()
	b, err := json.Marshal(m)
	if err != nil {
		r.warn(err)
		return
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		r.warn(err)
	}
}

func (r *MetricsRecorder) warn(err error) {
	if r.Log != nil {
		r.Log.Warnf("", StepTiming, "metrics write: %v", err)
	}
}

// loadMetrics reads every recorded metric across all days.
func loadMetrics() ([]BuildMetric, error) {
	entries, err := os.ReadDir(metricsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, stepError(KindIO, StepTiming, "", err)
	}
	var all []BuildMetric
	for _, e := range entries {
		f, err := os.Open(filepath.Join(metricsDir(), e.Name()))
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			var m BuildMetric
			if json.Unmarshal(sc.Bytes(), &m) == nil {
				all = append(all, m)
			}
		}
		f.Close()
	}
	return all, nil
}

// PrintAnalytics summarizes recorded builds: totals, failure rate, and
// the slowest packages.
func PrintAnalytics() error {
	metrics, err := loadMetrics()
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		fmt.Println("no builds recorded yet")
		return nil
	}

	failures := 0
	bySource := make(map[string]int)
	type pkgStat struct {
		pkg   string
		total time.Duration
		runs  int
	}
	perPkg := make(map[string]*pkgStat)
	for _, m := range metrics {
		if m.Outcome != "success" {
			failures++
		}
		bySource[m.Source]++
		st := perPkg[m.Pkg]
		if st == nil {
			st = &pkgStat{pkg: m.Pkg}
			perPkg[m.Pkg] = st
		}
		st.total += m.Duration
		st.runs++
	}

	colInfo.Printf("Build analytics\n")
	fmt.Printf("  runs: %d  failures: %d (%.1f%%)\n",
		len(metrics), failures, 100*float64(failures)/float64(len(metrics)))

	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Printf("  %-20s %d\n", s, bySource[s])
	}

	stats := make([]*pkgStat, 0, len(perPkg))
	for _, st := range perPkg {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].total/time.Duration(stats[i].runs) > stats[j].total/time.Duration(stats[j].runs)
	})
	colInfo.Printf("Slowest packages\n")
	for i, st := range stats {
		if i == 10 {
			break
		}
		avg := st.total / time.Duration(st.runs)
		fmt.Printf("  %-24s avg %-10s over %d run(s)\n", st.pkg, avg.Round(time.Millisecond), st.runs)
	}
	return nil
}
