// Package bench provides benchmarking primitives for the iesched bench command.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the latency of a single inference.
type RunResult struct {
	Index    int
	Mode     string // "block" or "async"
	Cold     bool   // true for the first run of a mode (cold-start)
	Duration time.Duration
}

// Stats holds aggregate latency statistics across runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
}

// Summary aggregates one benchmark pass.
type Summary struct {
	Mode       string
	Runs       int
	Wall       time.Duration
	Throughput float64 // inferences per second
	Stats      Stats
}

// ComputeStats calculates min, max, mean and nearest-rank percentiles over a
// slice of durations. An empty slice yields zero stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return Stats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: sum / time.Duration(len(sorted)),
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
	}
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Throughput returns completed inferences per second of wall time.
// Returns 0 if wall is zero to avoid division by zero.
func Throughput(n int, wall time.Duration) float64 {
	if wall <= 0 {
		return 0
	}
	return float64(n) / wall.Seconds()
}

// Summarize builds the summary of one pass from its runs.
func Summarize(mode string, runs []RunResult, wall time.Duration) Summary {
	durations := make([]time.Duration, 0, len(runs))
	for _, r := range runs {
		if r.Mode == mode {
			durations = append(durations, r.Duration)
		}
	}

	return Summary{
		Mode:       mode,
		Runs:       len(durations),
		Wall:       wall,
		Throughput: Throughput(len(durations), wall),
		Stats:      ComputeStats(durations),
	}
}

// ---------------------------------------------------------------------------
// Latency threshold gate
// ---------------------------------------------------------------------------

// CheckLatencyThreshold returns an error if mean > threshold.
// A threshold of 0 disables the gate.
func CheckLatencyThreshold(mean, threshold time.Duration) error {
	if threshold <= 0 {
		return nil
	}
	if mean > threshold {
		return fmt.Errorf("mean latency %v exceeds threshold %v", mean, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, summaries []Summary, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-6s  %-5s  %10s\n", "Run", "Mode", "Cold", "MS")
	fmt.Fprintln(sb, strings.Repeat("-", 32))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-6s  %-5s  %10.1f\n", r.Index+1, r.Mode, cold, ms(r.Duration))
	}

	fmt.Fprintln(sb, strings.Repeat("-", 32))
	fmt.Fprintf(sb, "%-6s  %5s  %9s  %9s  %9s  %9s  %9s  %10s\n",
		"Mode", "Runs", "Min", "P50", "Mean", "P95", "Max", "Inf/s")
	for _, s := range summaries {
		fmt.Fprintf(sb, "%-6s  %5d  %9.1f  %9.1f  %9.1f  %9.1f  %9.1f  %10.2f\n",
			s.Mode, s.Runs,
			ms(s.Stats.Min), ms(s.Stats.P50), ms(s.Stats.Mean), ms(s.Stats.P95), ms(s.Stats.Max),
			s.Throughput,
		)
	}

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs      []jsonRun     `json:"runs"`
	Summaries []jsonSummary `json:"summaries"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Mode       string  `json:"mode"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
}

type jsonSummary struct {
	Mode       string  `json:"mode"`
	Runs       int     `json:"runs"`
	WallMS     float64 `json:"wall_ms"`
	Throughput float64 `json:"throughput"`
	MinMS      float64 `json:"min_ms"`
	P50MS      float64 `json:"p50_ms"`
	MeanMS     float64 `json:"mean_ms"`
	P95MS      float64 `json:"p95_ms"`
	MaxMS      float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, summaries []Summary, w io.Writer) {
	jr := jsonReport{
		Runs:      make([]jsonRun, len(runs)),
		Summaries: make([]jsonSummary, len(summaries)),
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Mode:       r.Mode,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
		}
	}
	for i, s := range summaries {
		jr.Summaries[i] = jsonSummary{
			Mode:       s.Mode,
			Runs:       s.Runs,
			WallMS:     ms(s.Wall),
			Throughput: s.Throughput,
			MinMS:      ms(s.Stats.Min),
			P50MS:      ms(s.Stats.P50),
			MeanMS:     ms(s.Stats.Mean),
			P95MS:      ms(s.Stats.P95),
			MaxMS:      ms(s.Stats.Max),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
