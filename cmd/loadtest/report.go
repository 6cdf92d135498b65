package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

type outcome string

const (
	outcomeOK       outcome = "ok"
	outcomeRejected outcome = "rejected"
	outcomeFailed   outcome = "failed"
)

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type callReport struct {
	Calls     int64            `json:"calls"`
	Failed    int64            `json:"failed"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type stockReport struct {
	ProductID  string `json:"product_id"`
	Initial    int64  `json:"initial"`
	Held       int64  `json:"held"`
	Available  int64  `json:"available"`
	Consistent bool   `json:"consistent"`
}

type report struct {
	Mode              string                `json:"mode"`
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	Scenarios         int64                 `json:"scenarios"`
	Succeeded         int64                 `json:"succeeded"`
	Rejected          int64                 `json:"rejected"`
	Failed            int64                 `json:"failed"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Calls             map[string]callReport `json:"calls"`
	Stock             stockReport           `json:"stock"`
}

type callStats struct {
	calls     int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

// collector потокобезопасно копит латентности HTTP-вызовов и исходы сценариев.
type collector struct {
	mu        sync.Mutex
	calls     map[string]*callStats
	outcomes  map[outcome]int64
	scenarios []float64
}

func newCollector() *collector {
	return &collector{
		calls:    make(map[string]*callStats),
		outcomes: make(map[outcome]int64),
	}
}

// record учитывает HTTP-вызов. status 0 означает транспортную ошибку.
func (c *collector) record(name string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.calls[name]
	if !ok {
		stats = &callStats{statuses: make(map[string]int64)}
		c.calls[name] = stats
	}
	stats.calls++
	key := strconv.Itoa(status)
	if status == 0 {
		key = "transport_error"
	}
	if status == 0 || status >= 500 {
		stats.failed++
	}
	stats.statuses[key]++
	stats.latencies = append(stats.latencies, toMillis(latency))
}

func (c *collector) recordScenario(result outcome, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[result]++
	c.scenarios = append(c.scenarios, toMillis(latency))
}

func (c *collector) build(mode string, startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := report{
		Mode:              mode,
		StartedAt:         startedAt.UTC(),
		DurationSeconds:   elapsed.Seconds(),
		Succeeded:         c.outcomes[outcomeOK],
		Rejected:          c.outcomes[outcomeRejected],
		Failed:            c.outcomes[outcomeFailed],
		ScenarioLatencyMs: summarize(c.scenarios),
		Calls:             make(map[string]callReport, len(c.calls)),
	}
	r.Scenarios = r.Succeeded + r.Rejected + r.Failed
	r.ErrorRate = ratio(r.Failed, r.Scenarios)
	if elapsed > 0 {
		r.RPS = float64(r.Scenarios) / elapsed.Seconds()
	}

	for name, stats := range c.calls {
		statuses := make(map[string]int64, len(stats.statuses))
		for k, v := range stats.statuses {
			statuses[k] = v
		}
		r.Calls[name] = callReport{
			Calls:     stats.calls,
			Failed:    stats.failed,
			Statuses:  statuses,
			LatencyMs: summarize(stats.latencies),
		}
	}
	return r
}

func toMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func summarize(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile интерполирует линейно между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lower, upper := int(math.Floor(rank)), int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[upper]-sorted[lower])*(rank-float64(lower))
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func printReport(w io.Writer, r report) {
	_, _ = fmt.Fprintf(w, "Load test summary (mode=%s)\n", r.Mode)
	_, _ = fmt.Fprintf(w, "scenarios=%d ok=%d rejected=%d failed=%d error_rate=%.4f\n",
		r.Scenarios, r.Succeeded, r.Rejected, r.Failed, r.ErrorRate)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", r.DurationSeconds, r.RPS)
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		r.ScenarioLatencyMs.Min, r.ScenarioLatencyMs.Avg, r.ScenarioLatencyMs.P50,
		r.ScenarioLatencyMs.P95, r.ScenarioLatencyMs.P99, r.ScenarioLatencyMs.Max)

	names := make([]string, 0, len(r.Calls))
	for name := range r.Calls {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		call := r.Calls[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d failed=%d p95=%.2fms statuses=%v\n",
			name, call.Calls, call.Failed, call.LatencyMs.P95, call.Statuses)
	}

	verdict := "consistent"
	if !r.Stock.Consistent {
		verdict = "INCONSISTENT"
	}
	_, _ = fmt.Fprintf(w, "stock %s: initial=%d held=%d available=%d %s\n",
		r.Stock.ProductID, r.Stock.Initial, r.Stock.Held, r.Stock.Available, verdict)
}

func writeJSONReport(path string, r report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаёт оператор через флаг -output.
	file, err := os.Create(clean)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
