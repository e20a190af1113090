// Package history provides the append-only durable record of job
// executions, bounded in memory to the 1000 most recent records, and the
// aggregate/per-job statistics derived from it. A capped in-memory slice
// is mirrored to a JSON file after every mutation.
package history

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cronsentinel/cronsentinel/internal/fileguard"
	"github.com/cronsentinel/cronsentinel/pkg/utils"
)

// maxRecords bounds the in-memory mirror; oldest records are dropped
// first once exceeded.
const maxRecords = 1000

// maxOutputChars bounds a single record's stored output.
const maxOutputChars = 1000

const filePerm = 0o644

// Record is one immutable execution event.
type Record struct {
	JobName              string    `json:"job_name"`
	Timestamp            time.Time `json:"timestamp"`
	Success              bool      `json:"success"`
	ExecutionTimeSeconds float64   `json:"execution_time_seconds"`
	Output               string    `json:"output"`
}

// FailureProjection is the reduced shape returned by RecentFailures.
type FailureProjection struct {
	JobName   string    `json:"job_name"`
	Timestamp time.Time `json:"timestamp"`
	Output    string    `json:"output"`
}

// Stats is the aggregate summary returned by Stats and StatsFor.
type Stats struct {
	Total            int       `json:"total"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	SuccessRate      float64   `json:"success_rate"`
	AvgExecutionTime float64   `json:"avg_execution_time"`
	LastExecution    time.Time `json:"last_execution,omitzero"`
}

// History is the in-memory mirror of the execution log file.
type History struct {
	path string

	mu      sync.Mutex
	records []Record
	total   int // lifetime append count; may exceed len(records)
}

// New loads History from path. If the file is missing or unparseable the
// in-memory view starts empty — a corrupt history file must never block
// the supervisor from running jobs.
func New(path string) *History {
	h := &History{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return h
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return h
	}

	if len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}
	h.records = records
	h.total = len(records)
	return h
}

// Add appends a new record, truncating output to maxOutputChars, and
// persists the file. A write failure is returned to the caller as a
// warning-worthy error; callers must not treat it as fatal and should
// log it rather than abort the job that produced the record.
func (h *History) Add(jobName string, success bool, seconds float64, output string) (Record, error) {
	rec := Record{
		JobName:              jobName,
		Timestamp:            time.Now().UTC(),
		Success:              success,
		ExecutionTimeSeconds: seconds,
		Output:               utils.Truncate(output, maxOutputChars),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	h.total++
	if len(h.records) > maxRecords {
		h.records = h.records[len(h.records)-maxRecords:]
	}

	return rec, h.persistLocked()
}

// persistLocked writes the in-memory slice to disk. Caller must hold h.mu.
func (h *History) persistLocked() error {
	data, err := json.MarshalIndent(h.records, "", "  ")
	if err != nil {
		return err
	}
	return fileguard.WithLock(h.path, func() error {
		return fileguard.AtomicWrite(h.path, data, filePerm)
	})
}

// Total returns the lifetime number of appended records (not capped by
// the in-memory window).
func (h *History) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// RecentFailures returns the last n failed records, newest last, each
// projected to {job_name, timestamp, output}.
func (h *History) RecentFailures(n int) []FailureProjection {
	h.mu.Lock()
	defer h.mu.Unlock()

	var failures []Record
	for _, r := range h.records {
		if !r.Success {
			failures = append(failures, r)
		}
	}
	if n >= 0 && len(failures) > n {
		failures = failures[len(failures)-n:]
	}

	out := make([]FailureProjection, len(failures))
	for i, r := range failures {
		out[i] = FailureProjection{JobName: r.JobName, Timestamp: r.Timestamp, Output: r.Output}
	}
	return out
}

// Stats computes the aggregate summary over the in-memory window.
func (h *History) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return computeStats(h.records)
}

// StatsFor computes the aggregate summary for a single job, adding the
// timestamp of its most recent execution.
func (h *History) StatsFor(jobName string) Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var filtered []Record
	for _, r := range h.records {
		if r.JobName == jobName {
			filtered = append(filtered, r)
		}
	}

	stats := computeStats(filtered)
	if len(filtered) > 0 {
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })
		stats.LastExecution = filtered[len(filtered)-1].Timestamp
	}
	return stats
}

func computeStats(records []Record) Stats {
	var successful, failed int
	var successfulSeconds float64
	for _, r := range records {
		if r.Success {
			successful++
			successfulSeconds += r.ExecutionTimeSeconds
		} else {
			failed++
		}
	}

	total := len(records)
	stats := Stats{Total: total, Successful: successful, Failed: failed}

	if total > 0 {
		rate := float64(successful) / float64(total) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}
	if successful > 0 {
		stats.AvgExecutionTime = successfulSeconds / float64(successful)
	}
	return stats
}
