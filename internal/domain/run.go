package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRunStateCorrupt marks a stored run state that exists but cannot be decoded.
var ErrRunStateCorrupt = errors.New("run state corrupt")

// Outcome is the terminal state of a single link.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeSuccess Outcome = "success"
)

// RunState is the durable record of the last successful collection run.
type RunState struct {
	LastRunAt      *time.Time `json:"last_run_at"`
	ProcessedCount int        `json:"processed_count"`
	SuccessCount   int        `json:"success_count"`
	FailedCount    int        `json:"failed_count"`
	SkippedCount   int        `json:"skipped_count"`
	FailedLinks    []string   `json:"failed_urls"`
}

// Record counts one processed link. Unknown outcomes are counted as failures
// and reported through the returned error.
func (s *RunState) Record(link string, outcome Outcome) error {
	s.ProcessedCount++
	switch outcome {
	case OutcomeSkipped:
		s.SkippedCount++
	case OutcomeSuccess:
		s.SuccessCount++
	case OutcomeFailed:
		s.FailedCount++
		s.FailedLinks = append(s.FailedLinks, link)
	default:
		s.FailedCount++
		s.FailedLinks = append(s.FailedLinks, link)
		return fmt.Errorf("unexpected outcome %q for %s", outcome, link)
	}
	return nil
}

// RunReport describes one pipeline execution.
type RunReport struct {
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time
	// Empty is set when the source returned no messages and nothing was written.
	Empty bool
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders the human-readable end-of-run report.
func (r RunReport) Summary() string {
	if r.Empty {
		return "Recipe collection: no new messages."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recipe collection finished in %s\n", r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "processed: %d\n", r.State.ProcessedCount)
	fmt.Fprintf(&b, "success: %d\n", r.State.SuccessCount)
	fmt.Fprintf(&b, "failed: %d\n", r.State.FailedCount)
	fmt.Fprintf(&b, "skipped: %d\n", r.State.SkippedCount)
	if len(r.State.FailedLinks) > 0 {
		b.WriteString("failed links:\n")
		for _, link := range r.State.FailedLinks {
			fmt.Fprintf(&b, "  - %s\n", link)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
