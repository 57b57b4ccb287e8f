package embed

import (
	"sync"
	"time"
)

// LabelStats accumulates per-label timings for one embedding run.
type LabelStats struct {
	// Nodes fetched for the label.
	Nodes int

	// Skipped nodes whose validity flag was already true.
	Skipped int

	// Embedded nodes that received at least one vector.
	Embedded int

	// Batches processed for the label.
	Batches int

	// Duration of the whole label, fetch included.
	Duration time.Duration

	// Groups maps embedding group name to accumulated embed+write time.
	Groups map[string]time.Duration
}

// Stats is the observability record of one embedding run. Safe for
// concurrent updates while the run is in flight; read it after Run returns.
type Stats struct {
	mu sync.Mutex

	// Duration of the whole run.
	Duration time.Duration

	// Labels maps label name to its stats.
	Labels map[string]*LabelStats
}

func newStats() *Stats {
	return &Stats{Labels: make(map[string]*LabelStats)}
}

// label returns the stats bucket for a label, creating it on first use.
// Must be called with the lock held.
func (s *Stats) label(name string) *LabelStats {
	ls, ok := s.Labels[name]
	if !ok {
		ls = &LabelStats{Groups: make(map[string]time.Duration)}
		s.Labels[name] = ls
	}
	return ls
}

func (s *Stats) recordLabel(name string, nodes, skipped int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.label(name)
	ls.Nodes = nodes
	ls.Skipped = skipped
	ls.Duration = duration
}

func (s *Stats) recordBatch(name string, embedded int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.label(name)
	ls.Batches++
	ls.Embedded += embedded
}

func (s *Stats) recordGroup(name, group string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label(name).Groups[group] += duration
}

// TotalEmbedded sums embedded node counts across labels.
func (s *Stats) TotalEmbedded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, ls := range s.Labels {
		total += ls.Embedded
	}
	return total
}

// TotalSkipped sums skipped node counts across labels.
func (s *Stats) TotalSkipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, ls := range s.Labels {
		total += ls.Skipped
	}
	return total
}
