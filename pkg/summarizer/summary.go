// Package summarizer provides summary generation for conversion runs.
package summarizer

import (
	"time"

	"github.com/google/uuid"
)

// Summary contains all data collected during one conversion run.
type Summary struct {
	// Metadata
	RunID       string
	GeneratedAt time.Time
	DurationMs  int

	// Conversion settings
	Settings Settings

	// Per-camera results in set order
	Sets []SetStats

	// Image set sizes
	Splits SplitCounts

	// Fake test annotations written in caltech mode
	FakeAnnotations int

	// Sequence-level failures, one line each
	Errors []string
}

// Settings contains the conversion configuration.
type Settings struct {
	Mode        string
	DatasetRoot string
	OutputRoot  string
	Workers     int
	FrameEvery  int
}

// SetStats contains the results for one camera set.
type SetStats struct {
	Camera       string
	Split        string
	Sequences    int
	PersonFrames int
	FramesSaved  int
	Exported     int
	Skipped      int
	DecodeErrors int
	Failures     int
}

// SplitCounts contains the number of ids in each image set.
type SplitCounts struct {
	Train int
	Val   int
	Test  int
}

// TrainVal returns the size of the trainval list.
func (s SplitCounts) TrainVal() int {
	return s.Train + s.Val
}

// Totals sums the statistics of all sets.
func (s *Summary) Totals() SetStats {
	total := SetStats{Camera: "total"}
	for _, set := range s.Sets {
		total.Sequences += set.Sequences
		total.PersonFrames += set.PersonFrames
		total.FramesSaved += set.FramesSaved
		total.Exported += set.Exported
		total.Skipped += set.Skipped
		total.DecodeErrors += set.DecodeErrors
		total.Failures += set.Failures
	}
	return total
}

// Failed reports whether any sequence failed.
func (s *Summary) Failed() bool {
	return len(s.Errors) > 0
}

// NewSummary creates a new Summary with a fresh run id and the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSettings sets the conversion settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// AddSet appends the statistics of one camera set.
func (b *Builder) AddSet(stats SetStats) *Builder {
	b.summary.Sets = append(b.summary.Sets, stats)
	return b
}

// WithSplits sets the image set sizes.
func (b *Builder) WithSplits(splits SplitCounts) *Builder {
	b.summary.Splits = splits
	return b
}

// WithFakeAnnotations records the number of fake test annotations.
func (b *Builder) WithFakeAnnotations(n int) *Builder {
	b.summary.FakeAnnotations = n
	return b
}

// AddError records a failure.
func (b *Builder) AddError(msg string) *Builder {
	b.summary.Errors = append(b.summary.Errors, msg)
	return b
}

// WithDuration sets the elapsed time.
func (b *Builder) WithDuration(d time.Duration) *Builder {
	b.summary.DurationMs = int(d.Milliseconds())
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
