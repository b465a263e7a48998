// Package nullsink provides a no-op debug sink implementation.
package nullsink

import "github.com/user/pedvoc/pkg/ports"

// Sink is a no-op implementation of ports.DebugSink.
// It discards all debug output.
type Sink struct{}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveAnnotationsJSON does nothing.
func (s *Sink) SaveAnnotationsJSON(camera, sequence string, data []byte) error {
	return nil
}

// SaveFrame does nothing.
func (s *Sink) SaveFrame(name string, data []byte) error {
	return nil
}

var _ ports.DebugSink = (*Sink)(nil)
