package mocks

import (
	"sync"

	"github.com/user/pedvoc/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	Annotations map[string][]byte // Keyed by "camera/sequence"
	Frames      map[string][]byte
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:     enabled,
		Annotations: make(map[string][]byte),
		Frames:      make(map[string][]byte),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveAnnotationsJSON(camera, sequence string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Annotations[camera+"/"+sequence] = data
	return nil
}

func (m *DebugSink) SaveFrame(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames[name] = data
	return nil
}

// AnnotationsFor returns the saved JSON of one sequence.
func (m *DebugSink) AnnotationsFor(camera, sequence string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.Annotations[camera+"/"+sequence]
	return data, ok
}

var _ ports.DebugSink = (*DebugSink)(nil)
