// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/user/pedvoc/pkg/ports"
)

// Sink saves debug output under a base directory:
//
//	annotations/{camera}/{sequence}.json
//	frames/{name}
type Sink struct {
	baseDir string
	fs      ports.FileSystem
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem) *Sink {
	return &Sink{
		baseDir: baseDir,
		fs:      fs,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveAnnotationsJSON saves the decoded annotations of one sequence.
func (s *Sink) SaveAnnotationsJSON(camera, sequence string, data []byte) error {
	dir := filepath.Join(s.baseDir, "annotations", camera)
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	return s.fs.WriteFile(filepath.Join(dir, sequence+".json"), data)
}

// SaveFrame saves an encoded frame. name must be a plain file name.
func (s *Sink) SaveFrame(name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == ".." {
		return fmt.Errorf("filesink: invalid frame name %q", name)
	}
	dir := filepath.Join(s.baseDir, "frames")
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	return s.fs.WriteFile(filepath.Join(dir, name), data)
}

var _ ports.DebugSink = (*Sink)(nil)
