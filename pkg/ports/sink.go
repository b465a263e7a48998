package ports

// DebugSink abstracts debug output for intermediate results.
// It allows saving decoded annotations and frames for inspection.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveAnnotationsJSON saves the decoded annotations of one sequence as JSON.
	SaveAnnotationsJSON(camera, sequence string, data []byte) error

	// SaveFrame saves an encoded frame under its frame key name.
	SaveFrame(name string, data []byte) error
}
