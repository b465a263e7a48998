// Package orchestrator coordinates the Caltech to VOC conversion.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/stages/export"
	"github.com/user/pedvoc/pkg/voc"
)

// Mode selects how test sets are converted.
type Mode string

const (
	// ModeVOC keeps only annotated frames in every set.
	ModeVOC Mode = "voc"
	// ModeCaltech keeps every FrameEvery-th frame of the test sets without annotations.
	ModeCaltech Mode = "caltech"
)

// ErrInvalidMode is returned for an unknown conversion mode.
var ErrInvalidMode = errors.New("orchestrator: invalid mode")

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeVOC, ModeCaltech:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Dataset is the VOC dataset name; annotations use "<Dataset>_voc" as folder.
const Dataset = "caltech"

// NumSets is the number of Caltech camera sets (set00 to set10).
const NumSets = 11

// Config contains all configuration for a conversion run.
type Config struct {
	// Root holds setXX/*.seq and annotations/setXX/*.vbb.
	Root string
	// OutputDir is the VOC root. Defaults to <Root>/caltech_voc.
	OutputDir string

	Mode       Mode
	Sets       []int // Set numbers to convert, in order
	Workers    int   // Sequences decoded concurrently
	FrameEvery int   // Test frame stride in caltech mode
	Class      string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeVOC,
		Sets:       AllSets(),
		Workers:    runtime.NumCPU(),
		FrameEvery: 30,
		Class:      pipeline.PersonLabel,
	}
}

// AllSets returns 0 through NumSets-1.
func AllSets() []int {
	sets := make([]int, NumSets)
	for i := range sets {
		sets[i] = i
	}
	return sets
}

// SetName returns the camera id of set n, e.g. "set05".
func SetName(n int) string {
	return fmt.Sprintf("set%02d", n)
}

// SplitOf returns the image set that set n belongs to.
func SplitOf(n int) pipeline.Split {
	switch {
	case n < 5:
		return pipeline.SplitTrain
	case n == 5:
		return pipeline.SplitVal
	default:
		return pipeline.SplitTest
	}
}

// Output returns the VOC root for the configuration.
func (c Config) Output() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.Root, Dataset+"_voc")
}

// Paths locates the inputs of one set under root.
type Paths struct {
	VideoDir      string
	AnnotationDir string
	FrameDir      string
}

// SetPaths returns the directories of set n.
func SetPaths(root string, n int) Paths {
	name := SetName(n)
	return Paths{
		VideoDir:      filepath.Join(root, name),
		AnnotationDir: filepath.Join(root, "annotations", name),
		FrameDir:      filepath.Join(root, name, "frame"),
	}
}

// Orchestrator runs the extract stage over every sequence and exports the
// extracted frames to a VOC dataset.
type Orchestrator struct {
	extractStage pipeline.Stage[pipeline.ExtractInput, pipeline.ExtractResult]
	fs           ports.FileSystem
	logger       ports.Logger
}

// New creates a new Orchestrator.
func New(
	extractStage pipeline.Stage[pipeline.ExtractInput, pipeline.ExtractResult],
	fs ports.FileSystem,
	logger ports.Logger,
) *Orchestrator {
	return &Orchestrator{
		extractStage: extractStage,
		fs:           fs,
		logger:       logger,
	}
}

// SetResult reports the conversion of one camera set.
type SetResult struct {
	Camera       string
	Split        pipeline.Split
	Sequences    int
	PersonFrames int
	FramesSaved  int
	Reused       bool // Frames were already extracted
	Exported     int
	Skipped      int
	DecodeErrors int
	Failures     int
}

// RunResult contains the results of a conversion for summary generation.
type RunResult struct {
	Output          string
	Sets            []SetResult
	Splits          voc.Splits
	FakeAnnotations int
	Errors          []error
}

// Run converts the configured sets. Failures of single sequences are logged,
// recorded in the result and do not stop the run; errors writing the VOC tree
// abort it.
func (o *Orchestrator) Run(ctx context.Context, config Config) (RunResult, error) {
	result := RunResult{Output: config.Output()}

	if _, err := ParseMode(string(config.Mode)); err != nil {
		return result, err
	}
	if config.FrameEvery <= 0 {
		config.FrameEvery = 1
	}

	writer := voc.NewWriter(o.fs, result.Output, Dataset)
	if err := writer.Create(); err != nil {
		o.logger.Error("Failed to create dataset: %s", err.Error())
		return result, err
	}
	exporter := export.NewStage(o.fs, writer, config.Class, o.logger)

	o.logger.Info("Converting %d sets in %s mode", len(config.Sets), string(config.Mode))

	nextID := 1
	for _, n := range config.Sets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		set, annos, frameFiles, err := o.extractSet(ctx, config, n, &result)
		if err != nil {
			return result, err
		}

		exported, err := exporter.Execute(ctx, pipeline.ExportInput{
			Camera:      set.Camera,
			FrameFiles:  frameFiles,
			Annotations: annos,
			Split:       set.Split,
			Annotate:    annotate(config.Mode, n),
			NextID:      nextID,
		})
		if err != nil {
			o.logger.Error("Failed to export %s: %s", set.Camera, err.Error())
			return result, fmt.Errorf("export %s: %w", set.Camera, err)
		}
		nextID = exported.NextID
		set.Exported = len(exported.IDs)
		set.Skipped = exported.Skipped

		switch set.Split {
		case pipeline.SplitTrain:
			result.Splits.Train = append(result.Splits.Train, exported.IDs...)
		case pipeline.SplitVal:
			result.Splits.Val = append(result.Splits.Val, exported.IDs...)
		default:
			result.Splits.Test = append(result.Splits.Test, exported.IDs...)
		}

		o.logger.Info("%s: %d images exported (%d skipped)", set.Camera, set.Exported, set.Skipped)
		result.Sets = append(result.Sets, set)
	}

	if err := writer.WriteSplits("", result.Splits); err != nil {
		o.logger.Error("Failed to write image sets: %s", err.Error())
		return result, err
	}

	if config.Mode == ModeCaltech {
		n, err := writer.WriteFakeTestAnnotations()
		result.FakeAnnotations = n
		if err != nil {
			o.logger.Error("Failed to write fake test annotations: %s", err.Error())
			return result, err
		}
		o.logger.Info("Wrote %d fake test annotations", n)
	}

	o.logger.Info("Caltech in VOC format saved in %s", result.Output)
	return result, nil
}

// annotate reports whether frames of set n get XML annotations.
func annotate(mode Mode, n int) bool {
	return mode == ModeVOC || SplitOf(n) != pipeline.SplitTest
}

// extractSet decodes every sequence of set n and returns the merged
// annotations together with the extracted frame files.
func (o *Orchestrator) extractSet(ctx context.Context, config Config, n int, run *RunResult) (SetResult, pipeline.Annotations, []string, error) {
	paths := SetPaths(config.Root, n)
	set := SetResult{Camera: SetName(n), Split: SplitOf(n)}
	o.logger.Info("Parsing %s", set.Camera)

	vbbs, err := o.fs.ListDir(paths.AnnotationDir, ".vbb")
	if err != nil {
		o.fail(run, &set, fmt.Errorf("%s: list annotations: %w", set.Camera, err))
		return set, pipeline.Annotations{}, nil, nil
	}

	// Frames are extracted once; an existing frame directory is reused.
	reuse, err := o.fs.Exists(paths.FrameDir)
	if err != nil {
		return set, nil, nil, fmt.Errorf("check %s: %w", paths.FrameDir, err)
	}
	set.Reused = reuse
	if reuse {
		o.logger.Info("Reusing extracted frames in %s", paths.FrameDir)
	}

	var videos map[string]string
	if !reuse {
		videos, err = o.videos(paths.VideoDir)
		if err != nil {
			o.fail(run, &set, fmt.Errorf("%s: list videos: %w", set.Camera, err))
			return set, pipeline.Annotations{}, nil, nil
		}
	}

	allFrames := config.Mode == ModeCaltech && set.Split == pipeline.SplitTest
	jobs := make([]pipeline.ExtractInput, 0, len(vbbs))
	for _, name := range vbbs {
		input := pipeline.ExtractInput{
			Camera:    set.Camera,
			VBBPath:   filepath.Join(paths.AnnotationDir, name),
			FrameDir:  paths.FrameDir,
			AllFrames: allFrames,
		}
		if allFrames {
			input.FrameEvery = config.FrameEvery
		}
		if !reuse {
			stem := pipeline.Stem(name)
			if video, ok := videos[stem]; ok {
				input.SeqPath = video
			} else {
				o.logger.Warn("No video for %s/%s", set.Camera, stem)
			}
		}
		jobs = append(jobs, input)
	}

	annos := make(pipeline.Annotations)
	for _, r := range o.extractAll(ctx, jobs, config.Workers) {
		if r.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return set, nil, nil, ctxErr
			}
			o.fail(run, &set, fmt.Errorf("%s/%s: %w", set.Camera, pipeline.Stem(r.input.VBBPath), r.err))
			continue
		}
		set.Sequences++
		set.PersonFrames += r.result.PersonFrames
		set.FramesSaved += r.result.FramesSaved
		if r.result.DecodeErr != nil {
			set.DecodeErrors++
			run.Errors = append(run.Errors, fmt.Errorf("%s/%s: %w", set.Camera, r.result.Sequence, r.result.DecodeErr))
		}
		annos.Merge(r.result.Annotations)
	}

	names, err := o.fs.ListDir(paths.FrameDir, ".jpg")
	if err != nil {
		// Nothing was extracted, e.g. every sequence failed.
		names = nil
	}
	files := make([]string, len(names))
	for i, name := range names {
		files[i] = filepath.Join(paths.FrameDir, name)
	}
	return set, annos, files, nil
}

func (o *Orchestrator) fail(run *RunResult, set *SetResult, err error) {
	o.logger.Error("%s", err.Error())
	set.Failures++
	run.Errors = append(run.Errors, err)
}

// videos maps sequence ids to the .seq files of dir.
func (o *Orchestrator) videos(dir string) (map[string]string, error) {
	names, err := o.fs.ListDir(dir, ".seq")
	if err != nil {
		return nil, err
	}
	videos := make(map[string]string, len(names))
	for _, name := range names {
		videos[pipeline.Stem(name)] = filepath.Join(dir, name)
	}
	return videos, nil
}

// extract runs the extract stage for one sequence. A panic in the stage
// becomes the sequence's error so the other workers keep going.
func (o *Orchestrator) extract(ctx context.Context, input pipeline.ExtractInput) (result pipeline.ExtractResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.extractStage.Execute(ctx, input)
}

type extractJob struct {
	index  int
	input  pipeline.ExtractInput
	result pipeline.ExtractResult
	err    error
}

// extractAll runs the extract stage over inputs with a pool of workers and
// returns the outcomes in input order.
func (o *Orchestrator) extractAll(ctx context.Context, inputs []pipeline.ExtractInput, numWorkers int) []extractJob {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(inputs) {
		numWorkers = len(inputs)
	}

	jobs := make(chan int, len(inputs))
	results := make(chan extractJob, len(inputs))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				job := extractJob{index: idx, input: inputs[idx]}
				if err := ctx.Err(); err != nil {
					job.err = err
				} else {
					job.result, job.err = o.extract(ctx, inputs[idx])
				}
				results <- job
			}
		}()
	}

	for i := range inputs {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]extractJob, 0, len(inputs))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].index < out[j].index
	})
	return out
}
