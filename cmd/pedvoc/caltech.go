package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/pedvoc/pkg/adapters/ggrenderer"
	"github.com/user/pedvoc/pkg/adapters/h264encoder"
	"github.com/user/pedvoc/pkg/adapters/osfilesystem"
	"github.com/user/pedvoc/pkg/adapters/smartreader"
	"github.com/user/pedvoc/pkg/config"
	"github.com/user/pedvoc/pkg/detections"
	"github.com/user/pedvoc/pkg/orchestrator"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/stages/encode"
	"github.com/user/pedvoc/pkg/stages/extract"
	"github.com/user/pedvoc/pkg/stages/preview"
	"github.com/user/pedvoc/pkg/summarizer"
	"github.com/user/pedvoc/pkg/synth"
)

// Evaluation toolboxes of the Caltech benchmark.
const (
	toolboxURL  = "https://pdollar.github.io/toolbox/archive/piotr_toolbox.zip"
	evalCodeURL = "http://www.vision.caltech.edu/Image_Datasets/CaltechPedestrians/code/code3.2.1.zip"
)

func convertCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    l10n.T("VOC dataset directory (default: <root>/caltech_voc)"),
			Category: l10n.T(catOutput),
		},
		&cli.StringFlag{
			Name:     "summary",
			Usage:    l10n.T("Markdown summary path (default: <output>/summary.md, \"-\" for plain text on stdout)"),
			Category: l10n.T(catOutput),
		},
		&cli.StringFlag{
			Name:     "mode",
			Aliases:  []string{"m"},
			Usage:    l10n.T("Conversion mode (voc, caltech)"),
			Category: l10n.T(catConvert),
		},
		&cli.IntFlag{
			Name:     "workers",
			Aliases:  []string{"j"},
			Usage:    l10n.T("Sequences decoded in parallel (default: number of CPUs)"),
			Category: l10n.T(catConvert),
		},
		&cli.IntFlag{
			Name:     "frame-every",
			Usage:    l10n.T("Keep every n-th frame of test sets in caltech mode"),
			Category: l10n.T(catConvert),
		},
		&cli.StringFlag{
			Name:     "class",
			Usage:    l10n.T("VOC class name of pedestrians"),
			Category: l10n.T(catConvert),
		},
		&cli.BoolFlag{
			Name:     "debug",
			Aliases:  []string{"d"},
			Usage:    l10n.T("Save decoded annotations as JSON"),
			Category: l10n.T(catDebug),
		},
		&cli.StringFlag{
			Name:     "debug-dir",
			Usage:    l10n.T("Directory for debug output"),
			Category: l10n.T(catDebug),
		},
	)

	return &cli.Command{
		Name:   "convert",
		Usage:  l10n.T("Convert Caltech sets to a VOC dataset"),
		Flags:  flags,
		Action: runConvert,
	}
}

func runConvert(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("mode") {
		cfg.Mode = c.String("mode")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("frame-every") {
		cfg.FrameEvery = c.Int("frame-every")
	}
	if c.IsSet("class") {
		cfg.Class = c.String("class")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("debug-dir") {
		cfg.DebugDir = c.String("debug-dir")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(c, cfg)

	// Create adapters
	fs := osfilesystem.New()
	renderer := ggrenderer.New()
	sink, err := newSink(cfg, fs)
	if err != nil {
		return err
	}
	open := smartreader.Opener(smartreader.Options{FFmpegPath: cfg.FFmpegPath})

	// Create stages and orchestrator
	extractStage := extract.NewStage(fs, open, renderer, sink, log)
	orch := orchestrator.New(extractStage, fs, log)

	oc := cfg.ToOrchestratorConfig()
	start := time.Now()
	result, err := orch.Run(c.Context, oc)
	if err != nil {
		return err
	}

	summary := buildSummary(oc, result, time.Since(start))
	if path := summaryPath(c.String("summary"), result.Output); path == "-" {
		fmt.Fprint(c.App.Writer, textSummary.Format(summary))
	} else {
		formatter := summarizer.NewMarkdownFormatter(
			summarizer.WithTranslator(func(s string) string { return l10n.T(s) }),
			summarizer.WithVersion(version),
		)
		if err := summarizer.NewWriter(fs, formatter).Write(path, summary); err != nil {
			return err
		}
		log.Info("Summary written to %s", path)
	}
	if summary.Failed() {
		log.Warn("%d sequences failed", len(summary.Errors))
	}
	return nil
}

// summaryPath resolves the --summary flag; "-" selects standard output.
func summaryPath(flag, output string) string {
	if flag == "" {
		return filepath.Join(output, "summary.md")
	}
	return flag
}

// textSummary renders a run as a few plain lines for the terminal.
var textSummary = summarizer.FormatFunc(func(s *summarizer.Summary) string {
	var b strings.Builder
	total := s.Totals()
	fmt.Fprintf(&b, "mode %s: %d sequences, %d frames saved, %d exported, %d failed\n",
		s.Settings.Mode, total.Sequences, total.FramesSaved, total.Exported, total.Failures)
	fmt.Fprintf(&b, "trainval %d, train %d, val %d, test %d\n",
		s.Splits.TrainVal(), s.Splits.Train, s.Splits.Val, s.Splits.Test)
	if s.FakeAnnotations > 0 {
		fmt.Fprintf(&b, "fake annotations %d\n", s.FakeAnnotations)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	return b.String()
})

// buildSummary converts a run result into a summary.
func buildSummary(oc orchestrator.Config, result orchestrator.RunResult, elapsed time.Duration) *summarizer.Summary {
	b := summarizer.NewBuilder().
		WithSettings(summarizer.Settings{
			Mode:        string(oc.Mode),
			DatasetRoot: oc.Root,
			OutputRoot:  result.Output,
			Workers:     oc.Workers,
			FrameEvery:  oc.FrameEvery,
		}).
		WithSplits(summarizer.SplitCounts{
			Train: len(result.Splits.Train),
			Val:   len(result.Splits.Val),
			Test:  len(result.Splits.Test),
		}).
		WithFakeAnnotations(result.FakeAnnotations).
		WithDuration(elapsed)

	for _, s := range result.Sets {
		b.AddSet(summarizer.SetStats{
			Camera:       s.Camera,
			Split:        string(s.Split),
			Sequences:    s.Sequences,
			PersonFrames: s.PersonFrames,
			FramesSaved:  s.FramesSaved,
			Exported:     s.Exported,
			Skipped:      s.Skipped,
			DecodeErrors: s.DecodeErrors,
			Failures:     s.Failures,
		})
	}
	for _, err := range result.Errors {
		b.AddError(err.Error())
	}
	return b.Build()
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: l10n.T("Print frame and pedestrian statistics per sequence"),
		Flags: append(commonFlags(),
			&cli.BoolFlag{
				Name:     "videos",
				Usage:    l10n.T("Also open the videos and report their size"),
				Category: l10n.T(catInput),
			},
		),
		Action: runInspect,
	}
}

func runInspect(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	var open ports.FrameReaderOpener
	if c.Bool("videos") {
		open = smartreader.Opener(smartreader.Options{FFmpegPath: cfg.FFmpegPath})
	}
	stats, err := orchestrator.NewInspector(open, osfilesystem.New(), log).Inspect(c.Context, cfg.Root, cfg.Sets)
	if err != nil {
		return err
	}
	return printStats(c.App.Writer, stats, c.Bool("videos"))
}

func printStats(w io.Writer, stats []orchestrator.SequenceStats, videos bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{l10n.T("Set"), l10n.T("Sequence"), l10n.T("Frames"), l10n.T("Person Frames"), l10n.T("Persons"), l10n.T("Objects")}
	if videos {
		header = append(header, l10n.T("Video"))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	var frames, personFrames, persons int
	for _, s := range stats {
		var objects []string
		for _, label := range s.Labels() {
			objects = append(objects, fmt.Sprintf("%s=%d", label, s.Objects[label]))
		}
		row := []string{
			s.Camera,
			s.Sequence,
			fmt.Sprint(s.DeclaredFrames),
			fmt.Sprint(s.PersonFrames),
			fmt.Sprint(s.Persons),
			strings.Join(objects, " "),
		}
		if videos {
			row = append(row, videoColumn(s))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))

		frames += s.DeclaredFrames
		personFrames += s.PersonFrames
		persons += s.Persons
	}
	fmt.Fprintf(tw, "%s\t\t%d\t%d\t%d\t\n", l10n.T("Total"), frames, personFrames, persons)
	return tw.Flush()
}

func videoColumn(s orchestrator.SequenceStats) string {
	if s.VideoErr != nil {
		return s.VideoErr.Error()
	}
	v := s.Video
	out := fmt.Sprintf("%dx%d %d frames", v.Width, v.Height, v.FrameCount)
	if v.FPS > 0 {
		out += fmt.Sprintf(" %.0f fps", v.FPS)
	}
	return out
}

func synthCommand() *cli.Command {
	def := synth.DefaultOptions()
	return &cli.Command{
		Name:  "synth",
		Usage: l10n.T("Write a small synthetic Caltech tree for smoke tests"),
		Flags: append(commonFlags(),
			&cli.IntFlag{Name: "sequences", Value: def.Sequences, Usage: l10n.T("Sequences per set"), Category: l10n.T(catOutput)},
			&cli.IntFlag{Name: "frames", Value: def.Frames, Usage: l10n.T("Frames per sequence"), Category: l10n.T(catOutput)},
			&cli.IntFlag{Name: "width", Value: def.Width, Usage: l10n.T("Frame width"), Category: l10n.T(catOutput)},
			&cli.IntFlag{Name: "height", Value: def.Height, Usage: l10n.T("Frame height"), Category: l10n.T(catOutput)},
		),
		Action: runSynth,
	}
}

func runSynth(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	opts := synth.DefaultOptions()
	if c.IsSet("sets") {
		opts.Sets = cfg.Sets
	}
	opts.Sequences = c.Int("sequences")
	opts.Frames = c.Int("frames")
	opts.Width = c.Int("width")
	opts.Height = c.Int("height")

	result, err := synth.New(ggrenderer.New(), osfilesystem.New(), log).Generate(c.Context, cfg.Root, opts)
	if err != nil {
		return err
	}
	log.Info("Generated %d sequences (%d frames, %d person frames) in %s",
		result.Sequences, result.Frames, result.PersonFrames, cfg.Root)
	return nil
}

func detsCommand() *cli.Command {
	return &cli.Command{
		Name:      "dets",
		Usage:     l10n.T("Convert VOC detection results to Caltech result files"),
		ArgsUsage: l10n.T("<results.txt>..."),
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:     "voc",
				Usage:    l10n.T("VOC dataset the detections refer to (default: <root>/caltech_voc)"),
				Category: l10n.T(catInput),
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Required: true,
				Usage:    l10n.T("Directory receiving setXX/VYYY.txt (required)"),
				Category: l10n.T(catOutput),
			},
		),
		Action: runDets,
	}
}

func runDets(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit(l10n.T("No detection result files given"), 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	vocRoot := c.String("voc")
	if vocRoot == "" {
		vocRoot = cfg.ToOrchestratorConfig().Output()
	}

	var results []detections.Result
	for _, path := range c.Args().Slice() {
		rs, err := readResults(path)
		if err != nil {
			return err
		}
		log.Debug("Read %d detections from %s", len(rs), path)
		results = append(results, rs...)
	}

	paths, err := detections.NewConverter(osfilesystem.New(), vocRoot).Write(c.String("output"), results)
	if err != nil {
		return err
	}
	log.Info("Wrote %d detections to %d files in %s", len(results), len(paths), c.String("output"))
	return nil
}

func readResults(path string) ([]detections.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results, err := detections.ParseVOC(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return results, nil
}

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     l10n.T("Draw annotations and detections over the frames of a video"),
		ArgsUsage: l10n.T("<video>"),
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "annotations", Aliases: []string{"a"}, Usage: l10n.T("Annotation file (.vbb) drawn in red"), Category: l10n.T(catInput)},
			&cli.StringFlag{Name: "detections", Usage: l10n.T("Caltech result file drawn in green"), Category: l10n.T(catInput)},
			&cli.StringFlag{Name: "camera", Usage: l10n.T("Set name (default: directory of the video)"), Category: l10n.T(catInput)},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: l10n.T("Output .mp4 file or PNG directory (required)"), Category: l10n.T(catOutput)},
			&cli.IntFlag{Name: "every", Usage: l10n.T("Keep every n-th frame"), Category: l10n.T(catPreview)},
			&cli.Float64Flag{Name: "score-min", Usage: l10n.T("Minimum detection score"), Category: l10n.T(catPreview)},
			&cli.IntFlag{Name: "max-width", Usage: l10n.T("Scale frames down to this width"), Category: l10n.T(catPreview)},
			&cli.Float64Flag{Name: "fps", Usage: l10n.T("Video frame rate"), Category: l10n.T(catPreview)},
			&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Usage: l10n.T("Video quality (CRF, lower is better)"), Category: l10n.T(catPreview)},
		),
		Action: runPreview,
	}
}

func runPreview(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(l10n.T("Exactly one video is required"), 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(c, cfg)

	pc := previewConfig(c, cfg.Preview)
	pc.VideoPath = c.Args().First()

	fs := osfilesystem.New()
	renderer := ggrenderer.New()
	sink, err := newSink(cfg, fs)
	if err != nil {
		return err
	}

	previewer := orchestrator.NewPreviewer(
		smartreader.Opener(smartreader.Options{FFmpegPath: cfg.FFmpegPath}),
		preview.NewStage(renderer, sink, log, cfg.Workers),
		encode.NewStage(h264encoder.New(), log),
		renderer,
		fs,
		log,
	)
	_, err = previewer.Run(c.Context, pc)
	return err
}

// previewConfig merges preview flags over the configured defaults.
func previewConfig(c *cli.Context, def config.PreviewConfig) orchestrator.PreviewConfig {
	pc := orchestrator.PreviewConfig{
		AnnotationPath: c.String("annotations"),
		DetectionsPath: c.String("detections"),
		Camera:         c.String("camera"),
		Output:         c.String("output"),
		Every:          def.Every,
		ScoreMin:       def.ScoreMin,
		MaxWidth:       def.MaxWidth,
		FPS:            def.FPS,
		Quality:        def.Quality,
	}
	if c.IsSet("every") {
		pc.Every = c.Int("every")
	}
	if c.IsSet("score-min") {
		pc.ScoreMin = c.Float64("score-min")
	}
	if c.IsSet("max-width") {
		pc.MaxWidth = c.Int("max-width")
	}
	if c.IsSet("fps") {
		pc.FPS = c.Float64("fps")
	}
	if c.IsSet("quality") {
		pc.Quality = c.Int("quality")
	}
	return pc
}

func evalCommand() *cli.Command {
	return &cli.Command{
		Name:  "eval",
		Usage: l10n.T("Show where to get the MATLAB evaluation code"),
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, l10n.T("Evaluation runs in MATLAB with the Caltech toolboxes:"))
			fmt.Fprintln(c.App.Writer, "  "+toolboxURL)
			fmt.Fprintln(c.App.Writer, "  "+evalCodeURL)
			fmt.Fprintln(c.App.Writer, l10n.T("Convert detections with \"pedvoc caltech dets\" and place them under data-USA/res."))
			return nil
		},
	}
}
