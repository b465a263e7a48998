package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/pedvoc/pkg/orchestrator"
	"github.com/user/pedvoc/pkg/pipeline"
	"github.com/user/pedvoc/pkg/ports"
	"github.com/user/pedvoc/pkg/summarizer"
	"github.com/user/pedvoc/pkg/voc"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pedvoc_cli_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestParseSets(t *testing.T) {
	tests := []struct {
		in   string
		want []int
	}{
		{"0", []int{0}},
		{"0,5,6", []int{0, 5, 6}},
		{"6-10", []int{6, 7, 8, 9, 10}},
		{"set00, set05", []int{0, 5}},
		{"1,0-2", []int{1, 0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSets(tt.in)
			if err != nil {
				t.Fatalf("parseSets(%q) failed: %v", tt.in, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseSets(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseSets(%q) = %v, want %v", tt.in, got, tt.want)
					break
				}
			}
		})
	}
}

func TestParseSets_Invalid(t *testing.T) {
	for _, in := range []string{"", "11", "a", "5-3", "0-12", ","} {
		if _, err := parseSets(in); err == nil {
			t.Errorf("parseSets(%q): expected error", in)
		}
	}
}

func TestSummaryPath(t *testing.T) {
	if got := summaryPath("", "/out"); got != filepath.Join("/out", "summary.md") {
		t.Errorf("unexpected default path %s", got)
	}
	if got := summaryPath("-", "/out"); got != "-" {
		t.Errorf("expected stdout summary, got %s", got)
	}
	if got := summaryPath("/tmp/s.md", "/out"); got != "/tmp/s.md" {
		t.Errorf("unexpected explicit path %s", got)
	}
}

func TestBuildSummary(t *testing.T) {
	cfg := orchestrator.DefaultConfig()
	cfg.Root = "/data"
	cfg.Mode = orchestrator.ModeCaltech
	cfg.Workers = 4

	result := orchestrator.RunResult{
		Output: "/data/caltech_voc",
		Sets: []orchestrator.SetResult{
			{Camera: "set00", Split: pipeline.SplitTrain, Sequences: 2, PersonFrames: 10, FramesSaved: 10, Exported: 10},
			{Camera: "set06", Split: pipeline.SplitTest, Sequences: 1, FramesSaved: 3, Exported: 3, Failures: 1},
		},
		Splits: voc.Splits{
			Train: []string{"000001", "000002"},
			Test:  []string{"000003"},
		},
		FakeAnnotations: 1,
		Errors:          []error{errors.New("set06/V001: broken")},
	}

	s := buildSummary(cfg, result, 1500*time.Millisecond)

	if s.Settings.Mode != "caltech" || s.Settings.OutputRoot != "/data/caltech_voc" || s.Settings.Workers != 4 {
		t.Errorf("unexpected settings %+v", s.Settings)
	}
	if len(s.Sets) != 2 || s.Sets[1].Split != "test" || s.Sets[1].Failures != 1 {
		t.Errorf("unexpected sets %+v", s.Sets)
	}
	if s.Splits.Train != 2 || s.Splits.Val != 0 || s.Splits.Test != 1 {
		t.Errorf("unexpected splits %+v", s.Splits)
	}
	if s.FakeAnnotations != 1 || s.DurationMs != 1500 {
		t.Errorf("unexpected fakes %d or duration %d", s.FakeAnnotations, s.DurationMs)
	}
	if !s.Failed() || s.Errors[0] != "set06/V001: broken" {
		t.Errorf("unexpected errors %v", s.Errors)
	}
}

func TestTextSummary(t *testing.T) {
	s := &summarizer.Summary{
		Settings: summarizer.Settings{Mode: "caltech"},
		Sets: []summarizer.SetStats{
			{Camera: "set00", Sequences: 2, FramesSaved: 10, Exported: 10},
			{Camera: "set06", Sequences: 1, FramesSaved: 3, Exported: 3, Failures: 1},
		},
		Splits:          summarizer.SplitCounts{Train: 2, Val: 1, Test: 3},
		FakeAnnotations: 3,
		Errors:          []string{"set06/V001: broken"},
	}

	want := "mode caltech: 3 sequences, 13 frames saved, 13 exported, 1 failed\n" +
		"trainval 3, train 2, val 1, test 3\n" +
		"fake annotations 3\n" +
		"error: set06/V001: broken\n"
	if got := textSummary.Format(s); got != want {
		t.Errorf("unexpected text summary:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrintStats(t *testing.T) {
	stats := []orchestrator.SequenceStats{
		{
			Camera:         "set00",
			Sequence:       "V000",
			DeclaredFrames: 60,
			Objects:        map[string]int{"person": 85, "people": 60},
			PersonFrames:   55,
			Persons:        85,
			Video:          ports.VideoInfo{Width: 640, Height: 480, FrameCount: 60, FPS: 30},
		},
		{
			Camera:   "set00",
			Sequence: "V001",
			Objects:  map[string]int{},
			VideoErr: errors.New("no such file"),
		},
	}

	var buf bytes.Buffer
	if err := printStats(&buf, stats, true); err != nil {
		t.Fatalf("printStats failed: %v", err)
	}
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, 2 rows and a total, got %d lines:\n%s", len(lines), out)
	}
	for _, want := range []string{"people=60 person=85", "640x480 60 frames 30 fps", "no such file"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if fields := strings.Fields(lines[3]); len(fields) != 4 || fields[1] != "60" || fields[3] != "85" {
		t.Errorf("unexpected total line %q", lines[3])
	}
}

func TestApp_Version(t *testing.T) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf

	if err := app.Run([]string{"pedvoc", "--version"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(buf.String(), version) {
		t.Errorf("expected version %q in %q", version, buf.String())
	}
}

func TestApp_Eval(t *testing.T) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf

	if err := app.Run([]string{"pedvoc", "caltech", "eval"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, url := range []string{toolboxURL, evalCodeURL} {
		if !strings.Contains(buf.String(), url) {
			t.Errorf("output missing %s", url)
		}
	}
}

// TestApp_SynthConvertInspect runs the CLI commands in-process over a
// synthetic dataset.
func TestApp_SynthConvertInspect(t *testing.T) {
	dir := tempDir(t)
	run := func(args ...string) string {
		t.Helper()
		var buf bytes.Buffer
		app := newApp()
		app.Writer = &buf
		if err := app.Run(append([]string{"pedvoc", "caltech"}, args...)); err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
		return buf.String()
	}

	run("synth", "--quiet", "--root", dir, "--sets", "0,5,6")
	run("convert", "--quiet", "--root", dir, "--mode", "caltech", "--workers", "2")

	summary, err := os.ReadFile(filepath.Join(dir, "caltech_voc", "summary.md"))
	if err != nil {
		t.Fatalf("summary not written: %v", err)
	}
	for _, want := range []string{"| set00 | train | 1 | 55 |", "- trainval: 110", "- test: 2"} {
		if !strings.Contains(string(summary), want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	// "-" prints the summary instead of writing a file.
	text := filepath.Join(dir, "text_voc")
	out := run("convert", "--quiet", "--root", dir, "--mode", "caltech", "--output", text, "--summary", "-")
	if !strings.Contains(out, "trainval 110,") || !strings.Contains(out, "test 2\n") {
		t.Errorf("unexpected text summary:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(text, "summary.md")); !os.IsNotExist(err) {
		t.Errorf("expected no summary.md with --summary -, got %v", err)
	}

	out = run("inspect", "--quiet", "--root", dir, "--sets", "6", "--videos")
	if !strings.Contains(out, "V000") || !strings.Contains(out, "160x120 60 frames") {
		t.Errorf("unexpected inspect output:\n%s", out)
	}

	// A second conversion refuses to overwrite the dataset.
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	err = app.Run([]string{"pedvoc", "caltech", "convert", "--quiet", "--root", dir})
	if !errors.Is(err, voc.ErrExists) {
		t.Errorf("expected voc.ErrExists, got %v", err)
	}
}
