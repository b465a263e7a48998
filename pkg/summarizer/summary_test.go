package summarizer

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/user/pedvoc/pkg/mocks"
)

func TestNewSummary(t *testing.T) {
	before := time.Now()
	summary := NewSummary()
	after := time.Now()

	if summary.GeneratedAt.Before(before) || summary.GeneratedAt.After(after) {
		t.Errorf("GeneratedAt should be between %v and %v, got %v",
			before, after, summary.GeneratedAt)
	}
	if _, err := uuid.Parse(summary.RunID); err != nil {
		t.Errorf("RunID %q is not a uuid: %v", summary.RunID, err)
	}
	if NewSummary().RunID == summary.RunID {
		t.Error("expected distinct run ids")
	}
}

func TestBuilder_Settings(t *testing.T) {
	summary := NewBuilder().
		WithSettings(Settings{Mode: "voc", DatasetRoot: "/data", OutputRoot: "/data/caltech_voc", Workers: 4}).
		Build()

	if summary.Settings.Mode != "voc" {
		t.Errorf("expected mode 'voc', got '%s'", summary.Settings.Mode)
	}
	if summary.Settings.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", summary.Settings.Workers)
	}
}

func TestBuilder_SetsAndTotals(t *testing.T) {
	summary := NewBuilder().
		AddSet(SetStats{Camera: "set00", Split: "train", Sequences: 2, PersonFrames: 10, FramesSaved: 10, Exported: 9, Skipped: 1}).
		AddSet(SetStats{Camera: "set06", Split: "test", Sequences: 1, FramesSaved: 3, Exported: 3, DecodeErrors: 1}).
		WithSplits(SplitCounts{Train: 9, Test: 3}).
		WithFakeAnnotations(3).
		Build()

	if len(summary.Sets) != 2 || summary.Sets[1].Camera != "set06" {
		t.Fatalf("unexpected sets: %+v", summary.Sets)
	}

	total := summary.Totals()
	if total.Sequences != 3 || total.Exported != 12 || total.Skipped != 1 || total.DecodeErrors != 1 {
		t.Errorf("unexpected totals: %+v", total)
	}
	if summary.Splits.TrainVal() != 9 {
		t.Errorf("expected trainval 9, got %d", summary.Splits.TrainVal())
	}
	if summary.FakeAnnotations != 3 {
		t.Errorf("expected 3 fake annotations, got %d", summary.FakeAnnotations)
	}
}

func TestBuilder_Errors(t *testing.T) {
	b := NewBuilder()
	if b.Build().Failed() {
		t.Error("expected no failure on empty summary")
	}
	summary := b.AddError("set01/V000: bad container").Build()
	if !summary.Failed() || len(summary.Errors) != 1 {
		t.Errorf("expected one error, got %v", summary.Errors)
	}
}

func TestBuilder_Duration(t *testing.T) {
	summary := NewBuilder().WithDuration(1500 * time.Millisecond).Build()
	if summary.DurationMs != 1500 {
		t.Errorf("expected 1500 ms, got %d", summary.DurationMs)
	}
}

func TestFormatFunc(t *testing.T) {
	f := FormatFunc(func(s *Summary) string { return "mode=" + s.Settings.Mode })
	got := f.Format(&Summary{Settings: Settings{Mode: "caltech"}})
	if got != "mode=caltech" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestWriter_Write(t *testing.T) {
	fs := mocks.NewFileSystem()
	w := NewWriter(fs, NewMarkdownFormatter())

	summary := NewBuilder().WithSettings(Settings{Mode: "voc"}).Build()
	if err := w.Write("/out/summary.md", summary); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, ok := fs.GetFile("/out/summary.md")
	if !ok {
		t.Fatal("summary not written")
	}
	if !strings.HasPrefix(string(data), "# Conversion Summary") {
		t.Errorf("unexpected content: %s", data)
	}
}
