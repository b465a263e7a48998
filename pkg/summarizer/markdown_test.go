package summarizer

import (
	"strings"
	"testing"
	"time"
)

func sampleSummary() *Summary {
	return &Summary{
		RunID:       "0b6c1c9e-5d0a-4c38-9a53-1f6f1d5c2a77",
		GeneratedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		DurationMs:  83000,
		Settings: Settings{
			Mode:        "caltech",
			DatasetRoot: "/data/caltech",
			OutputRoot:  "/data/caltech/caltech_voc",
			Workers:     4,
			FrameEvery:  30,
		},
		Sets: []SetStats{
			{Camera: "set00", Split: "train", Sequences: 2, PersonFrames: 120, FramesSaved: 120, Exported: 118, Skipped: 2},
			{Camera: "set06", Split: "test", Sequences: 1, FramesSaved: 60, Exported: 60, DecodeErrors: 1},
		},
		Splits:          SplitCounts{Train: 118, Test: 60},
		FakeAnnotations: 60,
	}
}

func TestMarkdownFormatter_Format_Basic(t *testing.T) {
	result := NewMarkdownFormatter().Format(sampleSummary())

	checks := []string{
		"# Conversion Summary",
		"0b6c1c9e-5d0a-4c38-9a53-1f6f1d5c2a77",
		"| Mode | caltech |",
		"`/data/caltech/caltech_voc`",
		"| Test Frame Interval | 30 |",
		"1 min 23 s",
		"| set00 | train | 2 | 120 | 120 | 118 | 2 | 0 |",
		"| set06 | test | 1 | 0 | 60 | 60 | 0 | 1 |",
		"| **Total** |  | 3 | 120 | 180 | 178 | 2 | 1 |",
		"- trainval: 118",
		"- test: 60",
		"- Fake test annotations: 60",
		"2024-01-15T10:30:00Z",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected output to contain %q\n%s", check, result)
		}
	}
	if strings.Contains(result, "## Errors") {
		t.Error("expected no errors section")
	}
}

func TestMarkdownFormatter_Errors(t *testing.T) {
	s := sampleSummary()
	s.Errors = []string{"set01/V003: vbb: missing field objLists"}

	result := NewMarkdownFormatter().Format(s)
	if !strings.Contains(result, "## Errors") {
		t.Error("expected errors section")
	}
	if !strings.Contains(result, "- set01/V003: vbb: missing field objLists") {
		t.Error("expected error line")
	}
}

func TestMarkdownFormatter_NoSets(t *testing.T) {
	result := NewMarkdownFormatter().Format(&Summary{GeneratedAt: time.Now()})
	if !strings.Contains(result, "No sets were converted.") {
		t.Error("expected empty-set notice")
	}
	if strings.Contains(result, "Duration") {
		t.Error("expected no duration row without a duration")
	}
}

func TestMarkdownFormatter_WithTranslator(t *testing.T) {
	translator := func(key string) string {
		translations := map[string]string{
			"Conversion Summary": "変換サマリー",
			"Sets":               "セット",
			"Errors":             "エラー",
		}
		if v, ok := translations[key]; ok {
			return v
		}
		return key
	}

	s := sampleSummary()
	s.Errors = []string{"boom"}
	result := NewMarkdownFormatter(WithTranslator(translator)).Format(s)

	for _, want := range []string{"# 変換サマリー", "## セット", "## エラー"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected translated heading %q", want)
		}
	}
}

func TestMarkdownFormatter_WithVersion(t *testing.T) {
	result := NewMarkdownFormatter(WithVersion("v1.2.0")).Format(sampleSummary())
	if !strings.Contains(result, "(pedvoc v1.2.0)") {
		t.Error("expected output to contain version 'v1.2.0'")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0.0 s"},
		{1500, "1.5 s"},
		{59900, "59.9 s"},
		{60000, "1 min 0 s"},
		{125000, "2 min 5 s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatDuration(tt.ms); got != tt.want {
				t.Errorf("formatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
			}
		})
	}
}
