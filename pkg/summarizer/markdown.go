package summarizer

import (
	"fmt"
	"strings"
	"time"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator sets the function used to translate headings and labels.
func WithTranslator(fn func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		if fn != nil {
			f.translate = fn
		}
	}
}

// WithVersion adds the tool version to the report footer.
func WithVersion(version string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = version
	}
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		translate: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Conversion Summary"))

	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	fmt.Fprintf(&b, "| %s | `%s` |\n", t("Run ID"), s.RunID)
	fmt.Fprintf(&b, "| %s | %s |\n", t("Mode"), s.Settings.Mode)
	fmt.Fprintf(&b, "| %s | `%s` |\n", t("Dataset Root"), s.Settings.DatasetRoot)
	fmt.Fprintf(&b, "| %s | `%s` |\n", t("Output"), s.Settings.OutputRoot)
	if s.Settings.Workers > 0 {
		fmt.Fprintf(&b, "| %s | %d |\n", t("Workers"), s.Settings.Workers)
	}
	if s.Settings.FrameEvery > 0 {
		fmt.Fprintf(&b, "| %s | %d |\n", t("Test Frame Interval"), s.Settings.FrameEvery)
	}
	if s.DurationMs > 0 {
		fmt.Fprintf(&b, "| %s | %s |\n", t("Duration"), formatDuration(s.DurationMs))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Sets"))
	if len(s.Sets) == 0 {
		fmt.Fprintf(&b, "%s\n\n", t("No sets were converted."))
	} else {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			t("Set"), t("Split"), t("Sequences"), t("Person Frames"),
			t("Frames Saved"), t("Exported"), t("Skipped"), t("Errors"))
		b.WriteString("|---|---|---:|---:|---:|---:|---:|---:|\n")
		for _, set := range s.Sets {
			writeSetRow(&b, set.Camera, set.Split, set)
		}
		total := s.Totals()
		writeSetRow(&b, "**"+t("Total")+"**", "", total)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## %s\n\n", t("Image Sets"))
	fmt.Fprintf(&b, "- train: %d\n", s.Splits.Train)
	fmt.Fprintf(&b, "- val: %d\n", s.Splits.Val)
	fmt.Fprintf(&b, "- trainval: %d\n", s.Splits.TrainVal())
	fmt.Fprintf(&b, "- test: %d\n", s.Splits.Test)
	if s.FakeAnnotations > 0 {
		fmt.Fprintf(&b, "- %s: %d\n", t("Fake test annotations"), s.FakeAnnotations)
	}
	b.WriteString("\n")

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", t("Errors"))
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	footer := fmt.Sprintf("%s %s", t("Generated at"), s.GeneratedAt.Format(time.RFC3339))
	if f.version != "" {
		footer += fmt.Sprintf(" (pedvoc %s)", f.version)
	}
	b.WriteString(footer + "\n")

	return b.String()
}

func writeSetRow(b *strings.Builder, name, split string, s SetStats) {
	fmt.Fprintf(b, "| %s | %s | %d | %d | %d | %d | %d | %d |\n",
		name, split, s.Sequences, s.PersonFrames, s.FramesSaved,
		s.Exported, s.Skipped, s.DecodeErrors+s.Failures)
}

// formatDuration renders milliseconds as seconds, or minutes and seconds.
func formatDuration(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Minute {
		return fmt.Sprintf("%.1f s", d.Seconds())
	}
	m := int(d / time.Minute)
	sec := (d % time.Minute).Seconds()
	return fmt.Sprintf("%d min %.0f s", m, sec)
}

var _ Formatter = (*MarkdownFormatter)(nil)
