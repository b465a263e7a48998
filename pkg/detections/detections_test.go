package detections

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/pedvoc/pkg/mocks"
	"github.com/user/pedvoc/pkg/voc"
)

func TestParseVOC(t *testing.T) {
	input := "000001 0.9 10 20 40 100\n\n000002 0.25 1.5 2 3.5 8\n"
	results, err := ParseVOC(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseVOC failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if r := results[1]; r.ID != "000002" || r.Score != 0.25 || r.X1 != 1.5 || r.Y2 != 8 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestParseVOC_Errors(t *testing.T) {
	for _, input := range []string{"000001 0.9 10 20 40\n", "000001 high 10 20 40 100\n"} {
		if _, err := ParseVOC(strings.NewReader(input)); !errors.Is(err, ErrSyntax) {
			t.Errorf("expected ErrSyntax for %q, got %v", input, err)
		}
	}
}

func TestParseCaltech(t *testing.T) {
	boxes, err := ParseCaltech(strings.NewReader("30,10,20,30,80,0.9\n30,1,1,2,2,0.1\n60,5,5,5,5,0.5\n"))
	if err != nil {
		t.Fatalf("ParseCaltech failed: %v", err)
	}
	if len(boxes[30]) != 2 || len(boxes[60]) != 1 {
		t.Fatalf("unexpected grouping %v", boxes)
	}
	if b := boxes[30][0]; b.Box.W != 30 || b.Box.H != 80 || b.Score != 0.9 {
		t.Errorf("unexpected box %+v", b)
	}
	if _, err := ParseCaltech(strings.NewReader("1,2,3\n")); !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
}

func newLinkedFS(t *testing.T) *mocks.FileSystem {
	t.Helper()
	fs := mocks.NewFileSystem()
	w := voc.NewWriter(fs, "voc", "caltech")
	links := map[string]string{
		"000001": "/data/caltech/set06/frame/set06_V001_60.jpg",
		"000002": "/data/caltech/set06/frame/set06_V001_30.jpg",
		"000003": "/data/caltech/set07/frame/set07_V000_30.jpg",
	}
	for id, target := range links {
		if err := w.LinkImage(id, target); err != nil {
			t.Fatalf("LinkImage failed: %v", err)
		}
	}
	return fs
}

func TestConverter_Write(t *testing.T) {
	fs := newLinkedFS(t)
	c := NewConverter(fs, "voc")

	results := []Result{
		{ID: "000001", Score: 0.8, X1: 10, Y1: 20, X2: 40, Y2: 100},
		{ID: "000002", Score: 0.5, X1: 1, Y1: 2, X2: 3.5, Y2: 4},
		{ID: "000003", Score: 0.7, X1: 0, Y1: 0, X2: 10, Y2: 10},
		{ID: "000001", Score: 0.3, X1: 5, Y1: 5, X2: 6, Y2: 6},
	}
	paths, err := c.Write("out", results)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := []string{filepath.Join("out", "set06", "V001.txt"), filepath.Join("out", "set07", "V000.txt")}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("unexpected paths %v", paths)
	}

	data, _ := fs.GetFile(want[0])
	expected := "30,1,2,2.5,2,0.5\n60,10,20,30,80,0.8\n60,5,5,1,1,0.3\n"
	if string(data) != expected {
		t.Errorf("unexpected file content:\n%s\nwant:\n%s", data, expected)
	}

	// The written file reads back through ParseCaltech.
	boxes, err := ParseCaltech(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("ParseCaltech failed: %v", err)
	}
	if len(boxes[60]) != 2 {
		t.Errorf("expected 2 boxes at frame 60, got %d", len(boxes[60]))
	}
}

func TestConverter_UnknownID(t *testing.T) {
	c := NewConverter(newLinkedFS(t), "voc")
	if _, err := c.Write("out", []Result{{ID: "999999"}}); err == nil {
		t.Error("expected error for an id without image link")
	}
}
