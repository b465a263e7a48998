package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// getBinaryPath returns the CLI under test. PEDVOC_BINARY selects a pre-built
// binary, otherwise one is built into dir.
func getBinaryPath(t *testing.T, dir string) string {
	t.Helper()
	if path := os.Getenv("PEDVOC_BINARY"); path != "" {
		return path
	}

	name := "pedvoc-test"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	path := filepath.Join(dir, name)
	buildCmd := exec.Command("go", "build", "-o", path, ".")
	if out, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build CLI: %v\n%s", err, out)
	}
	return path
}

func runBinary(t *testing.T, bin string, args ...string) string {
	t.Helper()
	cmd := exec.Command(bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("%v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout.String(), stderr.String())
	}
	return stdout.String()
}

// TestE2E_Binary runs the built CLI end to end over a synthetic dataset.
func TestE2E_Binary(t *testing.T) {
	if os.Getenv("PEDVOC_E2E") != "1" {
		t.Skip("Skipping E2E test (set PEDVOC_E2E=1 to run)")
	}

	dir := tempDir(t)
	bin := getBinaryPath(t, dir)
	root := filepath.Join(dir, "caltech")

	out := runBinary(t, bin, "--version")
	if !strings.Contains(out, "pedvoc") {
		t.Errorf("unexpected version output %q", out)
	}

	runBinary(t, bin, "caltech", "synth", "--root", root, "--sets", "0,5,6")
	runBinary(t, bin, "caltech", "convert", "--root", root, "--log-level", "debug")

	vocRoot := filepath.Join(root, "caltech_voc")
	for _, name := range []string{"trainval.txt", "train.txt", "val.txt", "test.txt"} {
		data, err := os.ReadFile(filepath.Join(vocRoot, "ImageSets", "Main", name))
		if err != nil {
			t.Fatalf("image set %s not written: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("image set %s is empty", name)
		}
	}
	if _, err := os.Stat(filepath.Join(vocRoot, "Annotations", "000001.xml")); err != nil {
		t.Errorf("first annotation missing: %v", err)
	}

	// Round trip one detection through the VOC ids.
	results := filepath.Join(dir, "comp4_det_test_person.txt")
	os.WriteFile(results, []byte("000001 0.9 10 20 30 60\n"), 0644)
	resDir := filepath.Join(dir, "res")
	runBinary(t, bin, "caltech", "dets", "--root", root, "-o", resDir, results)

	data, err := os.ReadFile(filepath.Join(resDir, "set00", "V000.txt"))
	if err != nil {
		t.Fatalf("detections not written: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "6,10,20,20,40,0.9" {
		t.Errorf("unexpected detection line %q", got)
	}
}
