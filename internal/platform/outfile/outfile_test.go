package outfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWrite_SameBaseGetsDistinctNames(t *testing.T) {
	base := filepath.Join(t.TempDir(), "summary_report_20240402_080000")

	var paths []string
	for i, body := range []string{"first", "second", "third"} {
		path, err := Write(base, ".md", 0o644, func(w io.Writer) error {
			_, err := io.WriteString(w, body)
			return err
		})
		if err != nil {
			t.Fatalf("Write #%d: %v", i, err)
		}
		paths = append(paths, path)
	}

	want := []string{base + ".md", base + "_1.md", base + "_2.md"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path %d = %s, want %s", i, paths[i], want[i])
		}
	}
	got, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("first file overwritten: %q", got)
	}
}

func TestWrite_FailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")

	_, err := Write(filepath.Join(dir, "out"), ".png", 0o644, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files left, got %d", len(entries))
	}
}

func TestCreateExclusive_MissingDirectory(t *testing.T) {
	_, err := CreateExclusive(filepath.Join(t.TempDir(), "nope", "out"), ".json", 0o640)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
