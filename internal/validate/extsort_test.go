package validate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeLines(t *testing.T, path string, lines []string) {
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush %s: %v", path, err)
	}
}

func TestExternalSort_SmallInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeLines(t, src, []string{"banana", "apple", "cherry", "apple"})

	if err := externalSort(dir, src, dst); err != nil {
		t.Fatalf("externalSort: %v", err)
	}

	got := readLines(t, dst)
	want := []string{"apple", "apple", "banana", "cherry"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestExternalSort_EmptyInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeLines(t, src, nil)

	if err := externalSort(dir, src, dst); err != nil {
		t.Fatalf("externalSort: %v", err)
	}
	got := readLines(t, dst)
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %v", got)
	}
}

func TestExternalSort_MultipleChunksPreservesMultiset(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	n := sortChunkLines*3 + 17
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = fmt.Sprintf("v%d", n-i)
	}
	writeLines(t, src, lines)

	if err := externalSort(dir, src, dst); err != nil {
		t.Fatalf("externalSort: %v", err)
	}

	got := readLines(t, dst)
	if len(got) != n {
		t.Fatalf("expected %d lines out, got %d", n, len(got))
	}
	if !sort.StringsAreSorted(got) {
		t.Fatalf("output is not sorted")
	}

	wantSorted := append([]string{}, lines...)
	sort.Strings(wantSorted)
	for i := range wantSorted {
		if got[i] != wantSorted[i] {
			t.Fatalf("multiset mismatch at %d: got %q want %q", i, got[i], wantSorted[i])
		}
	}
}

func TestExternalSort_StableForEqualKeys(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeLines(t, src, []string{"b", "a", "a", "a", "c"})

	if err := externalSort(dir, src, dst); err != nil {
		t.Fatalf("externalSort: %v", err)
	}
	got := readLines(t, dst)
	want := []string{"a", "a", "a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestExternalSort_NoTrailingNewlineTolerated(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("b\na"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	if err := externalSort(dir, src, dst); err != nil {
		t.Fatalf("externalSort: %v", err)
	}
	got := readLines(t, dst)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestExternalSort_CleansUpChunkFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	writeLines(t, src, []string{"a", "b"})

	if err := externalSort(dir, src, dst); err != nil {
		t.Fatalf("externalSort: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(src) && e.Name() != filepath.Base(dst) {
			t.Fatalf("leftover chunk file: %s", e.Name())
		}
	}
}
