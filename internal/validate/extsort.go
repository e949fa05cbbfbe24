package validate

import (
	"bufio"
	"container/heap"
	"fmt"
	"os"
	"sort"
)

// sortChunkLines bounds how many lines are held in memory per run. The
// source tunes this around tens of thousands of lines, and so does this
// value; the multi-chunk test sizes its input from it.
const sortChunkLines = 50000

// externalSort reads srcPath line by line, writes ascending
// byte-lexicographic runs to temp chunk files inside dir, and k-way merges
// them into dstPath. It is stable with respect to the input order of equal
// keys. Empty input yields empty output. A missing trailing newline on the
// last input line is tolerated; every output line is newline-terminated.
func externalSort(dir, srcPath, dstPath string) error {
	chunks, err := writeSortedChunks(dir, srcPath)
	if err != nil {
		return fmt.Errorf("write sorted chunks: %w", err)
	}
	defer func() {
		for _, c := range chunks {
			os.Remove(c)
		}
	}()

	if err := mergeChunks(chunks, dstPath); err != nil {
		return fmt.Errorf("merge sorted chunks: %w", err)
	}
	return nil
}

// writeSortedChunks splits src into sortChunkLines-sized runs, sorts each
// run in memory, and writes it to its own temp file. Returns the chunk
// paths in creation order.
func writeSortedChunks(dir, srcPath string) ([]string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	var chunkPaths []string
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	buf := make([]string, 0, sortChunkLines)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		sort.SliceStable(buf, func(i, j int) bool { return buf[i] < buf[j] })
		path, err := writeChunk(dir, buf)
		if err != nil {
			return err
		}
		chunkPaths = append(chunkPaths, path)
		buf = buf[:0]
		return nil
	}

	for scanner.Scan() {
		buf = append(buf, scanner.Text())
		if len(buf) >= sortChunkLines {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", srcPath, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunkPaths, nil
}

func writeChunk(dir string, lines []string) (string, error) {
	f, err := os.CreateTemp(dir, "extsort-chunk-*.txt")
	if err != nil {
		return "", fmt.Errorf("create chunk file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l); err != nil {
			return "", fmt.Errorf("write chunk: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return "", fmt.Errorf("write chunk: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush chunk: %w", err)
	}
	return f.Name(), nil
}

// mergeHead is one chunk reader's current line, tracked for the min-heap.
type mergeHead struct {
	line   string
	seq    int // input order among chunks at this key, for stability
	reader *bufio.Scanner
	file   *os.File
	idx    int // position in the heap slice, maintained by container/heap
}

type mergeHeap []*mergeHead

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].line != h[j].line {
		return h[i].line < h[j].line
	}
	return h[i].seq < h[j].seq
}
func (h mergeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx, h[j].idx = i, j
}
func (h *mergeHeap) Push(x any) {
	m := x.(*mergeHead)
	m.idx = len(*h)
	*h = append(*h, m)
}
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}

// mergeChunks performs a k-way merge of sorted chunk files into dst.
func mergeChunks(chunkPaths []string, dstPath string) error {
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}
	defer dst.Close()
	w := bufio.NewWriter(dst)
	defer w.Flush()

	if len(chunkPaths) == 0 {
		return nil
	}

	h := make(mergeHeap, 0, len(chunkPaths))
	openFiles := make([]*os.File, 0, len(chunkPaths))
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()

	for seq, path := range chunkPaths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open chunk %s: %w", path, err)
		}
		openFiles = append(openFiles, f)

		s := bufio.NewScanner(f)
		s.Buffer(make([]byte, 64*1024), 1024*1024)
		if s.Scan() {
			h = append(h, &mergeHead{line: s.Text(), seq: seq, reader: s, file: f})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		top := h[0]
		if _, err := w.WriteString(top.line); err != nil {
			return fmt.Errorf("write merge output: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write merge output: %w", err)
		}
		if top.reader.Scan() {
			top.line = top.reader.Text()
			heap.Fix(&h, top.idx)
		} else {
			heap.Remove(&h, top.idx)
		}
	}
	return nil
}
