package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidWindow is returned for a window that cannot advance.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Window is a fixed-size sliding window measured in characters (runes).
// Chunk i starts at i*(Size-Overlap) and spans at most Size characters.
type Window struct {
	Size    int
	Overlap int
}

func New(size, overlap int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d with size %d", ErrInvalidWindow, overlap, size)
	}
	return &Window{Size: size, Overlap: overlap}, nil
}

// Split cuts text into ceil(len/(Size-Overlap)) chunks; the tail chunks may be short.
func (w *Window) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := w.Size - w.Overlap
	chunks := make([]string, 0, Count(len(runes), w.Size, w.Overlap))
	for start := 0; start < len(runes); start += step {
		end := start + w.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Count returns the number of chunks Split yields for n characters.
func Count(n, size, overlap int) int {
	step := size - overlap
	if n <= 0 || step <= 0 {
		return 0
	}
	return (n + step - 1) / step
}
