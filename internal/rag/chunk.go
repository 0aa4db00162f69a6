package rag

import (
	"strconv"
	"strings"
)

const DefaultChunkSize = 500

// SplitText cuts text into consecutive, non-overlapping windows of size
// characters. Concatenating the result yields text again; only the last
// window may be shorter. Sizes are counted in runes so multi-byte text is
// never split inside a character.
func SplitText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// ChunkID is the positional identifier of the i-th chunk of a document.
func ChunkID(i int) string {
	return "chunk_" + strconv.Itoa(i)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
