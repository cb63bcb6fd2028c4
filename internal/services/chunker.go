package services

import "strings"

// ChunkText splits text on whitespace and regroups the words into chunks of
// size words joined by single spaces. The last chunk may be shorter. Empty
// text yields no chunks; a non-positive size keeps every word in one chunk.
func ChunkText(text string, size int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(words)
	}

	chunks := make([]string, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}
