// Package chunk splits file content into bounded, disjoint, ordered
// line-range chunks. A chunk ends after the last blank line in its window
// at which the running bracket depth is zero; when the window has no such
// line, the chunk is force-split at MaxChunkLines.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxChunkLines is the default hard cap on lines per chunk.
const MaxChunkLines = 300

// Chunk is a contiguous, bounded line range from one file.
type Chunk struct {
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive
	Content   string
	Hash      string // short content hash, hex
}

// Split divides content into chunks. Callers pass the configured
// max_chunk_lines; a non-positive maxLines falls back to MaxChunkLines.
func Split(content string, maxLines int) []Chunk {
	if maxLines <= 0 {
		maxLines = MaxChunkLines
	}
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := findBoundary(lines, start, maxLines)
		chunkLines := lines[start:end]
		text := strings.Join(chunkLines, "\n")
		chunks = append(chunks, Chunk{
			StartLine: start + 1,
			EndLine:   end,
			Content:   text,
			Hash:      ShortHash(text),
		})
		start = end
	}
	return chunks
}

// findBoundary returns the exclusive end index (0-based) of the next chunk
// starting at start, honoring the blank-line / bracket-depth preference and
// the maxLines cap.
func findBoundary(lines []string, start, maxLines int) int {
	maxEnd := start + maxLines
	if maxEnd > len(lines) {
		maxEnd = len(lines)
	}

	depth := 0
	lastPreferred := -1

	for i := start; i < maxEnd; i++ {
		depth += bracketDelta(lines[i])
		if strings.TrimSpace(lines[i]) == "" && depth == 0 {
			lastPreferred = i + 1
		}
	}

	if lastPreferred > start {
		return lastPreferred
	}
	// No preferred boundary found within the window (or the whole window is
	// one unbroken run) — force-split at the cap.
	return maxEnd
}

// bracketDelta returns the net change in bracket depth contributed by line,
// ignoring bracket-like characters inside single/double/back-quoted spans
// that open and close on the same line.
func bracketDelta(line string) int {
	delta := 0
	var inQuote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inQuote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inQuote = c
		case '{', '[', '(':
			delta++
		case '}', ']', ')':
			delta--
		}
	}
	return delta
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	if normalized == "" {
		return []string{""}
	}
	return strings.Split(normalized, "\n")
}

// ShortHash returns a short hex content hash used for chunk change
// detection — truncated SHA-256, matching the length used by the persisted
// file-state store's own short hash.
func ShortHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
