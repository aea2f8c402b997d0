package service

import (
	"strings"
)

// ChunkConfig controls how document text is split before embedding.
type ChunkConfig struct {
	// Size is the maximum chunk length in runes.
	Size int
	// Overlap is how many runes consecutive chunks share.
	Overlap int
	// BoundaryWindow is how far back from the cut point to look for a
	// sentence boundary before falling back to a hard cut.
	BoundaryWindow int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:           1000,
		Overlap:        200,
		BoundaryWindow: 200,
	}
}

func isSentenceBoundary(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}

// chunkText splits text into overlapping chunks, preferring to cut just
// after a sentence boundary. Chunks that trim to empty are dropped, and
// the result is deterministic for a given input and config.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.Size <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size - 1
	}

	runes := []rune(clean)
	if len(runes) <= cfg.Size {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/cfg.Size+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.Size
		if end >= len(runes) {
			end = len(runes)
		} else {
			// Look back from the cut point for the nearest sentence
			// boundary so chunks end on whole sentences when possible.
			minCut := end - cfg.BoundaryWindow
			if minCut < start {
				minCut = start
			}
			for i := end - 1; i >= minCut; i-- {
				if isSentenceBoundary(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}
