package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText(t *testing.T) {
	cfg := ChunkConfig{Size: 100, Overlap: 20, BoundaryWindow: 40}

	t.Run("empty input yields no chunks", func(t *testing.T) {
		assert.Nil(t, chunkText("", cfg))
		assert.Nil(t, chunkText("   \n\t ", cfg))
	})

	t.Run("short input yields single chunk", func(t *testing.T) {
		chunks := chunkText("Patient presents with mild fever.", cfg)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Patient presents with mild fever.", chunks[0])
	})

	t.Run("prefers sentence boundaries", func(t *testing.T) {
		text := strings.Repeat("Short sentence here. ", 20)
		chunks := chunkText(text, cfg)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks[:len(chunks)-1] {
			assert.True(t, strings.HasSuffix(c, "."), "chunk should end at a sentence boundary: %q", c)
		}
	})

	t.Run("hard cuts text with no boundaries", func(t *testing.T) {
		text := strings.Repeat("a", 450)
		chunks := chunkText(text, cfg)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len([]rune(c)), cfg.Size)
		}
	})

	t.Run("every chunk fits the configured size", func(t *testing.T) {
		text := strings.Repeat("The scan shows no abnormality. Follow up in six months! Results pending?\n", 30)
		for _, c := range chunkText(text, cfg) {
			assert.LessOrEqual(t, len([]rune(c)), cfg.Size)
			assert.NotEmpty(t, strings.TrimSpace(c))
		}
	})

	t.Run("consecutive chunks overlap", func(t *testing.T) {
		text := strings.Repeat("b", 450)
		chunks := chunkText(text, cfg)
		require.Greater(t, len(chunks), 1)
		for i := 1; i < len(chunks); i++ {
			tail := chunks[i-1][len(chunks[i-1])-cfg.Overlap:]
			assert.True(t, strings.HasPrefix(chunks[i], tail), "chunk %d should start with the previous chunk's tail", i)
		}
	})

	t.Run("covers the full input", func(t *testing.T) {
		// distinct sentence numbers make each overlap region unique, so
		// stripping the repeated prefix of every chunk rebuilds the
		// input exactly once and in order
		var sb strings.Builder
		for i := 0; i < 40; i++ {
			fmt.Fprintf(&sb, "Sentence %d covers a distinct clinical detail. ", i)
		}
		text := sb.String()

		chunks := chunkText(text, cfg)
		require.Greater(t, len(chunks), 1)

		rebuilt := chunks[0]
		for i, c := range chunks[1:] {
			max := len(c)
			if max > len(rebuilt) {
				max = len(rebuilt)
			}
			overlap := 0
			for n := max; n > 0; n-- {
				if strings.HasSuffix(rebuilt, c[:n]) {
					overlap = n
					break
				}
			}
			require.Greater(t, overlap, 0, "chunk %d should repeat the tail of the text rebuilt so far", i+1)
			rebuilt += c[overlap:]
		}

		normalize := func(s string) string { return strings.Join(strings.Fields(s), " ") }
		assert.Equal(t, normalize(text), normalize(rebuilt))
	})

	t.Run("deterministic", func(t *testing.T) {
		text := strings.Repeat("Dense clinical narrative without much punctuation ", 25)
		first := chunkText(text, cfg)
		second := chunkText(text, cfg)
		assert.Equal(t, first, second)
	})

	t.Run("zero size falls back to defaults", func(t *testing.T) {
		chunks := chunkText("some text", ChunkConfig{})
		require.Len(t, chunks, 1)
	})
}
