package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply  string
	err    error
	called bool
	prompt string
}

func (s *stubGenerator) Complete(_ context.Context, _, userPrompt string) (string, error) {
	s.called = true
	s.prompt = userPrompt
	return s.reply, s.err
}

func TestEnrichmentService_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts structured risk markers from JSON reply", func(t *testing.T) {
		gen := &stubGenerator{reply: `{"lumps": ["palpable mass upper left quadrant"], "abnormal_results": ["elevated CA 15-3"]}`}
		svc := NewEnrichmentService(&stubStore{}, &stubVision{}, gen, EnrichmentConfig{})

		enriched, err := svc.Enrich(ctx, testDocument("application/pdf"), "report text")

		require.NoError(t, err)
		assert.Nil(t, enriched.VisualAnalysis)
		assert.Equal(t, []string{"palpable mass upper left quadrant"}, enriched.RiskMarkers.Lumps)
		assert.Equal(t, []string{"elevated CA 15-3"}, enriched.RiskMarkers.AbnormalResults)
		assert.False(t, enriched.RiskMarkers.Recovered())
	})

	t.Run("preserves unparseable reply under raw analysis", func(t *testing.T) {
		gen := &stubGenerator{reply: "not json at all"}
		svc := NewEnrichmentService(&stubStore{}, &stubVision{}, gen, EnrichmentConfig{})

		enriched, err := svc.Enrich(ctx, testDocument("application/pdf"), "report text")

		require.NoError(t, err)
		assert.Equal(t, "not json at all", enriched.RiskMarkers.RawAnalysis)
		assert.True(t, enriched.RiskMarkers.Recovered())
	})

	t.Run("unwraps fenced JSON replies", func(t *testing.T) {
		gen := &stubGenerator{reply: "```json\n{\"tumor_markers\": [\"CA 125 38 U/mL\"]}\n```"}
		svc := NewEnrichmentService(&stubStore{}, &stubVision{}, gen, EnrichmentConfig{})

		enriched, err := svc.Enrich(ctx, testDocument("application/pdf"), "report text")

		require.NoError(t, err)
		assert.Equal(t, []string{"CA 125 38 U/mL"}, enriched.RiskMarkers.TumorMarkers)
		assert.False(t, enriched.RiskMarkers.Recovered())
	})

	t.Run("skips marker extraction for empty text", func(t *testing.T) {
		gen := &stubGenerator{}
		svc := NewEnrichmentService(&stubStore{}, &stubVision{}, gen, EnrichmentConfig{})

		enriched, err := svc.Enrich(ctx, testDocument("application/pdf"), "   ")

		require.NoError(t, err)
		assert.False(t, gen.called)
		assert.True(t, enriched.RiskMarkers.IsZero())
	})

	t.Run("produces visual analysis for images when enabled", func(t *testing.T) {
		vision := &stubVision{text: "Mammogram, suspicious calcification cluster, BI-RADS 4"}
		store := &stubStore{data: []byte{0x01}}
		gen := &stubGenerator{reply: "{}"}
		svc := NewEnrichmentService(store, vision, gen, EnrichmentConfig{EnableVisionAnalysis: true})

		enriched, err := svc.Enrich(ctx, testDocument("image/png"), "report text")

		require.NoError(t, err)
		require.NotNil(t, enriched.VisualAnalysis)
		assert.Contains(t, *enriched.VisualAnalysis, "BI-RADS 4")
	})

	t.Run("skips visual analysis when disabled", func(t *testing.T) {
		vision := &stubVision{text: "should not run"}
		svc := NewEnrichmentService(&stubStore{}, vision, &stubGenerator{reply: "{}"}, EnrichmentConfig{EnableVisionAnalysis: false})

		enriched, err := svc.Enrich(ctx, testDocument("image/png"), "report text")

		require.NoError(t, err)
		assert.False(t, vision.called)
		assert.Nil(t, enriched.VisualAnalysis)
	})

	t.Run("skips visual analysis for non-image documents", func(t *testing.T) {
		vision := &stubVision{text: "should not run"}
		svc := NewEnrichmentService(&stubStore{}, vision, &stubGenerator{reply: "{}"}, EnrichmentConfig{EnableVisionAnalysis: true})

		enriched, err := svc.Enrich(ctx, testDocument("application/pdf"), "report text")

		require.NoError(t, err)
		assert.False(t, vision.called)
		assert.Nil(t, enriched.VisualAnalysis)
	})

	t.Run("propagates generation transport failures", func(t *testing.T) {
		gen := &stubGenerator{err: errors.New("service unavailable")}
		svc := NewEnrichmentService(&stubStore{}, &stubVision{}, gen, EnrichmentConfig{})

		_, err := svc.Enrich(ctx, testDocument("application/pdf"), "report text")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "service unavailable")
	})

	t.Run("propagates vision transport failures", func(t *testing.T) {
		vision := &stubVision{err: errors.New("vision down")}
		svc := NewEnrichmentService(&stubStore{data: []byte{0x01}}, vision, &stubGenerator{reply: "{}"}, EnrichmentConfig{EnableVisionAnalysis: true})

		_, err := svc.Enrich(ctx, testDocument("image/png"), "report text")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "vision down")
	})
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
