package domain

// RiskMarkers holds the structured findings extracted from a document's
// text. Every field is optional; when the extraction service returns a
// reply that is not parseable as JSON, the reply is preserved verbatim
// under RawAnalysis instead of being discarded.
type RiskMarkers struct {
	Lumps            []string `json:"lumps,omitempty"`
	NippleDischarge  []string `json:"nipple_discharge,omitempty"`
	SkinChanges      []string `json:"skin_changes,omitempty"`
	FamilyHistory    []string `json:"family_history,omitempty"`
	GeneticMutations []string `json:"genetic_mutations,omitempty"`
	AbnormalResults  []string `json:"abnormal_results,omitempty"`
	TumorMarkers     []string `json:"tumor_markers,omitempty"`
	RawAnalysis      string   `json:"raw_analysis,omitempty"`
}

// IsZero reports whether no markers were extracted at all.
func (m RiskMarkers) IsZero() bool {
	return len(m.Lumps) == 0 &&
		len(m.NippleDischarge) == 0 &&
		len(m.SkinChanges) == 0 &&
		len(m.FamilyHistory) == 0 &&
		len(m.GeneticMutations) == 0 &&
		len(m.AbnormalResults) == 0 &&
		len(m.TumorMarkers) == 0 &&
		m.RawAnalysis == ""
}

// Recovered reports whether the markers came from the unparseable-reply
// fallback rather than structured extraction.
func (m RiskMarkers) Recovered() bool {
	return m.RawAnalysis != ""
}

// EnrichedData is the enrichment stage's output: an optional visual
// narrative for image documents plus the extracted risk markers.
type EnrichedData struct {
	VisualAnalysis *string     `json:"visual_analysis,omitempty"`
	RiskMarkers    RiskMarkers `json:"risk_markers"`
}
