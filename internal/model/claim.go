package model

// Claim represents an atomic factual assertion extracted from an answer
type Claim struct {
	ID             string  `json:"id"`              // Unique within a run (e.g., "claim_1")
	Text           string  `json:"text"`            // The claim text itself
	Confidence     float64 `json:"confidence"`      // Extraction confidence in [0,1]
	Atomic         bool    `json:"atomic"`          // False when produced by sentence fallback
	SourcePosition int     `json:"source_position"` // Estimated offset in the source text
}

// Extraction confidences by origin
const (
	ConfidenceDecomposed = 0.9 // Model-segmented atomic claim
	ConfidenceSentence   = 0.7 // Sentence-split fallback claim
	ConfidenceWhole      = 1.0 // Whole input used as a single claim
)
