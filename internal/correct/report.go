package correct

import (
	"unicode/utf8"

	"github.com/ppiankov/rectify/internal/jsonx"
	"github.com/ppiankov/rectify/internal/model"
)

// Report describes what a correction changed
type Report struct {
	TotalClaims        int      `json:"total_claims"`
	SupportedClaims    int      `json:"supported_claims"`
	ContradictedClaims int      `json:"contradicted_claims"`
	SupportRatio       float64  `json:"support_ratio"`
	ContradictionRatio float64  `json:"contradiction_ratio"`
	Improvements       []string `json:"improvements"`
	Effectiveness      string   `json:"effectiveness"`
}

// NewReport compares the original and corrected answers
func NewReport(original, corrected string, verifications []model.Verification) Report {
	counts := model.CountVerdicts(verifications)
	r := Report{
		TotalClaims:        len(verifications),
		SupportedClaims:    counts[model.VerdictSupported],
		ContradictedClaims: counts[model.VerdictContradicted],
	}
	if r.TotalClaims > 0 {
		r.SupportRatio = float64(r.SupportedClaims) / float64(r.TotalClaims)
		r.ContradictionRatio = float64(r.ContradictedClaims) / float64(r.TotalClaims)
	}

	origLen := float64(utf8.RuneCountInString(original))
	corrLen := float64(utf8.RuneCountInString(corrected))

	for _, v := range verifications {
		if v.Verdict == model.VerdictContradicted {
			r.Improvements = append(r.Improvements, "corrected inaccurate claim: "+jsonx.Truncate(v.ClaimText, 50)+"...")
		}
	}
	switch {
	case corrLen > origLen*1.2:
		r.Improvements = append(r.Improvements, "added evidence-backed detail")
	case corrLen < origLen*0.8:
		r.Improvements = append(r.Improvements, "removed unverified content")
	}
	if len(r.Improvements) == 0 {
		r.Improvements = []string{"kept core content, improved accuracy"}
	}

	switch {
	case corrLen > origLen*1.3:
		r.Effectiveness = "significantly enhanced: added substantial evidence-backed content"
	case corrLen > origLen*1.1:
		r.Effectiveness = "moderately improved: added key evidence and detail"
	case corrLen < origLen*0.9:
		r.Effectiveness = "streamlined: removed uncertain and redundant content"
	default:
		r.Effectiveness = "quality improved: kept concise while improving accuracy"
	}
	return r
}
