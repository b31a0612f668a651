package model

// EvidenceSnippet represents a passage retrieved from the knowledge base
type EvidenceSnippet struct {
	Text       string        `json:"text"`                // Passage text
	Source     string        `json:"source"`              // Source tag from document metadata
	Similarity float64       `json:"similarity"`          // 1 - distance, in [0,1]
	Rank       int           `json:"rank"`                // 1-based rank within the search
	Authority  AuthorityTier `json:"authority,omitempty"` // Source authority classification
}

// EvidenceEntry holds the retrieval outcome for a single claim
type EvidenceEntry struct {
	ClaimText      string            `json:"claim_text"`
	RetrievalQuery string            `json:"retrieval_query"`
	Evidence       []EvidenceSnippet `json:"evidence"`
}

// EvidenceMap maps claim id to its retrieved evidence
type EvidenceMap map[string]EvidenceEntry

// TotalSnippets counts all snippets across claims
func (m EvidenceMap) TotalSnippets() int {
	total := 0
	for _, entry := range m {
		total += len(entry.Evidence)
	}
	return total
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Laws, statutes, academic papers, official documents
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  AuthorityTier = 3 // Blogs, personal websites, tourism sites
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// ParseAuthorityTier converts a stored tier name back into a tier
func ParseAuthorityTier(s string) AuthorityTier {
	switch s {
	case "primary":
		return TierPrimary
	case "secondary":
		return TierSecondary
	case "tertiary":
		return TierTertiary
	default:
		return TierUnknown
	}
}

// MarshalText encodes the tier by name
func (t AuthorityTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name; unknown names map to TierUnknown
func (t *AuthorityTier) UnmarshalText(text []byte) error {
	*t = ParseAuthorityTier(string(text))
	return nil
}
