package authority

import (
	"testing"

	"github.com/ppiankov/rectify/internal/model"
)

func TestClassifier_Domains(t *testing.T) {
	config := &model.AuthorityConfig{
		PrimaryDomains:   []string{"legislation.gov.uk", "doi.org", "python.org"},
		SecondaryDomains: []string{"wikipedia.org"},
	}
	classifier := NewClassifier(config)

	tests := []struct {
		url      string
		expected model.AuthorityTier
		desc     string
	}{
		{"https://legislation.gov.uk/ukpga/1998/42", model.TierPrimary, "primary exact match"},
		{"https://www.legislation.gov.uk/statute", model.TierPrimary, "primary subdomain"},
		{"https://docs.python.org/3/tutorial/", model.TierPrimary, "primary docs subdomain"},
		{"https://en.wikipedia.org/wiki/Python_(programming_language)", model.TierSecondary, "secondary subdomain"},
		{"https://WIKIPEDIA.org/wiki/Go", model.TierSecondary, "case insensitive host"},
		{"https://notwikipedia.org/wiki/Go", model.TierTertiary, "suffix without dot boundary"},
		{"https://example.com:8443/blog", model.TierTertiary, "port stripped, unknown host"},
		{"https://www.stanford.edu/research", model.TierPrimary, "edu TLD"},
		{"https://www.ox.ac.uk/about", model.TierPrimary, "ac.uk"},
		{"https://nasa.gov/missions", model.TierPrimary, "gov TLD"},
		{"::not a url", model.TierTertiary, "unparseable"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := classifier.Classify(tt.url); got != tt.expected {
				t.Errorf("Classify(%q) = %v, want %v", tt.url, got, tt.expected)
			}
		})
	}
}

func TestClassifier_PathPatterns(t *testing.T) {
	classifier := NewClassifier(&model.AuthorityConfig{
		PathPatterns: []model.PathPattern{
			{Pattern: `/docs?/`, Tier: "secondary"},
			{Pattern: `\.gov(\.[a-z]{2})?/`, Tier: "primary"},
			{Pattern: `[`, Tier: "primary"},
			{Pattern: `/archive/`, Tier: "bogus"},
		},
	})

	tests := []struct {
		url      string
		expected model.AuthorityTier
	}{
		{"https://example.com/docs/intro", model.TierSecondary},
		{"https://example.com/doc", model.TierSecondary},
		{"https://agency.gov.au/report", model.TierPrimary},
		{"https://example.com/archive/2001", model.TierTertiary},
		{"https://example.com/blog", model.TierTertiary},
	}

	for _, tt := range tests {
		if got := classifier.Classify(tt.url); got != tt.expected {
			t.Errorf("Classify(%q) = %v, want %v", tt.url, got, tt.expected)
		}
	}
}

func TestClassifier_DefaultConfig(t *testing.T) {
	classifier := NewClassifier(nil)

	if got := classifier.Classify("https://www.britannica.com/topic/Python"); got != model.TierSecondary {
		t.Errorf("britannica = %v, want secondary", got)
	}
	if got := classifier.Classify("https://arxiv.org/abs/1706.03762"); got != model.TierPrimary {
		t.Errorf("arxiv = %v, want primary", got)
	}
}

func TestClassifySource(t *testing.T) {
	classifier := NewClassifier(nil)

	tests := []struct {
		source   string
		expected model.AuthorityTier
	}{
		{"python_docs.txt", model.TierUnknown},
		{"sample", model.TierUnknown},
		{"", model.TierUnknown},
		{"https://www.python.org/about/", model.TierPrimary},
		{"HTTP://random-blog.net/post", model.TierTertiary},
	}

	for _, tt := range tests {
		if got := classifier.ClassifySource(tt.source); got != tt.expected {
			t.Errorf("ClassifySource(%q) = %v, want %v", tt.source, got, tt.expected)
		}
	}
}

func TestDistribution(t *testing.T) {
	got := Distribution([]model.EvidenceSnippet{
		{Authority: model.TierPrimary},
		{Authority: model.TierPrimary},
		{Authority: model.TierTertiary},
		{},
	})

	if got[model.TierPrimary] != 2 || got[model.TierTertiary] != 1 || got[model.TierUnknown] != 1 {
		t.Errorf("unexpected distribution %v", got)
	}
}
