// Package authority classifies knowledge-base sources into authority tiers
package authority

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/rectify/internal/model"
)

// Classifier classifies sources into authority tiers
type Classifier struct {
	primary      map[string]bool
	secondary    map[string]bool
	pathPatterns []compiledPattern
}

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.AuthorityTier
}

// NewClassifier creates a classifier from config. A nil config uses the
// built-in domain lists.
func NewClassifier(config *model.AuthorityConfig) *Classifier {
	if config == nil {
		config = &model.DefaultConfig().Authority
	}

	c := &Classifier{
		primary:   make(map[string]bool, len(config.PrimaryDomains)),
		secondary: make(map[string]bool, len(config.SecondaryDomains)),
	}
	for _, d := range config.PrimaryDomains {
		c.primary[strings.ToLower(d)] = true
	}
	for _, d := range config.SecondaryDomains {
		c.secondary[strings.ToLower(d)] = true
	}

	// Invalid patterns are skipped; Config.Validate does not check them
	for _, p := range config.PathPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		tier := model.ParseAuthorityTier(strings.ToLower(p.Tier))
		if tier == model.TierUnknown {
			tier = model.TierTertiary
		}
		c.pathPatterns = append(c.pathPatterns, compiledPattern{pattern: re, tier: tier})
	}

	return c
}

// Classify classifies a URL into an authority tier
func (c *Classifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return model.TierTertiary
	}

	host := strings.ToLower(parsed.Hostname())

	if matchDomain(c.primary, host) {
		return model.TierPrimary
	}
	if matchDomain(c.secondary, host) {
		return model.TierSecondary
	}

	// Patterns see host and path so that ".gov/" style rules can match
	target := host + parsed.EscapedPath()
	if !strings.HasSuffix(target, "/") {
		target += "/"
	}
	for _, cp := range c.pathPatterns {
		if cp.pattern.MatchString(target) {
			return cp.tier
		}
	}

	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") || strings.HasSuffix(host, ".ac.uk") {
		return model.TierPrimary
	}

	return model.TierTertiary
}

// ClassifySource classifies a document source tag. Only http(s) URLs are
// classified; file names and free-form tags are TierUnknown.
func (c *Classifier) ClassifySource(source string) model.AuthorityTier {
	lower := strings.ToLower(source)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return model.TierUnknown
	}
	return c.Classify(source)
}

// matchDomain reports whether host equals or is a subdomain of a listed domain
func matchDomain(domains map[string]bool, host string) bool {
	if domains[host] {
		return true
	}
	for d := range domains {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Distribution counts snippets per tier
func Distribution(snippets []model.EvidenceSnippet) map[model.AuthorityTier]int {
	counts := make(map[model.AuthorityTier]int)
	for _, s := range snippets {
		counts[s.Authority]++
	}
	return counts
}
