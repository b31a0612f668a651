// Package extract decomposes answer text into atomic claims
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
)

// minTextLength is the rune count below which text is not decomposed
const minTextLength = 10

// claimLine matches "[CLAIM_n]: text"
var claimLine = regexp.MustCompile(`(?i)^\[CLAIM_(\d+)\]\s*[:：]\s*(.+)$`)

// ClaimExtractor decomposes text into atomic claims via the model gateway,
// falling back to sentence splitting
type ClaimExtractor struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewClaimExtractor creates a new claim extractor
func NewClaimExtractor(gen llm.Generator, logger *zap.Logger) *ClaimExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimExtractor{gen: gen, logger: logger}
}

// Extract returns the claims of text. It never returns an empty slice.
func (e *ClaimExtractor) Extract(ctx context.Context, text string) []model.Claim {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minTextLength {
		return []model.Claim{wholeClaim(text)}
	}

	res := e.gen.GenerateWithRetry(ctx, llm.ClaimExtractionPrompt(text), llm.Options{
		MaxTokens:   500,
		Temperature: 0.1,
	})
	if res.Err {
		e.logger.Warn("claim extraction failed, splitting sentences", zap.String("diagnostic", res.Text))
		return Fallback(text)
	}

	claims := ParseClaims(res.Text, text)
	if len(claims) == 0 {
		e.logger.Debug("no numbered claims in response, splitting sentences")
		return Fallback(text)
	}
	return claims
}

// ParseClaims reads "[CLAIM_n]: text" lines. Ids are claim_n; a repeated
// number is renumbered to the next free id.
func ParseClaims(response, original string) []model.Claim {
	var claims []model.Claim
	used := make(map[string]bool)
	maxNum := 0

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := claimLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		claimText := strings.TrimSpace(m[2])
		if claimText == "" {
			continue
		}

		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		id := claimID(num)
		if used[id] {
			num = maxNum + 1
			id = claimID(num)
		}
		used[id] = true
		if num > maxNum {
			maxNum = num
		}

		claims = append(claims, model.Claim{
			ID:             id,
			Text:           claimText,
			Confidence:     model.ConfidenceDecomposed,
			Atomic:         true,
			SourcePosition: position(claimText, original),
		})
	}

	return claims
}

// Fallback splits text on terminal punctuation and keeps fragments longer
// than ten characters. When nothing survives, the whole text is one claim.
func Fallback(text string) []model.Claim {
	var claims []model.Claim
	for i, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(sentence) <= minTextLength {
			continue
		}
		claims = append(claims, model.Claim{
			ID:             claimID(i + 1),
			Text:           sentence,
			Confidence:     model.ConfidenceSentence,
			Atomic:         false,
			SourcePosition: position(sentence, text),
		})
	}

	if len(claims) == 0 {
		return []model.Claim{wholeClaim(text)}
	}
	return claims
}

func wholeClaim(text string) model.Claim {
	return model.Claim{
		ID:         claimID(1),
		Text:       text,
		Confidence: model.ConfidenceWhole,
		Atomic:     true,
	}
}

func claimID(n int) string {
	return fmt.Sprintf("claim_%d", n)
}

// position estimates the byte offset of claim within original, 0 if absent
func position(claim, original string) int {
	if idx := strings.Index(original, claim); idx >= 0 {
		return idx
	}
	return 0
}

// splitSentences splits on runs of terminal punctuation (ASCII and CJK).
// Fragments are trimmed; empty fragments are kept so that indexes stay
// aligned with the split positions.
func splitSentences(text string) []string {
	isTerminal := func(r rune) bool {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			return true
		}
		return false
	}

	var sentences []string
	var current strings.Builder
	prevTerminal := false

	for _, r := range text {
		if isTerminal(r) {
			if !prevTerminal {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
			}
			prevTerminal = true
			continue
		}
		prevTerminal = false
		current.WriteRune(r)
	}

	// Add remaining text
	sentences = append(sentences, strings.TrimSpace(current.String()))

	return sentences
}
