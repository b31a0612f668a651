package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rectify/internal/llm/llmtest"
	"github.com/ppiankov/rectify/internal/model"
)

const pythonAnswer = "Python is a compiled language. It was created by the author of Java in 2000. It is slow."

func TestExtract_ShortInputShortCircuits(t *testing.T) {
	fake := llmtest.New()
	e := NewClaimExtractor(fake, nil)

	claims := e.Extract(context.Background(), "Go is ok")

	require.Len(t, claims, 1)
	assert.Equal(t, "Go is ok", claims[0].Text)
	assert.Equal(t, 1.0, claims[0].Confidence)
	assert.True(t, claims[0].Atomic)
	assert.Equal(t, 0, fake.Calls(), "short input never reaches the gateway")
}

func TestExtract_NumberedClaims(t *testing.T) {
	fake := llmtest.New().On("atomic factual assertions",
		"Here are the claims:\n[CLAIM_1]: Python is a compiled language\n\n  [CLAIM_2]: Python was created by the author of Java\n[CLAIM_3]: Python was created in 2000\nDone.")
	e := NewClaimExtractor(fake, nil)

	claims := e.Extract(context.Background(), pythonAnswer)

	require.Len(t, claims, 3)
	assert.Equal(t, model.Claim{
		ID:             "claim_1",
		Text:           "Python is a compiled language",
		Confidence:     0.9,
		Atomic:         true,
		SourcePosition: 0,
	}, claims[0])
	assert.Equal(t, "claim_3", claims[2].ID)
	assert.Equal(t, 0, claims[1].SourcePosition, "paraphrased claims default to offset 0")
	assert.Equal(t, 500, fake.LastOptions().MaxTokens)
}

func TestExtract_GatewayErrorFallsBack(t *testing.T) {
	fake := llmtest.New().OnError("atomic factual assertions", "timeout")
	e := NewClaimExtractor(fake, nil)

	claims := e.Extract(context.Background(), pythonAnswer)

	require.Len(t, claims, 2)
	for _, c := range claims {
		assert.Equal(t, 0.7, c.Confidence)
		assert.False(t, c.Atomic)
	}
	assert.Equal(t, "Python is a compiled language", claims[0].Text)
	assert.Equal(t, "It was created by the author of Java in 2000", claims[1].Text)
	assert.Equal(t, strings.Index(pythonAnswer, "It was"), claims[1].SourcePosition)
}

func TestExtract_UnparseableResponseFallsBack(t *testing.T) {
	fake := llmtest.New().Default("1. Python is compiled\n2. It is old")
	claims := NewClaimExtractor(fake, nil).Extract(context.Background(), pythonAnswer)

	require.NotEmpty(t, claims)
	assert.Equal(t, 0.7, claims[0].Confidence)
}

func TestExtract_NeverEmpty(t *testing.T) {
	inputs := []string{
		"",
		"short",
		"!!!???...",
		"ok. no. yes. fine. sure.",
		"A sentence without any terminal punctuation at all",
		pythonAnswer,
	}

	e := NewClaimExtractor(llmtest.New().Default("nothing useful"), nil)
	for _, in := range inputs {
		claims := e.Extract(context.Background(), in)
		assert.NotEmpty(t, claims, "input %q", in)
	}
}

func TestFallback_WholeTextWhenNoSentenceSurvives(t *testing.T) {
	claims := Fallback("ok. no. yes. fine. sure.")
	require.Len(t, claims, 1)
	assert.Equal(t, "ok. no. yes. fine. sure.", claims[0].Text)
	assert.Equal(t, 1.0, claims[0].Confidence)
	assert.Equal(t, "claim_1", claims[0].ID)
}

func TestFallback_CJKPunctuation(t *testing.T) {
	claims := Fallback("Python是一种解释型的高级编程语言。它由吉多·范罗苏姆在1991年首次发布！")
	require.Len(t, claims, 2)
	assert.Equal(t, "claim_1", claims[0].ID)
	assert.Equal(t, "claim_2", claims[1].ID)
}

func TestFallback_IDsFollowSplitPosition(t *testing.T) {
	claims := Fallback("Tiny. Python is an interpreted language. Go was released in 2009.")
	require.Len(t, claims, 2)
	assert.Equal(t, "claim_2", claims[0].ID)
	assert.Equal(t, "claim_3", claims[1].ID)
}

func TestParseClaims_DuplicateNumbersRenumbered(t *testing.T) {
	claims := ParseClaims("[CLAIM_1]: first claim here\n[CLAIM_1]: second claim here\n[claim_2]: third claim here", "")

	require.Len(t, claims, 3)
	ids := map[string]bool{}
	for _, c := range claims {
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
	}
	assert.Equal(t, "claim_1", claims[0].ID)
	assert.Equal(t, "claim_2", claims[1].ID)
	assert.Equal(t, "claim_3", claims[2].ID)
}

func TestParseClaims_SkipsEmptyText(t *testing.T) {
	claims := ParseClaims("[CLAIM_1]:   \n[CLAIM_2]: real claim", "")
	require.Len(t, claims, 1)
	assert.Equal(t, "claim_2", claims[0].ID)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!! Three?")
	assert.Equal(t, []string{"One", "Two", "Three", ""}, got)
}
