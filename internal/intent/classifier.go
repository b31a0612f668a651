// Package intent labels queries with a task intent and builds
// intent-specific retrieval reformulations.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
)

// Retrieval reformulation templates by intent
var retrievalTemplates = map[model.Intent]string{
	model.IntentFactual:    "find specific facts about [%s]",
	model.IntentComparison: "find comparative information on [%s]",
	model.IntentProcedural: "find methods or steps for how to [%s]",
	model.IntentOpinion:    "find differing viewpoints or assessments of [%s]",
}

// Extraction patterns tried after containment matching
var labelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)intent[:：]?\s*(\S+)`),
	regexp.MustCompile(`^(\S+)`),
	regexp.MustCompile(`(?i)type[:：]?\s*(\S+)`),
}

const maxComparedEntities = 2

// Classifier labels queries with one of a closed set of intents
type Classifier struct {
	gen           llm.Generator
	intents       []model.Intent
	defaultIntent model.Intent
	logger        *zap.Logger
}

// NewClassifier creates a classifier over intents. An empty set uses the
// built-in intents; a default outside the set falls back to the first intent.
func NewClassifier(gen llm.Generator, intents []model.Intent, defaultIntent model.Intent, logger *zap.Logger) *Classifier {
	if len(intents) == 0 {
		intents = model.DefaultIntents
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Classifier{
		gen:     gen,
		intents: intents,
		logger:  logger,
	}
	c.defaultIntent = intents[0]
	if c.contains(model.NormalizeIntent(string(defaultIntent))) {
		c.defaultIntent = model.NormalizeIntent(string(defaultIntent))
	}
	return c
}

// Intents returns the configured intent set
func (c *Classifier) Intents() []model.Intent {
	return c.intents
}

// Default returns the fallback intent
func (c *Classifier) Default() model.Intent {
	return c.defaultIntent
}

// Classify returns the intent of query. The result is always a member of
// the configured set: gateway failures and unparseable answers yield the default.
func (c *Classifier) Classify(ctx context.Context, query string) model.Intent {
	names := make([]string, len(c.intents))
	for i, in := range c.intents {
		names[i] = string(in)
	}

	res := c.gen.GenerateWithRetry(ctx, llm.IntentClassificationPrompt(query, names), llm.Options{
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if res.Err {
		c.logger.Warn("intent classification failed, using default",
			zap.String("default", string(c.defaultIntent)),
			zap.String("diagnostic", res.Text))
		return c.defaultIntent
	}

	return c.Parse(res.Text)
}

// Parse maps a raw classification response onto the intent set by
// containment, then by extraction patterns, then the default
func (c *Classifier) Parse(response string) model.Intent {
	cleaned := strings.ToLower(strings.TrimSpace(response))

	for _, in := range c.intents {
		if strings.Contains(cleaned, string(in)) {
			return in
		}
	}

	for _, re := range labelPatterns {
		m := re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		if candidate := model.NormalizeIntent(m[1]); c.contains(candidate) {
			return candidate
		}
	}

	return c.defaultIntent
}

func (c *Classifier) contains(in model.Intent) bool {
	for _, known := range c.intents {
		if known == in {
			return true
		}
	}
	return false
}

// RetrievalQuery builds the intent-specific reformulation of query.
// Comparison queries substitute the compared entities when at least two
// can be extracted; intents without a template return query unchanged.
func (c *Classifier) RetrievalQuery(ctx context.Context, query string, intent model.Intent) string {
	tmpl, ok := retrievalTemplates[intent]
	if !ok {
		return query
	}

	subject := query
	if intent == model.IntentComparison {
		if entities := c.ComparedEntities(ctx, query); len(entities) >= 2 {
			subject = strings.Join(entities, " and ")
		}
	}

	return fmt.Sprintf(tmpl, subject)
}

// ComparedEntities asks the model for the (at most two) entities compared
// in query. Returns nil when the call fails.
func (c *Classifier) ComparedEntities(ctx context.Context, query string) []string {
	res := c.gen.GenerateWithRetry(ctx, llm.ComparisonEntitiesPrompt(query), llm.Options{
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if res.Err {
		c.logger.Warn("comparison entity extraction failed", zap.String("diagnostic", res.Text))
		return nil
	}

	fields := strings.FieldsFunc(res.Text, func(r rune) bool {
		return r == ',' || r == '，' || r == '、' || r == '\n'
	})

	var entities []string
	for _, f := range fields {
		if e := strings.TrimSpace(f); e != "" {
			entities = append(entities, e)
		}
		if len(entities) == maxComparedEntities {
			break
		}
	}
	return entities
}
