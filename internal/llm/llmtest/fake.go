// Package llmtest provides a scripted generator for stage tests
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
)

type rule struct {
	match     string
	responses []llm.Result
	served    int
}

// Fake returns canned results keyed by prompt substring. Rules are tried
// in registration order; a rule with several responses serves them in
// sequence and then repeats the last one.
type Fake struct {
	mu       sync.Mutex
	rules    []*rule
	fallback llm.Result
	prompts  []string
	opts     []llm.Options
}

// New creates a Fake whose unmatched prompts return an empty text
func New() *Fake {
	return &Fake{}
}

// On answers prompts containing match with texts, in order
func (f *Fake) On(match string, texts ...string) *Fake {
	r := &rule{match: match}
	for _, t := range texts {
		r.responses = append(r.responses, llm.Result{
			Text:     t,
			Model:    "fake",
			Attempts: 1,
			Usage:    model.Usage{PromptTokens: 10, CompletionTokens: len(t) / 4, TotalTokens: 10 + len(t)/4},
		})
	}
	f.mu.Lock()
	f.rules = append(f.rules, r)
	f.mu.Unlock()
	return f
}

// OnError answers prompts containing match with a failed result
func (f *Fake) OnError(match, diagnostic string) *Fake {
	f.mu.Lock()
	f.rules = append(f.rules, &rule{
		match:     match,
		responses: []llm.Result{{Err: true, Text: "all retries failed after 3 attempt(s): " + diagnostic, Attempts: 3}},
	})
	f.mu.Unlock()
	return f
}

// Default sets the text returned when no rule matches
func (f *Fake) Default(text string) *Fake {
	f.mu.Lock()
	f.fallback = llm.Result{Text: text, Model: "fake", Attempts: 1}
	f.mu.Unlock()
	return f
}

// GenerateWithRetry implements llm.Generator
func (f *Fake) GenerateWithRetry(ctx context.Context, prompt string, opts llm.Options) llm.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)

	if err := ctx.Err(); err != nil {
		return llm.Result{Err: true, Text: "all retries failed after 0 attempt(s): " + err.Error()}
	}

	for _, r := range f.rules {
		if !strings.Contains(prompt, r.match) || len(r.responses) == 0 {
			continue
		}
		idx := r.served
		if idx >= len(r.responses) {
			idx = len(r.responses) - 1
		}
		r.served++
		return r.responses[idx]
	}
	return f.fallback
}

// Calls returns the number of prompts received
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// CallsMatching returns how many prompts contained substr
func (f *Fake) CallsMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}

// Prompts returns a copy of every prompt received
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

// LastOptions returns the options of the most recent call
func (f *Fake) LastOptions() llm.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opts) == 0 {
		return llm.Options{}
	}
	return f.opts[len(f.opts)-1]
}
