package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/rectify/internal/llm"
	"github.com/ppiankov/rectify/internal/model"
)

type stageResult = map[string]interface{}

func (p *Pipeline) generateInitialAnswer(ctx context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	prompt := llm.InitialAnswerPrompt(run.Query, run.Context)
	res := p.deps.Generator.GenerateWithRetry(ctx, prompt, llm.Options{
		MaxTokens:   p.config.LLM.MaxTokens,
		Temperature: p.config.LLM.Temperature,
	})

	meta := stageResult{
		"prompt_length": utf8.RuneCountInString(prompt),
		"attempts":      res.Attempts,
	}
	if res.Err {
		return model.StageFailed, meta, fmt.Errorf("%w: %s", ErrNoAnswer, res.Text)
	}

	answer := strings.TrimSpace(res.Text)
	if answer == "" {
		return model.StageFailed, meta, fmt.Errorf("%w: empty response", ErrNoAnswer)
	}

	run.InitialAnswer = answer
	meta["response_length"] = utf8.RuneCountInString(answer)
	meta["usage"] = res.Usage
	return model.StageOK, meta, nil
}

func skipInitialAnswer(_ context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	return model.StageSkipped, stageResult{
		"source":          "caller",
		"response_length": utf8.RuneCountInString(run.InitialAnswer),
	}, nil
}

func (p *Pipeline) classifyIntent(ctx context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	run.Intent = p.deps.Classifier.Classify(ctx, run.Query)
	return model.StageOK, stageResult{"intent": string(run.Intent)}, nil
}

func (p *Pipeline) extractClaims(ctx context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	claims := p.deps.Extractor.Extract(ctx, run.InitialAnswer)
	if len(claims) == 0 {
		return model.StageFailed, nil, fmt.Errorf("extractor returned no claims")
	}

	seen := make(map[string]bool, len(claims))
	atomic := 0
	for _, c := range claims {
		if seen[c.ID] {
			return model.StageFailed, nil, fmt.Errorf("duplicate claim id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Atomic {
			atomic++
		}
	}

	run.Claims = claims
	return model.StageOK, stageResult{
		"claim_count":  len(claims),
		"atomic_count": atomic,
	}, nil
}

func (p *Pipeline) retrieveEvidence(ctx context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	evidence, err := p.deps.Retriever.Retrieve(ctx, run.Claims, run.Query, run.Intent)
	if err != nil {
		return model.StageFailed, stageResult{"claims": len(run.Claims)}, err
	}

	run.EvidenceMap = evidence
	withEvidence := 0
	for _, entry := range evidence {
		if len(entry.Evidence) > 0 {
			withEvidence++
		}
	}
	return model.StageOK, stageResult{
		"claims":               len(run.Claims),
		"claims_with_evidence": withEvidence,
		"snippets":             evidence.TotalSnippets(),
	}, nil
}

func (p *Pipeline) verifyClaims(ctx context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	verifications := p.deps.Verifier.VerifyAll(ctx, run.Claims, run.EvidenceMap, run.Query, run.Intent)
	if len(verifications) != len(run.Claims) {
		return model.StageFailed, nil, fmt.Errorf("got %d verifications for %d claims", len(verifications), len(run.Claims))
	}
	for i, v := range verifications {
		if v.ClaimID != run.Claims[i].ID {
			return model.StageFailed, nil, fmt.Errorf("verification %d is for %q, want %q", i, v.ClaimID, run.Claims[i].ID)
		}
	}

	run.Verifications = verifications

	counts := model.CountVerdicts(verifications)
	meta := stageResult{"verifications": len(verifications)}
	for _, verdict := range model.Verdicts {
		meta[strings.ToLower(string(verdict))] = counts[verdict]
	}
	errored, fallback := 0, 0
	for _, v := range verifications {
		if v.Error {
			errored++
		}
		if v.Fallback {
			fallback++
		}
	}
	meta["errors"] = errored
	meta["fallbacks"] = fallback
	return model.StageOK, meta, nil
}

func (p *Pipeline) correctAnswer(ctx context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	result := p.deps.Corrector.Correct(ctx, run.InitialAnswer, run.Verifications, run.Query, run.Intent)
	if result == nil {
		return model.StageFailed, nil, fmt.Errorf("corrector returned no result")
	}

	run.Correction = result
	return model.StageOK, stageResult{
		"supported_claims":    result.SupportedClaims,
		"contradicted_claims": result.ContradictedClaims,
		"answer_length":       utf8.RuneCountInString(result.CorrectedAnswer),
		"degraded":            result.Failed,
	}, nil
}

func (p *Pipeline) detectHallucination(ctx context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	analysis := p.deps.Detector.Detect(ctx, run.Query, run.InitialAnswer, run.CorrectedAnswer(), run.Claims, run.EvidenceMap)
	if analysis == nil {
		return model.StageFailed, nil, fmt.Errorf("detector returned no analysis")
	}

	run.Hallucination = analysis
	return model.StageOK, stageResult{
		"has_hallucination": analysis.HasHallucination,
		"type":              string(analysis.Type),
		"degraded":          analysis.ParseError != "",
	}, nil
}

func (p *Pipeline) assembleReport(_ context.Context, run *model.PipelineRun) (model.StageStatus, stageResult, error) {
	run.Report = p.deps.Scorer.Calculate(run)
	return model.StageOK, stageResult{
		"signals":         len(run.Report.Signals),
		"recommendations": len(run.Report.Recommendations),
	}, nil
}
