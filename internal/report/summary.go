package report

import (
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/rectify/internal/model"
)

// Summary aggregates a batch of runs
type Summary struct {
	TotalQueries        int                  `json:"total_queries"`
	Successful          int                  `json:"successful_queries"`
	Failed              int                  `json:"failed_queries"`
	SuccessRate         float64              `json:"success_rate"` // percent
	AverageDuration     time.Duration        `json:"average_duration_ns"`
	MinDuration         time.Duration        `json:"min_duration_ns"`
	MaxDuration         time.Duration        `json:"max_duration_ns"`
	TotalDuration       time.Duration        `json:"total_duration_ns"`
	AverageQuality      float64              `json:"average_quality_score"` // mean support ratio
	QualityDistribution QualityDistribution  `json:"quality_distribution"`
	Hallucinations      int                  `json:"hallucinations_detected"`
	Intents             map[model.Intent]int `json:"intents"`
	FailedStages        map[string]int       `json:"failed_stages"`
	CommonErrors        []ErrorCount         `json:"common_errors"`
	Recommendations     []string             `json:"recommendations"`
	Timestamp           time.Time            `json:"timestamp"`
}

// QualityDistribution buckets runs by support ratio
type QualityDistribution struct {
	Excellent int `json:"excellent"` // >= 0.9
	Good      int `json:"good"`      // [0.7, 0.9)
	Fair      int `json:"fair"`      // [0.5, 0.7)
	Poor      int `json:"poor"`      // < 0.5
}

// ErrorCount is one distinct failure message and its frequency
type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

// Recommendation texts for failed batches
const (
	RecommendCheckCredentials = "check API key configuration and network connectivity"
	RecommendRaiseTimeout     = "increase llm.timeout or lower batch.concurrency"
	RecommendCheckKnowledge   = "check the knowledge base backend and embedding service"
	RecommendReadLogs         = "no specific recommendation, check the logs for details"
)

// Summarize computes batch statistics. Only successful runs contribute
// to duration and quality figures.
func Summarize(runs []*model.PipelineRun, now time.Time) Summary {
	s := Summary{
		TotalQueries: len(runs),
		Intents:      make(map[model.Intent]int),
		FailedStages: make(map[string]int),
		Timestamp:    now,
	}

	var failed []*model.PipelineRun
	var qualitySum float64
	var qualityRuns int

	for _, run := range runs {
		if run == nil {
			continue
		}
		if !run.Success {
			s.Failed++
			failed = append(failed, run)
			if run.FailedStage != "" {
				s.FailedStages[run.FailedStage]++
			}
			continue
		}

		s.Successful++
		if run.Intent != "" {
			s.Intents[run.Intent]++
		}
		if run.Hallucination != nil && run.Hallucination.HasHallucination {
			s.Hallucinations++
		}

		d := run.Duration()
		s.TotalDuration += d
		if s.Successful == 1 || d < s.MinDuration {
			s.MinDuration = d
		}
		if d > s.MaxDuration {
			s.MaxDuration = d
		}

		if len(run.Verifications) > 0 {
			q := model.SupportRatio(run.Verifications)
			qualitySum += q
			qualityRuns++
			switch {
			case q >= 0.9:
				s.QualityDistribution.Excellent++
			case q >= 0.7:
				s.QualityDistribution.Good++
			case q >= 0.5:
				s.QualityDistribution.Fair++
			default:
				s.QualityDistribution.Poor++
			}
		}
	}

	if s.TotalQueries > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalQueries) * 100
	}
	if s.Successful > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(s.Successful)
	}
	if qualityRuns > 0 {
		s.AverageQuality = qualitySum / float64(qualityRuns)
	}

	s.CommonErrors = commonErrors(failed)
	s.Recommendations = recommendations(failed)
	return s
}

func commonErrors(failed []*model.PipelineRun) []ErrorCount {
	counts := make(map[string]int)
	for _, run := range failed {
		msg := run.Error
		if msg == "" {
			msg = "unknown error"
		}
		counts[msg]++
	}

	out := make([]ErrorCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	return out
}

func recommendations(failed []*model.PipelineRun) []string {
	if len(failed) == 0 {
		return nil
	}

	var api, timeout, retrieval bool
	for _, run := range failed {
		msg := strings.ToLower(run.Error)
		if strings.Contains(msg, "api") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") {
			api = true
		}
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
			timeout = true
		}
		if run.FailedStage == model.StageRetrieve {
			retrieval = true
		}
	}

	var recs []string
	if api {
		recs = append(recs, RecommendCheckCredentials)
	}
	if timeout {
		recs = append(recs, RecommendRaiseTimeout)
	}
	if retrieval {
		recs = append(recs, RecommendCheckKnowledge)
	}
	if len(recs) == 0 {
		recs = append(recs, RecommendReadLogs)
	}
	return recs
}
