package correct

import "github.com/ppiankov/rectify/internal/model"

// Strategy holds the structural obligations of a corrected answer
type Strategy struct {
	Role         string   // Expert persona the model adopts
	Label        string   // Human label of the intent
	Deliverable  string   // What the output is called
	Requirements []string // Numbered obligations
	Closing      string   // Final quality statement
}

var factualStrategy = Strategy{
	Role:        "a fact-checking expert",
	Label:       "factual query",
	Deliverable: "corrected answer",
	Requirements: []string{
		"Rely strictly on the verified evidence and add no unverified information",
		"Keep an objective, accurate and concise professional style",
		"Where claims could not be verified or are contradicted, state the limitation explicitly",
		"Prefer well-supported evidence and explain any contradicting evidence",
		"Keep the answer complete and coherent",
	},
	Closing: "The corrected answer should answer the original query directly and reflect the rigour of the verification.",
}

var strategies = map[model.Intent]Strategy{
	model.IntentFactual: factualStrategy,
	model.IntentComparison: {
		Role:        "a comparative analysis expert",
		Label:       "comparison query",
		Deliverable: "corrected comparison",
		Requirements: []string{
			"Cover the compared dimensions completely and in balance, avoiding bias",
			"Give concrete points of comparison backed by evidence and data",
			"Present the strengths and weaknesses of each side objectively",
			"Where a comparison point lacks evidence, phrase it cautiously and state the uncertainty",
			"Offer an evidence-based conclusion or recommendation",
		},
		Closing: "The corrected comparison should follow a structured side-by-side framework with evidence-based judgments.",
	},
	model.IntentProcedural: {
		Role:        "a procedural guidance expert",
		Label:       "procedural query",
		Deliverable: "corrected guide",
		Requirements: []string{
			"Ensure every step is feasible, correct and safe",
			"Give clear, ordered instructions",
			"Adjust or complete problematic steps based on the verified evidence",
			"Include necessary precautions and solutions to common problems",
			"Mark steps that lack sufficient verification as uncertain",
		},
		Closing: "The corrected guide should be practical and actionable.",
	},
	model.IntentOpinion: {
		Role:        "an opinion survey expert",
		Label:       "opinion query",
		Deliverable: "corrected survey",
		Requirements: []string{
			"Present the different positions and their arguments fully and in balance",
			"State each position objectively based on evidence, avoiding subjective bias",
			"Separate factual content clearly from opinion",
			"Mark viewpoints lacking sufficient evidence as contested",
			"Provide an evidence-based synthesis or trend assessment",
		},
		Closing: "The corrected survey should reflect multiple perspectives and objective analysis.",
	},
}

// StrategyFor returns the strategy of intent, factual for unknown intents
func StrategyFor(intent model.Intent) Strategy {
	if s, ok := strategies[intent]; ok {
		return s
	}
	return factualStrategy
}
