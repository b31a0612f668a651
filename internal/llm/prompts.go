package llm

import (
	"fmt"
	"strings"
)

// InitialAnswerPrompt asks for an unverified first answer to question
func InitialAnswerPrompt(question, context string) string {
	var b strings.Builder
	b.WriteString("Answer the following question directly. Do not fact-check or hedge; give the answer you consider most appropriate.\n\n")
	if context != "" {
		fmt.Fprintf(&b, "Context: %s\n\n", context)
	}
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Provide a detailed, complete answer including all relevant information and background:\n")
	return b.String()
}

// IntentClassificationPrompt asks the model to pick one label from intents
func IntentClassificationPrompt(query string, intents []string) string {
	var b strings.Builder
	b.WriteString("You are a query intent classifier. Decide which intent best describes the user's query.\n\n")
	b.WriteString("## Categories\n")
	for _, intent := range intents {
		fmt.Fprintf(&b, "- %s: %s\n", intent, intentDescription(intent))
	}
	b.WriteString("\n## Rules\n")
	b.WriteString("1. Queries with words such as \"compare\", \"versus\", \"difference\" or \"which is better\" are comparison\n")
	b.WriteString("2. Queries with words such as \"how to\", \"steps\" or \"method\" are procedural\n")
	b.WriteString("3. Queries asking for \"opinions\", \"views\", \"assessments\" or \"controversy\" are opinion\n")
	b.WriteString("4. Everything else is factual\n\n")
	b.WriteString("## Output\nReturn only the intent name, without explanation.\n\n")
	fmt.Fprintf(&b, "Query: %q\nIntent:", query)
	return b.String()
}

func intentDescription(intent string) string {
	switch intent {
	case "factual":
		return "seeks specific facts, data, definitions or properties"
	case "comparison":
		return "compares two or more entities, concepts or methods"
	case "procedural":
		return "seeks a process, solution or sequence of steps"
	case "opinion":
		return "collects viewpoints, assessments or contested positions"
	default:
		return "custom intent"
	}
}

// ComparisonEntitiesPrompt asks for the entities compared in query
func ComparisonEntitiesPrompt(query string) string {
	return fmt.Sprintf("Extract the main entities being compared in the following query (usually two).\n"+
		"Query: %q\n\n"+
		"Return only the entity names separated by commas, nothing else.", query)
}

// ClaimExtractionPrompt asks for numbered atomic claims, one per line
func ClaimExtractionPrompt(text string) string {
	return fmt.Sprintf("Task: decompose the text below into independent atomic factual assertions.\n"+
		"Each assertion must be self-contained and verifiable on its own.\n"+
		"Write one assertion per line using exactly this format:\n"+
		"[CLAIM_1]: first assertion\n"+
		"[CLAIM_2]: second assertion\n\n"+
		"Text: %q\n\n"+
		"Assertions:\n", text)
}

// VerificationEvidence is one evidence line rendered into a verification prompt
type VerificationEvidence struct {
	Text       string
	Source     string
	Similarity float64
	Authority  string
}

// VerificationPrompt asks for a JSON verdict on claim against evidence
func VerificationPrompt(intent, query, claim string, evidence []VerificationEvidence) string {
	var ev strings.Builder
	for i, e := range evidence {
		fmt.Fprintf(&ev, "[%d] (source: %s, similarity: %.2f", i+1, e.Source, e.Similarity)
		if e.Authority != "" {
			fmt.Fprintf(&ev, ", authority: %s", e.Authority)
		}
		fmt.Fprintf(&ev, ")\n%s\n\n", e.Text)
	}

	return fmt.Sprintf(`As a fact-checking expert, verify the following claim using only the evidence provided.

Query intent: %s
Original query: %q
Claim to verify: %q

Evidence:
%s
Respond with a JSON object in exactly this shape:
{
  "verdict": "SUPPORTED|CONTRADICTED|PARTIALLY_SUPPORTED|UNVERIFIED",
  "confidence": 0.0-1.0,
  "supporting_evidence": [{"text": "evidence text", "source": "source name", "relevance_score": 0.0-1.0}],
  "contradicting_evidence": [{"text": "evidence text", "source": "source name", "contradiction_score": 0.0-1.0}],
  "reasoning": "step by step reasoning",
  "intent_specific_analysis": "analysis specific to the query intent"
}
`, intent, query, claim, ev.String())
}

// HallucinationPrompt asks for a JSON comparison of the initial and corrected answers
func HallucinationPrompt(question, initialAnswer, correctedAnswer, evidence string) string {
	return fmt.Sprintf(`As a hallucination detection expert, analyse whether the AI answer below contains hallucinations (fabricated, inaccurate or unsupported content).

## Criteria
- FACTUAL: statements that contradict verifiable facts
- LOGICAL: reasoning that is contradictory or incoherent
- EVIDENTIAL: key statements lacking reliable evidence
- CONSISTENCY: content inconsistent with known information or context

## Material
Question: %q
Initial answer: %q
Verified answer: %q
Evidence:
%s

## Output
Respond with a JSON object in exactly this shape:
{
  "has_hallucination": true|false,
  "hallucination_type": "FACTUAL|LOGICAL|EVIDENTIAL|CONSISTENCY|MIXED|NONE",
  "confidence": 0.0-1.0,
  "affected_sections": [{"text": "affected text", "type": "type", "severity": "LOW|MEDIUM|HIGH", "correction": "suggested correction"}],
  "comparison_analysis": {
    "initial_answer_quality": "assessment",
    "verification_impact": "what verification changed",
    "key_differences": "main differences",
    "overall_improvement": "overall improvement"
  },
  "recommendations": ["recommendation"]
}
`, question, initialAnswer, correctedAnswer, evidence)
}
