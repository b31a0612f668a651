package ingest

import "github.com/ppiankov/rectify/internal/store"

// Samples is the built-in starter knowledge base used by `kb seed`
var Samples = []Document{
	sample("Machine learning is a branch of artificial intelligence focused on algorithms and statistical models that let computers learn from data without being explicitly programmed.",
		"https://en.wikipedia.org/wiki/Machine_learning", "definition", "machine_learning"),
	sample("Deep learning is a machine learning approach based on neural network architectures that learn feature representations automatically. It performs well in image recognition and natural language processing.",
		"https://arxiv.org/abs/1404.7828", "technical", "deep_learning"),
	sample("Python is a high-level programming language created by Guido van Rossum and first released in 1991. It is known for a simple, readable syntax.",
		"https://www.python.org/doc/essays/foreword/", "definition", "programming"),
	sample("Neural networks are inspired by the structure of the brain. They consist of interconnected nodes (neurons) and learn complex patterns through training.",
		"textbook", "technical", "neural_networks"),
	sample("Natural language processing (NLP) is a field of artificial intelligence concerned with the interaction between computers and human language.",
		"https://en.wikipedia.org/wiki/Natural_language_processing", "definition", "nlp"),
	sample("The Transformer architecture is a breakthrough in natural language processing. It relies on self-attention to process sequence data efficiently.",
		"https://arxiv.org/abs/1706.03762", "technical", "transformer"),
	sample("Large language models (LLMs) are large-scale neural networks built on the Transformer architecture that generate human-like text.",
		"tech_blog", "definition", "llm"),
	sample("Hallucination is the phenomenon of a large language model generating information that is inaccurate, fabricated or unsupported by evidence.",
		"https://arxiv.org/abs/2311.05232", "definition", "hallucination"),
	sample("Retrieval-augmented generation (RAG) combines a retrieval system with a generative model to reduce hallucination and improve answer accuracy.",
		"https://arxiv.org/abs/2005.11401", "technical", "rag"),
	sample("BERT is a Transformer model developed by Google that provides contextual understanding through bidirectional encoder representations.",
		"https://arxiv.org/abs/1810.04805", "technical", "bert"),
	sample("Java is a programming language developed by James Gosling at Sun Microsystems and released in 1995.",
		"https://en.wikipedia.org/wiki/Java_(programming_language)", "definition", "programming"),
}

func sample(text, source, kind, topic string) Document {
	return Document{
		Text: text,
		Metadata: map[string]any{
			store.MetaSource: source,
			"type":           kind,
			"topic":          topic,
		},
	}
}
