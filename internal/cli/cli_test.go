package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/rectify/internal/ingest"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/report"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testViper(t *testing.T, path string) *viper.Viper {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	v := viper.New()
	configureViper(v, path)
	return v
}

func TestLoadConfig_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_RECTIFY_KEY", "sk-from-env")
	path := writeConfig(t, `
llm:
  provider: openai
  api_key: ${TEST_RECTIFY_KEY}
  model: gpt-4o-mini
retrieval:
  similarity_threshold: 0.6
`)

	cfg, err := loadConfig(testViper(t, path))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.InDelta(t, 0.6, cfg.Retrieval.SimilarityThreshold, 1e-9)
	// untouched sections keep their defaults
	assert.Equal(t, 5, cfg.Retrieval.MaxRetrievedDocs)
	assert.Equal(t, "knowledge_base", cfg.VectorDB.CollectionName)
	assert.Equal(t, []string{"factual", "comparison", "procedural", "opinion"}, cfg.Intent.SupportedIntents)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  max_retrieved_docs: 3\n")
	t.Setenv("RECTIFY_RETRIEVAL_MAX_RETRIEVED_DOCS", "7")
	t.Setenv("RECTIFY_VECTOR_DB_BACKEND", "postgres")
	t.Setenv("RECTIFY_VECTOR_DB_DSN", "postgres://localhost/rectify")

	cfg, err := loadConfig(testViper(t, path))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Retrieval.MaxRetrievedDocs)
	assert.Equal(t, "postgres", cfg.VectorDB.Backend)
	assert.Equal(t, "postgres://localhost/rectify", cfg.VectorDB.DSN)
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(testViper(t, ""))
	require.NoError(t, err)

	def := model.DefaultConfig()
	assert.Equal(t, def.LLM.Provider, cfg.LLM.Provider)
	assert.Equal(t, def.Server.Addr, cfg.Server.Addr)
	assert.Equal(t, def.Authority.PathPatterns, cfg.Authority.PathPatterns)
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	_, err := loadConfig(testViper(t, filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeConfig(t, "llm: [unclosed\n")
	_, err := loadConfig(testViper(t, path))
	assert.Error(t, err)
}

func TestApplyKeyFallbacks(t *testing.T) {
	env := map[string]string{
		"DEEPSEEK_API_KEY":  "sk-deepseek",
		"OPENAI_API_KEY":    "sk-openai",
		"ANTHROPIC_API_KEY": "sk-ant",
		"OLLAMA_BASE_URL":   "http://ollama:11434",
	}
	getenv := func(k string) string { return env[k] }

	tests := []struct {
		name         string
		provider     string
		apiKey       string
		wantKey      string
		wantEmbedKey string
	}{
		{"deepseek from env", "deepseek", "", "sk-deepseek", "sk-openai"},
		{"anthropic from env", "anthropic", "", "sk-ant", "sk-openai"},
		{"claude alias", "claude", "", "sk-ant", "sk-openai"},
		{"explicit key kept", "deepseek", "sk-config", "sk-config", "sk-openai"},
		{"ollama needs none", "ollama", "", "", "sk-openai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.DefaultConfig()
			cfg.LLM.Provider = tt.provider
			cfg.LLM.APIKey = tt.apiKey

			applyKeyFallbacks(cfg, getenv)

			assert.Equal(t, tt.wantKey, cfg.LLM.APIKey)
			assert.Equal(t, tt.wantEmbedKey, cfg.VectorDB.EmbeddingAPIKey)
		})
	}
}

func TestApplyKeyFallbacks_OpenAIKeyReusedForEmbeddings(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-config"

	applyKeyFallbacks(cfg, func(string) string { return "" })

	assert.Equal(t, "sk-config", cfg.VectorDB.EmbeddingAPIKey)
}

func TestApplyKeyFallbacks_OllamaBaseURL(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "ollama"

	applyKeyFallbacks(cfg, func(k string) string {
		if k == "OLLAMA_BASE_URL" {
			return "http://ollama:11434"
		}
		return ""
	})

	assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
	assert.Empty(t, cfg.VectorDB.EmbeddingAPIKey)
}

func TestRenderDefaultConfig_IsLoadable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderDefaultConfig(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "# rectify configuration file"))

	var got model.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	if diff := cmp.Diff(model.DefaultConfig(), &got); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDefaultConfig_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".rectify", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	cfg, err := loadConfig(testViper(t, path))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig().LLM.Model, cfg.LLM.Model)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "sk-a****yz", maskSecret("sk-abcdefghijklmnopqrstuvwxyz"))

	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-abcdefghijklmnop"
	m := masked(cfg)
	assert.NotContains(t, m.LLM.APIKey, "efghij")
	assert.Equal(t, "sk-abcdefghijklmnop", cfg.LLM.APIKey, "original must not be modified")
}

func TestConfigValidateCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	bad := writeConfig(t, "llm:\n  provider: bogus\n")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"config", "validate", "--config", bad})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, out.String(), `✗ llm.provider "bogus" is not supported`)

	good := writeConfig(t, "llm:\n  provider: ollama\nvector_db:\n  backend: memory\n")
	out.Reset()
	rootCmd.SetArgs([]string{"config", "validate", "--config", good})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "✓ Configuration is valid")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "rectify dev\n", out.String())
}

func stubRun(query string) *model.PipelineRun {
	return &model.PipelineRun{ID: "run-" + query, Query: query, Success: true}
}

func TestInteractiveLoop(t *testing.T) {
	in := strings.NewReader("Who created Python?\n\n   \nexit\nnever asked\n")
	var out, prompt bytes.Buffer
	var asked []string

	err := interactiveLoop(context.Background(), in, &out, &prompt, func(q string) *model.PipelineRun {
		asked = append(asked, q)
		return stubRun(q)
	}, report.NewRenderer())

	require.NoError(t, err)
	assert.Equal(t, []string{"Who created Python?"}, asked)
	assert.Contains(t, out.String(), "**Query:** Who created Python?")
	assert.Contains(t, prompt.String(), "Type 'exit' to quit")
}

func TestInteractiveLoop_EOF(t *testing.T) {
	var out, prompt bytes.Buffer
	calls := 0
	err := interactiveLoop(context.Background(), strings.NewReader("a\nb"), &out, &prompt, func(q string) *model.PipelineRun {
		calls++
		return stubRun(q)
	}, report.NewRenderer())

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWriteRun(t *testing.T) {
	run := stubRun("q")
	r := report.NewRenderer()

	t.Run("markdown to stdout by default", func(t *testing.T) {
		var out, errOut bytes.Buffer
		require.NoError(t, writeRun(&out, &errOut, r, run, "", ""))
		assert.Contains(t, out.String(), "# Rectify Report")
	})

	t.Run("json to stdout", func(t *testing.T) {
		var out, errOut bytes.Buffer
		require.NoError(t, writeRun(&out, &errOut, r, run, "-", ""))
		assert.Contains(t, out.String(), `"id": "run-q"`)
	})

	t.Run("files", func(t *testing.T) {
		dir := t.TempDir()
		jsonPath := filepath.Join(dir, "out", "run.json")
		mdPath := filepath.Join(dir, "out", "run.md")

		var out, errOut bytes.Buffer
		require.NoError(t, writeRun(&out, &errOut, r, run, jsonPath, mdPath))

		assert.Empty(t, out.String())
		assert.FileExists(t, jsonPath)
		assert.FileExists(t, mdPath)
		assert.Contains(t, errOut.String(), "Wrote JSON report")
	})
}

func TestSplitSources(t *testing.T) {
	urls, paths := splitSources([]string{"./docs", "https://www.python.org/", "HTTP://example.com", "notes.md"})
	assert.Equal(t, []string{"https://www.python.org/", "HTTP://example.com"}, urls)
	assert.Equal(t, []string{"./docs", "notes.md"}, paths)
}

func TestMergeStats(t *testing.T) {
	a := ingest.Stats{Documents: 1, Chunks: 2, IDs: []string{"a", "b"}}
	b := ingest.Stats{Documents: 2, Chunks: 2, IDs: []string{"c", "d"}, Skipped: []string{"x: 404"}}

	got := mergeStats(a, b)
	assert.Equal(t, 3, got.Documents)
	assert.Equal(t, 4, got.Chunks)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got.IDs)
	assert.Equal(t, []string{"x: 404"}, got.Skipped)
}

func TestPrintHits(t *testing.T) {
	var buf bytes.Buffer
	printHits(&buf, nil)
	assert.Contains(t, buf.String(), "No passages found")

	buf.Reset()
	printHits(&buf, []model.EvidenceSnippet{
		{Rank: 1, Similarity: 0.912, Source: "https://www.python.org/", Authority: model.TierPrimary, Text: "Python was\ncreated by Guido."},
	})
	assert.Contains(t, buf.String(), "[1] 0.912  https://www.python.org/  (primary)")
	assert.Contains(t, buf.String(), "Python was created by Guido.")
}

func TestTruncateQuery(t *testing.T) {
	assert.Equal(t, "short", truncateQuery("short"))
	long := strings.Repeat("x", 80)
	got := truncateQuery(long)
	assert.Len(t, got, 60)
	assert.True(t, strings.HasSuffix(got, "..."))
}
