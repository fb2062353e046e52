package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Spanish", cfg.Agent.Language)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM().Model)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SUMMA_MODEL", "")
	path := writeConfig(t, `
default_llm = "local"

[llm.local]
model = "llama3"
base_url = "http://localhost:11434/v1"
temperature = 0.2

[agent]
max_iterations = 3
language = "French"

[prompts]
summarize = "TL;DR: {{.text}}"

[gateway]
addr = ":9000"
token = "secret"

[db]
enabled = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.DefaultLLM)
	assert.Equal(t, "llama3", cfg.LLM().Model)
	require.NotNil(t, cfg.LLM().Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM().Temperature, 1e-9)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
	assert.Equal(t, "French", cfg.Agent.Language)
	assert.Equal(t, "TL;DR: {{.text}}", cfg.Prompts["summarize"])
	assert.Equal(t, "secret", cfg.Gateway.Token)
	assert.False(t, cfg.DB.Enabled)

	// the built-in entry is still there
	assert.Contains(t, cfg.LLMs, "openai")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SUMMA_MODEL", "gpt-4.1")
	t.Setenv("BRAVE_API_KEY", "brave-env")

	cfg, err := Load(writeConfig(t, `
[llm.openai]
api_key = "sk-file"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.LLM().APIKey)
	assert.Equal(t, "gpt-4.1", cfg.LLM().Model)
	assert.Equal(t, "brave-env", cfg.Services.Brave.APIKey)
}

func TestPartialLLMKeepsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SUMMA_MODEL", "")

	cfg, err := Load(writeConfig(t, "[llm.openai]\napi_key = \"sk-file\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM().Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM().BaseURL)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `default_llm = "nope"`))
	assert.ErrorContains(t, err, `"nope"`)

	_, err = Load(writeConfig(t, "[agent]\nmax_iterations = 0\n"))
	assert.ErrorContains(t, err, "max_iterations")

	_, err = Load(writeConfig(t, "this is not toml"))
	assert.Error(t, err)
}
