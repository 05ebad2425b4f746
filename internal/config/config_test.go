package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "DASHSCOPE_API_KEY", "GEMINI_API_KEY", "TAVILY_API_KEY", "OLLAMA_HOST", "DEEPREPORT_DATA_DIR"} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "deepreport" {
		t.Errorf("expected Name=deepreport, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected Provider=openai, got %s", cfg.LLM.Provider)
	}
	if cfg.Workflow.GetChartWait() != 60*time.Second {
		t.Errorf("expected chart wait 60s, got %v", cfg.Workflow.GetChartWait())
	}
	require.NoError(t, cfg.Workflow.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "deepreport.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "gemini"
	cfg.LLM.APIKey = "sk-test"
	cfg.Workflow.FilterMax = 8

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", loaded.LLM.Provider)
	assert.Equal(t, "sk-test", loaded.LLM.APIKey)
	assert.Equal(t, 8, loaded.Workflow.FilterMax)
	assert.Equal(t, 3, loaded.Workflow.FilterMin, "unset fields keep defaults")
}

func TestConfig_LoadMissingReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Storage, cfg.Storage)
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unterminated"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DASHSCOPE_API_KEY", "env-dash-key")
	t.Setenv("TAVILY_API_KEY", "tvly-key")
	t.Setenv("DEEPREPORT_DATA_DIR", "/var/lib/deepreport")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "dashscope", cfg.LLM.Provider)
	assert.Equal(t, "env-dash-key", cfg.LLM.APIKey)
	assert.Contains(t, cfg.LLM.BaseURL, "dashscope")
	assert.Equal(t, "tavily", cfg.Web.Provider)
	assert.Equal(t, "tvly-key", cfg.Web.TavilyAPIKey)
	assert.Equal(t, filepath.Join("/var/lib/deepreport", "knowledge.db"), cfg.KnowledgeDBPath())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "missing API key")

	cfg.LLM.APIKey = "key"
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "unknown"
	require.Error(t, cfg.Validate())
	cfg.LLM.Provider = "openai"

	cfg.Web.Provider = "tavily"
	require.Error(t, cfg.Validate(), "tavily without key")
	cfg.Web.TavilyAPIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Web.FetchPages = "curl"
	require.Error(t, cfg.Validate())
	cfg.Web.FetchPages = "rod"

	cfg.Workflow.FilterRatio = 0
	require.Error(t, cfg.Validate())
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "not-a-duration"
	cfg.Web.CacheTTL = "-5m"
	cfg.Workflow.ChartWait = "2s"

	assert.Equal(t, 180*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 30*time.Minute, cfg.GetWebCacheTTL())
	assert.Equal(t, 2*time.Second, cfg.Workflow.GetChartWait())
}

func TestFilterTarget(t *testing.T) {
	w := DefaultWorkflowConfig()
	cases := map[int]int{
		0:  0,
		2:  2,  // never more than available
		4:  3,  // floor of 3
		5:  3,  // int(3.0)
		10: 6,  // 60%
		16: 9,  // int(9.6)
		30: 10, // ceiling of 10
	}
	for n, want := range cases {
		assert.Equal(t, want, w.FilterTarget(n), "n=%d", n)
	}
}

func TestLoggingConfig(t *testing.T) {
	lc := LoggingConfig{DebugMode: true, Level: "debug", Categories: map[string]bool{"chart": false}}
	assert.False(t, lc.IsCategoryEnabled("chart"))
	assert.True(t, lc.IsCategoryEnabled("workflow"))

	s := lc.Settings()
	assert.True(t, s.DebugMode)
	assert.Equal(t, "debug", s.Level)

	lc.DebugMode = false
	assert.False(t, lc.IsCategoryEnabled("workflow"))
}
