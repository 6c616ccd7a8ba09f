// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "leoforge", cfg.Logger().ServiceName)
	assert.Equal(t, 5, cfg.Refinement().MaxIterations)
	assert.Equal(t, 5.0, cfg.Refinement().BuildThreshold)
	assert.Equal(t, 3.0, cfg.Refinement().AbandonFloor)
	assert.Equal(t, 60*time.Second, cfg.Refinement().BuildTimeout)
	assert.Equal(t, "src/main.leo", cfg.Workspace().Entrypoint)
	assert.Equal(t, "leo", cfg.Toolchain().Binary)
	assert.Equal(t, DefaultAdminAddress, cfg.Aleo().AdminAddress)
	assert.Equal(t, 2, cfg.Batch().Concurrency)

	require.Contains(t, cfg.LLM().Models, "gemini-flash")
	flash := cfg.LLM().Models["gemini-flash"]
	assert.Equal(t, ProviderGemini, flash.Provider)
	assert.Equal(t, "gemini-2.5-flash", flash.Model)
	assert.Equal(t, 2*time.Minute, flash.APITimeout)
	assert.Equal(t, 3, flash.MaxRetries)

	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestRefinementConfig_Settings(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetRefinementMaxIterations(3)
	cfg.SetRefinementAbandonFloor(4.0)

	s := cfg.Refinement().Settings()
	assert.Equal(t, 3, s.MaxIterations)
	assert.Equal(t, 4.0, s.AbandonFloor)
	assert.Equal(t, 5.0, s.BuildThreshold)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		invalidFloor := *cfg
		invalidFloor.RefinementCfg.AbandonFloor = 9
		err := invalidFloor.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "abandon_floor must be between 0 and build_threshold")

		invalidIterations := *cfg
		invalidIterations.RefinementCfg.MaxIterations = 0
		err = invalidIterations.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_iterations must be a positive integer")

		invalidBatch := *cfg
		invalidBatch.BatchCfg.Concurrency = 0
		err = invalidBatch.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "batch.concurrency must be a positive integer")

		missingToolchain := *cfg
		missingToolchain.ToolchainCfg.Binary = " "
		assert.ErrorContains(t, missingToolchain.Validate(), "toolchain.binary")

		runlogWithoutDir := *cfg
		runlogWithoutDir.RunLogCfg.Dir = ""
		assert.ErrorContains(t, runlogWithoutDir.Validate(), "runlog.dir")
		runlogWithoutDir.RunLogCfg.Enabled = false
		assert.NoError(t, runlogWithoutDir.Validate())
	})

	t.Run("Admin Address Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.AleoCfg.AdminAddress = "aleo1short"
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a valid Aleo address")
	})

	t.Run("LLM Validation", func(t *testing.T) {
		valid := NewDefaultConfig().LLMCfg
		assert.NoError(t, valid.Validate())

		missingDefault := valid
		missingDefault.DefaultPowerfulModel = "unknown"
		assert.ErrorContains(t, missingDefault.Validate(), `model "unknown" is referenced as a default but not configured`)

		badProvider := LLMRouterConfig{
			DefaultFastModel:     "m",
			DefaultPowerfulModel: "m",
			Models:               map[string]LLMModelConfig{"m": {Provider: "openai", Model: "gpt"}},
		}
		assert.ErrorContains(t, badProvider.Validate(), "unsupported provider")

		negativeRate := LLMRouterConfig{
			DefaultFastModel:     "m",
			DefaultPowerfulModel: "m",
			Models:               map[string]LLMModelConfig{"m": {Provider: ProviderGemini, RateLimit: -1}},
		}
		assert.ErrorContains(t, negativeRate.Validate(), "rate_limit must not be negative")
	})
}

func TestIsValidAleoAddress(t *testing.T) {
	assert.True(t, IsValidAleoAddress(DefaultAdminAddress))
	assert.False(t, IsValidAleoAddress(""))
	assert.False(t, IsValidAleoAddress("aleo1ABCDEF"))
	assert.False(t, IsValidAleoAddress("btc1rhgdu77hgyqd3xjj8ucu3jj9r2krwz6mnzyd80gncr5fxcwlh5rsvzp9px"))
	// Uppercase characters are not part of the bech32 alphabet used here.
	assert.False(t, IsValidAleoAddress("aleo1RHGDU77hgyqd3xjj8ucu3jj9r2krwz6mnzyd80gncr5fxcwlh5rsvzp9px"))
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
refinement:
  max_iterations: 3
  build_threshold: 6.5
  build_timeout: 90s
workspace:
  output_dir: /tmp/leoforge-projects
llm:
  models:
    gemini-flash:
      provider: gemini
      model: gemini-2.5-flash-lite
      api_key: file-key
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Refinement().MaxIterations)
		assert.Equal(t, 6.5, cfg.Refinement().BuildThreshold)
		assert.Equal(t, 90*time.Second, cfg.Refinement().BuildTimeout)
		assert.Equal(t, "/tmp/leoforge-projects", cfg.Workspace().OutputDir)
		assert.Equal(t, "gemini-2.5-flash-lite", cfg.LLM().Models["gemini-flash"].Model)
		assert.Equal(t, "file-key", cfg.LLM().Models["gemini-flash"].APIKey)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("refinement.max_iterations", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_iterations must be a positive integer")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "env-key")
		t.Setenv("ADMIN_ADDRESS", "aleo1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqanmpl0")

		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "env-key", cfg.LLM().APIKey)
		for name, m := range cfg.LLM().Models {
			assert.Equal(t, "env-key", m.APIKey, "model %s should inherit the shared key", name)
		}
		assert.Equal(t, "aleo1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqanmpl0", cfg.Aleo().AdminAddress)
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		require.NoError(t, err)

		v := viper.New()
		SetDefaults(v)
		v.Set("workspace.output_dir", "~/leo-projects")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "leo-projects"), cfg.Workspace().OutputDir)
	})
}
