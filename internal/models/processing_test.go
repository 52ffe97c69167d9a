package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProcessingConfigDefaults(t *testing.T) {
	cfg := NewProcessingConfig()

	assert.Equal(t, ProcessingConfig{
		Model:               DefaultModel,
		MaxCompletionTokens: 350,
		Temperature:         0.1,
		TopP:                0.1,
	}, cfg)
	assert.Equal(t, DefaultPicturePrompt, cfg.ResolvePrompt(""))
}

func TestProcessingOptionsOverrideIndependently(t *testing.T) {
	cfg := NewProcessingConfig(WithTemperature(2.5), nil, WithModel("vision-small"))

	assert.Equal(t, "vision-small", cfg.Model)
	assert.Equal(t, 2.5, cfg.Temperature)
	assert.Equal(t, DefaultMaxCompletionTokens, cfg.MaxCompletionTokens)
	assert.Equal(t, DefaultTopP, cfg.TopP)
}

func TestResolvePromptPrecedence(t *testing.T) {
	cfg := NewProcessingConfig(WithPrompt("List every label."))
	assert.Equal(t, "List every label.", cfg.ResolvePrompt("operator prompt"))
	assert.NotContains(t, cfg.ResolvePrompt(""), DefaultPicturePrompt)

	cfg = NewProcessingConfig(WithPrompt(""))
	assert.Equal(t, "operator prompt", cfg.ResolvePrompt("operator prompt"))
	assert.Equal(t, DefaultPicturePrompt, cfg.ResolvePrompt(""))
}
