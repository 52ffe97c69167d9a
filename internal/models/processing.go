package models

const (
	DefaultModel               = "meta-llama/llama-4-scout-17b-16e-instruct"
	DefaultMaxCompletionTokens = 350
	DefaultTemperature         = 0.1
	DefaultTopP                = 0.10
)

// DefaultPicturePrompt is the instruction sent with every picture when no override is given.
const DefaultPicturePrompt = "If you the image has text, extract the text first. " +
	"Describe the figure concisely and accurately, including axes/units if visible. " +
	"If the image is a flowchart, describe the steps in order. " +
	"If the image is a diagram, describe the components and their relationships. " +
	"If the image is a graph, identify and describe the axes, trends and patterns."

// ProcessingConfig carries the picture-description parameters for a single conversion.
// Values are forwarded to the remote model as-is; nothing is range checked.
type ProcessingConfig struct {
	Model               string  `json:"model"`
	MaxCompletionTokens int     `json:"max_completion_tokens"`
	Temperature         float64 `json:"temperature"`
	TopP                float64 `json:"top_p"`
	// Prompt replaces DefaultPicturePrompt when non-empty.
	Prompt string `json:"prompt,omitempty"`
}

type ProcessingOption func(*ProcessingConfig)

func WithModel(model string) ProcessingOption {
	return func(c *ProcessingConfig) { c.Model = model }
}

func WithMaxCompletionTokens(n int) ProcessingOption {
	return func(c *ProcessingConfig) { c.MaxCompletionTokens = n }
}

func WithTemperature(t float64) ProcessingOption {
	return func(c *ProcessingConfig) { c.Temperature = t }
}

func WithTopP(p float64) ProcessingOption {
	return func(c *ProcessingConfig) { c.TopP = p }
}

func WithPrompt(prompt string) ProcessingOption {
	return func(c *ProcessingConfig) { c.Prompt = prompt }
}

// NewProcessingConfig returns the defaults overridden by opts.
func NewProcessingConfig(opts ...ProcessingOption) ProcessingConfig {
	cfg := ProcessingConfig{
		Model:               DefaultModel,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
		Temperature:         DefaultTemperature,
		TopP:                DefaultTopP,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ResolvePrompt returns the instruction sent to the picture-description model:
// the request prompt, then fallback, then DefaultPicturePrompt.
func (c ProcessingConfig) ResolvePrompt(fallback string) string {
	switch {
	case c.Prompt != "":
		return c.Prompt
	case fallback != "":
		return fallback
	default:
		return DefaultPicturePrompt
	}
}
