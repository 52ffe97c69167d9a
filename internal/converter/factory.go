package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"doclingapi/internal/models"
)

const (
	DefaultPictureEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	DefaultPictureTimeout  = 90 * time.Second
)

// ErrMissingAPIKey means the service was started without a picture-description credential.
var ErrMissingAPIKey = errors.New("GROQ_API_KEY not set")

// Engine performs the actual document conversion. The production engine is docling-serve.
type Engine interface {
	Convert(ctx context.Context, path string, opts PipelineOptions) (*Document, error)
}

// Factory builds per-request converters. It holds the credential read at startup.
type Factory struct {
	engine   Engine
	apiKey   string
	endpoint string
	timeout  time.Duration
	prompt   string
}

type FactoryOption func(*Factory)

// WithEndpoint overrides the picture-description URL.
func WithEndpoint(url string) FactoryOption {
	return func(f *Factory) {
		if url != "" {
			f.endpoint = url
		}
	}
}

// WithPictureTimeout overrides the per-picture remote call timeout.
func WithPictureTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithDefaultPrompt replaces the built-in instruction for requests that carry no prompt.
func WithDefaultPrompt(prompt string) FactoryOption {
	return func(f *Factory) { f.prompt = prompt }
}

func NewFactory(engine Engine, apiKey string, opts ...FactoryOption) *Factory {
	f := &Factory{
		engine:   engine,
		apiKey:   apiKey,
		endpoint: DefaultPictureEndpoint,
		timeout:  DefaultPictureTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// New returns a converter for PDF input with remote picture description enabled.
// It does no I/O; a missing credential fails here, before any file is touched.
func (f *Factory) New(cfg models.ProcessingConfig, formats ...Format) (*Converter, error) {
	if f.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if f.engine == nil {
		return nil, errors.New("conversion engine not configured")
	}
	if len(formats) == 0 {
		formats = []Format{FormatMarkdown}
	}

	opts := PipelineOptions{
		InputFormat:          InputFormatPDF,
		EnableRemoteServices: true,
		DoPictureDescription: true,
		PictureDescription: PictureDescriptionAPIOptions{
			URL: f.endpoint,
			Headers: map[string]string{
				"Authorization": "Bearer " + f.apiKey,
			},
			Params: map[string]any{
				"model":                 cfg.Model,
				"max_completion_tokens": cfg.MaxCompletionTokens,
				"temperature":           cfg.Temperature,
				"top_p":                 cfg.TopP,
			},
			Prompt:  cfg.ResolvePrompt(f.prompt),
			Timeout: f.timeout,
		},
		ToFormats: append([]Format(nil), formats...),
	}
	return &Converter{engine: f.engine, options: opts}, nil
}

// Converter is a ready-to-run pipeline bound to one request's settings.
type Converter struct {
	engine  Engine
	options PipelineOptions
}

// Options returns a copy of the pipeline options.
func (c *Converter) Options() PipelineOptions {
	return c.options.clone()
}

// Convert runs the engine on the file at path.
func (c *Converter) Convert(ctx context.Context, path string) (*Document, error) {
	doc, err := c.engine.Convert(ctx, path, c.options.clone())
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("engine returned no document for %s", path)
	}
	doc.sourcePath = path
	return doc, nil
}
