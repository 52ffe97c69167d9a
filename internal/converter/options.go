package converter

import "time"

type InputFormat string

const InputFormatPDF InputFormat = "pdf"

// Format is an export target requested from the engine.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// PictureDescriptionAPIOptions routes picture description to an OpenAI-compatible chat endpoint.
type PictureDescriptionAPIOptions struct {
	URL     string
	Headers map[string]string
	// Params is merged into the request body next to the prompt and image.
	Params  map[string]any
	Prompt  string
	Timeout time.Duration
}

// PipelineOptions is the engine-independent description of one conversion.
type PipelineOptions struct {
	InputFormat          InputFormat
	EnableRemoteServices bool
	DoPictureDescription bool
	PictureDescription   PictureDescriptionAPIOptions
	ToFormats            []Format
}

func (o PipelineOptions) clone() PipelineOptions {
	out := o
	out.PictureDescription.Headers = make(map[string]string, len(o.PictureDescription.Headers))
	for k, v := range o.PictureDescription.Headers {
		out.PictureDescription.Headers[k] = v
	}
	out.PictureDescription.Params = make(map[string]any, len(o.PictureDescription.Params))
	for k, v := range o.PictureDescription.Params {
		out.PictureDescription.Params[k] = v
	}
	out.ToFormats = append([]Format(nil), o.ToFormats...)
	return out
}
