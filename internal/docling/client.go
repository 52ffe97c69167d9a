// Package docling talks to a docling-serve instance, the conversion engine behind this service.
package docling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"doclingapi/internal/converter"
)

const (
	convertFilePath = "/v1/convert/file"
	healthPath      = "/health"
	apiKeyHeader    = "X-Api-Key"
	maxErrorBody    = 4 << 10
)

// ErrConversionFailed wraps every failure reported by docling-serve itself.
var ErrConversionFailed = errors.New("docling conversion failed")

// Status is the conversion outcome reported by docling-serve. Anything other
// than success or partial_success is a failure.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
)

// ErrorItem is one entry of the engine's error list.
type ErrorItem struct {
	ComponentType string `json:"component_type"`
	ModuleName    string `json:"module_name"`
	ErrorMessage  string `json:"error_message"`
}

type exportDocument struct {
	Filename    string          `json:"filename"`
	MDContent   *string         `json:"md_content"`
	HTMLContent *string         `json:"html_content"`
	JSONContent json.RawMessage `json:"json_content"`
}

type convertResponse struct {
	Document       exportDocument `json:"document"`
	Status         Status         `json:"status"`
	Errors         []ErrorItem    `json:"errors"`
	ProcessingTime float64        `json:"processing_time"`
}

// pictureDescriptionAPI is docling's PictureDescriptionApiOptions on the wire.
type pictureDescriptionAPI struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Params  map[string]any    `json:"params,omitempty"`
	Timeout float64           `json:"timeout"`
	Prompt  string            `json:"prompt"`
}

// Client implements converter.Engine over the docling-serve HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logrus.FieldLogger
}

type Option func(*Client)

// WithAPIKey sets the key docling-serve expects in X-Api-Key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout bounds a whole conversion request. Zero keeps it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks that docling-serve is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("docling health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docling health: %s", resp.Status)
	}
	return nil
}

// Convert uploads the file at path and returns the exported formats.
func (c *Client) Convert(ctx context.Context, path string, opts converter.PipelineOptions) (*converter.Document, error) {
	if opts.InputFormat != "" && opts.InputFormat != converter.InputFormatPDF {
		return nil, fmt.Errorf("unsupported input format %q", opts.InputFormat)
	}
	fields, err := formFields(opts)
	if err != nil {
		return nil, err
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, filepath.Base(path), src))
	}()

	// closing the read side unblocks the writer goroutine on every exit path
	defer pr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+convertFilePath, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call docling-serve: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: docling-serve returned %s: %s", ErrConversionFailed, resp.Status, strings.TrimSpace(string(body)))
	}

	var out convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode docling response: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"status":          out.Status,
		"processing_time": out.ProcessingTime,
		"elapsed":         time.Since(start).Round(time.Millisecond),
		"errors":          len(out.Errors),
	}).Debug("docling conversion finished")

	switch out.Status {
	case StatusSuccess, StatusPartialSuccess:
	default:
		return nil, fmt.Errorf("%w: status %q: %s", ErrConversionFailed, out.Status, joinErrors(out.Errors))
	}

	return toDocument(out.Document, opts.ToFormats), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

type formField struct {
	name  string
	value string
}

func formFields(opts converter.PipelineOptions) ([]formField, error) {
	fields := []formField{
		{"from_formats", string(converter.InputFormatPDF)},
		{"image_export_mode", "placeholder"},
	}
	for _, f := range opts.ToFormats {
		fields = append(fields, formField{"to_formats", string(f)})
	}
	fields = append(fields, formField{"do_picture_description", strconv.FormatBool(opts.DoPictureDescription)})

	// docling refuses API-backed picture description unless remote services are allowed
	if opts.DoPictureDescription && opts.EnableRemoteServices {
		pd := opts.PictureDescription
		raw, err := json.Marshal(pictureDescriptionAPI{
			URL:     pd.URL,
			Headers: pd.Headers,
			Params:  pd.Params,
			Timeout: pd.Timeout.Seconds(),
			Prompt:  pd.Prompt,
		})
		if err != nil {
			return nil, fmt.Errorf("encode picture description options: %w", err)
		}
		fields = append(fields, formField{"picture_description_api", string(raw)})
	}
	return fields, nil
}

func writeMultipart(mw *multipart.Writer, fields []formField, filename string, src io.Reader) error {
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filename))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}

func toDocument(d exportDocument, requested []converter.Format) *converter.Document {
	doc := &converter.Document{Filename: d.Filename}
	for _, f := range requested {
		switch f {
		case converter.FormatMarkdown:
			if d.MDContent != nil {
				doc.Markdown = *d.MDContent
				doc.Formats = append(doc.Formats, f)
			}
		case converter.FormatHTML:
			if d.HTMLContent != nil {
				doc.HTML = *d.HTMLContent
				doc.Formats = append(doc.Formats, f)
			}
		case converter.FormatJSON:
			if len(d.JSONContent) > 0 && string(d.JSONContent) != "null" {
				doc.JSON = d.JSONContent
				doc.Formats = append(doc.Formats, f)
			}
		}
	}
	return doc
}

func joinErrors(items []ErrorItem) string {
	if len(items) == 0 {
		return "no error details"
	}
	msgs := make([]string, 0, len(items))
	for _, e := range items {
		if e.ModuleName != "" {
			msgs = append(msgs, e.ModuleName+": "+e.ErrorMessage)
			continue
		}
		msgs = append(msgs, e.ErrorMessage)
	}
	return strings.Join(msgs, "; ")
}
