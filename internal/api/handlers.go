package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"doclingapi/internal/cache"
	"doclingapi/internal/converter"
	"doclingapi/internal/models"
	"doclingapi/internal/tempfile"
)

const (
	ServiceName = "Docling PDF Processing API"

	kindMarkdown = "markdown"
	kindJSON     = "json"

	errOnlyPDF = "Only PDF files are supported"
)

// renderFunc turns a converted document into the success payload of one endpoint.
type renderFunc func(filename string, doc *converter.Document) (gin.H, error)

// Handler wires the conversion endpoints to the converter factory and the transient file store.
type Handler struct {
	factory *converter.Factory
	temp    *tempfile.Store
	results cache.Cache
	log     logrus.FieldLogger
}

// NewHandler constructs a Handler. A nil results cache disables response caching.
func NewHandler(factory *converter.Factory, temp *tempfile.Store, results cache.Cache, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		factory: factory,
		temp:    temp,
		results: results,
		log:     log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.health)
	router.POST("/process-pdf/", h.processPDF)
	router.POST("/process-pdf-json/", h.processPDFJSON)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
}

func (h *Handler) processPDF(c *gin.Context) {
	upload, ok := requireUpload(c)
	if !ok {
		return
	}
	cfg, errs := textParams(c)
	if len(errs) > 0 {
		rejectInvalid(c, errs)
		return
	}
	if !isPDF(upload.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": errOnlyPDF})
		return
	}
	h.convert(c, kindMarkdown, upload, cfg, []converter.Format{converter.FormatMarkdown, converter.FormatHTML}, renderText)
}

// processPDFJSON only honors the model override. The text endpoint's other
// overrides are ignored here.
func (h *Handler) processPDFJSON(c *gin.Context) {
	upload, ok := requireUpload(c)
	if !ok {
		return
	}
	cfg, errs := structuredParams(c)
	if len(errs) > 0 {
		rejectInvalid(c, errs)
		return
	}
	if !isPDF(upload.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": errOnlyPDF})
		return
	}
	h.convert(c, kindJSON, upload, cfg, []converter.Format{converter.FormatJSON}, renderStructured)
}

// convert owns the transient file for the whole request. It is removed on every exit path.
func (h *Handler) convert(c *gin.Context, kind string, upload *multipart.FileHeader, cfg models.ProcessingConfig, formats []converter.Format, render renderFunc) {
	log := h.requestLogger(c).WithFields(logrus.Fields{
		"endpoint": kind,
		"filename": upload.Filename,
		"size":     upload.Size,
	})
	// the conversion outlives a client disconnect
	ctx := context.WithoutCancel(c.Request.Context())

	tmp, err := h.saveUpload(upload)
	if err != nil {
		h.fail(c, log, err)
		return
	}
	defer h.temp.Remove(tmp)
	log.WithFields(logrus.Fields{"path": tmp.StoredPath, "bytes": tmp.Size}).Debug("upload stored")

	conv, err := h.factory.New(cfg, formats...)
	if err != nil {
		h.fail(c, log, err)
		return
	}

	key := h.cacheKey(log, kind, upload.Filename, conv.Options(), tmp)
	if body, ok := h.cached(ctx, log, key); ok {
		c.Data(http.StatusOK, gin.MIMEJSON+"; charset=utf-8", body)
		return
	}

	start := time.Now()
	doc, err := conv.Convert(ctx, tmp.StoredPath)
	if err != nil {
		h.fail(c, log, err)
		return
	}
	payload, err := render(upload.Filename, doc)
	if err != nil {
		h.fail(c, log, err)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		h.fail(c, log, fmt.Errorf("encode response: %w", err))
		return
	}
	h.store(ctx, log, key, body)

	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("pdf processed")
	c.Data(http.StatusOK, gin.MIMEJSON+"; charset=utf-8", body)
}

func (h *Handler) saveUpload(upload *multipart.FileHeader) (*models.TempFile, error) {
	src, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	return h.temp.Create(src, upload.Filename)
}

// fail collapses every processing error into one 500 response. Only the missing
// credential keeps its own message.
func (h *Handler) fail(c *gin.Context, log logrus.FieldLogger, err error) {
	if errors.Is(err, converter.ErrMissingAPIKey) {
		log.Error("picture description credential is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": converter.ErrMissingAPIKey.Error()})
		return
	}
	log.WithError(err).Error("pdf processing failed")
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "Processing error: " + err.Error()})
}

func (h *Handler) cacheKey(log logrus.FieldLogger, kind, filename string, opts converter.PipelineOptions, tmp *models.TempFile) string {
	if h.results == nil {
		return ""
	}
	f, err := os.Open(tmp.StoredPath)
	if err != nil {
		log.WithError(err).Warn("cache key skipped")
		return ""
	}
	defer f.Close()
	key, err := cache.Key(kind, filename, opts, f)
	if err != nil {
		log.WithError(err).Warn("cache key skipped")
		return ""
	}
	return key
}

func (h *Handler) cached(ctx context.Context, log logrus.FieldLogger, key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	body, err := h.results.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.WithError(err).Warn("cache lookup failed")
		}
		return nil, false
	}
	if !json.Valid(body) {
		log.Warn("evicting unreadable cache entry")
		if err := h.results.Delete(ctx, key); err != nil {
			log.WithError(err).Warn("cache eviction failed")
		}
		return nil, false
	}
	log.Info("served from cache")
	return body, true
}

func (h *Handler) store(ctx context.Context, log logrus.FieldLogger, key string, body []byte) {
	if key == "" {
		return
	}
	if err := h.results.Set(ctx, key, body); err != nil {
		log.WithError(err).Warn("cache store failed")
	}
}

func (h *Handler) requestLogger(c *gin.Context) logrus.FieldLogger {
	if id, ok := RequestIDFromContext(c); ok {
		return h.log.WithField("request_id", id)
	}
	return h.log
}

func renderText(filename string, doc *converter.Document) (gin.H, error) {
	markdown, err := doc.ExportToMarkdown()
	if err != nil {
		return nil, err
	}
	html, err := doc.ExportToHTML()
	if err != nil {
		return nil, err
	}
	// unknown page counts are reported as null
	var numPages any
	if n, ok := doc.NumPages(); ok {
		numPages = n
	}
	return gin.H{
		"status":       "success",
		"filename":     filename,
		"content":      markdown,
		"html_content": html,
		"metadata":     gin.H{"num_pages": numPages},
	}, nil
}

func renderStructured(filename string, doc *converter.Document) (gin.H, error) {
	dict, err := doc.ExportToDict()
	if err != nil {
		return nil, err
	}
	return gin.H{
		"status":   "success",
		"filename": filename,
		"document": dict,
	}, nil
}

func requireUpload(c *gin.Context) (*multipart.FileHeader, bool) {
	upload, err := c.FormFile(uploadField)
	if err != nil {
		rejectInvalid(c, []fieldError{{
			Loc:  []string{"body", uploadField},
			Msg:  "Field required",
			Type: "missing",
		}})
		return nil, false
	}
	return upload, true
}

// isPDF is a case-sensitive suffix check; "REPORT.PDF" is rejected.
func isPDF(filename string) bool {
	return strings.HasSuffix(filename, ".pdf")
}
