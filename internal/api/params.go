package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"doclingapi/internal/models"
)

const uploadField = "file"

// fieldError matches the validation error items clients of this API already parse.
type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func rejectInvalid(c *gin.Context, errs []fieldError) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": errs})
}

// param reads an override from the query string first, then from the multipart form.
func param(c *gin.Context, name string) (string, string, bool) {
	if v, ok := c.GetQuery(name); ok {
		return v, "query", true
	}
	if v, ok := c.GetPostForm(name); ok {
		return v, "body", true
	}
	return "", "", false
}

type paramParser struct {
	c    *gin.Context
	opts []models.ProcessingOption
	errs []fieldError
}

func (p *paramParser) model() {
	if v, _, ok := param(p.c, "model"); ok {
		p.opts = append(p.opts, models.WithModel(v))
	}
}

func (p *paramParser) intParam(name string, apply func(int) models.ProcessingOption) {
	v, loc, ok := param(p.c, name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fieldError{
			Loc:  []string{loc, name},
			Msg:  "Input should be a valid integer, unable to parse string as an integer",
			Type: "int_parsing",
		})
		return
	}
	p.opts = append(p.opts, apply(n))
}

func (p *paramParser) floatParam(name string, apply func(float64) models.ProcessingOption) {
	v, loc, ok := param(p.c, name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	// NaN and Inf cannot be encoded into the outbound JSON parameters
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		p.errs = append(p.errs, fieldError{
			Loc:  []string{loc, name},
			Msg:  "Input should be a valid number, unable to parse string as a number",
			Type: "float_parsing",
		})
		return
	}
	p.opts = append(p.opts, apply(f))
}

// textParams accepts every picture-description override.
func textParams(c *gin.Context) (models.ProcessingConfig, []fieldError) {
	p := &paramParser{c: c}
	p.model()
	p.intParam("max_completion_tokens", models.WithMaxCompletionTokens)
	p.floatParam("temperature", models.WithTemperature)
	p.floatParam("top_p", models.WithTopP)
	return models.NewProcessingConfig(p.opts...), p.errs
}

// structuredParams accepts only the model override; other fields keep their defaults.
func structuredParams(c *gin.Context) (models.ProcessingConfig, []fieldError) {
	p := &paramParser{c: c}
	p.model()
	return models.NewProcessingConfig(p.opts...), p.errs
}
