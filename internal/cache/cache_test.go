package cache

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doclingapi/internal/config"
	"doclingapi/internal/converter"
	"doclingapi/internal/models"
	"doclingapi/internal/redis"
)

type nopEngine struct{}

func (nopEngine) Convert(context.Context, string, converter.PipelineOptions) (*converter.Document, error) {
	return &converter.Document{}, nil
}

func optionsFor(t *testing.T, apiKey string, cfg models.ProcessingConfig, formats ...converter.Format) converter.PipelineOptions {
	t.Helper()
	conv, err := converter.NewFactory(nopEngine{}, apiKey).New(cfg, formats...)
	require.NoError(t, err)
	return conv.Options()
}

func key(t *testing.T, kind string, opts converter.PipelineOptions, content string) string {
	t.Helper()
	k, err := Key(kind, "report.pdf", opts, strings.NewReader(content))
	require.NoError(t, err)
	return k
}

func TestKeyIsDeterministic(t *testing.T) {
	opts := optionsFor(t, "k1", models.NewProcessingConfig(), converter.FormatMarkdown, converter.FormatHTML)

	a := key(t, "markdown", opts, "%PDF-1.7 body")
	b := key(t, "markdown", opts, "%PDF-1.7 body")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, keyPrefix))
}

func TestKeyIgnoresCredential(t *testing.T) {
	cfg := models.NewProcessingConfig()
	a := key(t, "json", optionsFor(t, "first-key", cfg, converter.FormatJSON), "pdf")
	b := key(t, "json", optionsFor(t, "second-key", cfg, converter.FormatJSON), "pdf")
	assert.Equal(t, a, b)
	assert.NotContains(t, a, "first-key")
}

func TestKeyChangesWithEveryInput(t *testing.T) {
	base := optionsFor(t, "k", models.NewProcessingConfig(), converter.FormatMarkdown)
	baseKey := key(t, "markdown", base, "pdf")

	variants := map[string]string{
		"kind":    key(t, "json", base, "pdf"),
		"content": key(t, "markdown", base, "pdf2"),
		"filename": func() string {
			k, err := Key("markdown", "other.pdf", base, strings.NewReader("pdf"))
			require.NoError(t, err)
			return k
		}(),
		"model": key(t, "markdown",
			optionsFor(t, "k", models.NewProcessingConfig(models.WithModel("other")), converter.FormatMarkdown), "pdf"),
		"tokens": key(t, "markdown",
			optionsFor(t, "k", models.NewProcessingConfig(models.WithMaxCompletionTokens(10)), converter.FormatMarkdown), "pdf"),
		"temperature": key(t, "markdown",
			optionsFor(t, "k", models.NewProcessingConfig(models.WithTemperature(0.7)), converter.FormatMarkdown), "pdf"),
		"top_p": key(t, "markdown",
			optionsFor(t, "k", models.NewProcessingConfig(models.WithTopP(0.9)), converter.FormatMarkdown), "pdf"),
		"prompt": key(t, "markdown",
			optionsFor(t, "k", models.NewProcessingConfig(models.WithPrompt("describe")), converter.FormatMarkdown), "pdf"),
		"formats": key(t, "markdown",
			optionsFor(t, "k", models.NewProcessingConfig(), converter.FormatMarkdown, converter.FormatHTML), "pdf"),
	}
	seen := map[string]string{baseKey: "base"}
	for name, k := range variants {
		prev, dup := seen[k]
		assert.False(t, dup, "%s collides with %s", name, prev)
		seen[k] = name
	}
}

func TestRedisCache(t *testing.T) {
	client := newTestRedis(t)
	c := NewRedis(client, time.Minute, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, keyPrefix+"absent")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, keyPrefix+"present", []byte(`{"status":"success"}`)))
	got, err := c.Get(ctx, keyPrefix+"present")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success"}`, string(got))

	require.NoError(t, c.Delete(ctx, keyPrefix+"present"))
	_, err = c.Get(ctx, keyPrefix+"present")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Delete(ctx, keyPrefix+"absent"))
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed cache tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	admin := goredis.NewClient(&goredis.Options{Addr: addr})
	defer admin.Close()
	require.NoError(t, admin.FlushDB(ctx).Err())

	client, err := redis.NewRedisClient(context.Background(), config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}
