// Package cache stores finished conversion responses keyed by everything that shapes them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"doclingapi/internal/converter"
	"doclingapi/internal/redis"
)

const keyPrefix = "docling:result:"

// ErrMiss reports that no response is stored under a key.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Key fingerprints a request: endpoint kind, upload name, resolved pipeline options and file content.
// Request headers, and with them the credential, never enter the key.
func Key(kind, filename string, opts converter.PipelineOptions, content io.Reader) (string, error) {
	params, err := json.Marshal(opts.PictureDescription.Params)
	if err != nil {
		return "", fmt.Errorf("encode cache key params: %w", err)
	}
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	write(kind)
	write(filename)
	write(string(opts.InputFormat))
	write(strconv.FormatBool(opts.DoPictureDescription))
	write(opts.PictureDescription.URL)
	write(string(params))
	write(opts.PictureDescription.Prompt)
	for _, f := range opts.ToFormats {
		write(string(f))
	}
	if _, err := io.Copy(h, content); err != nil {
		return "", fmt.Errorf("hash upload: %w", err)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Redis keeps responses in redis with a fixed TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    logrus.FieldLogger
}

func NewRedis(client *redis.Client, ttl time.Duration, log logrus.FieldLogger) *Redis {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key)
	if errors.Is(err, redis.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, r.ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	r.log.WithField("key", key).Debug("cached conversion result")
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	r.log.WithField("key", key).Debug("evicted conversion result")
	return nil
}
