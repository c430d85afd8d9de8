package recognition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"inkrelay/internal/config"
)

// Options tune a Mediator
type Options struct {
	APIKey         string
	MinImageLength int
	Timeout        time.Duration
	CacheSize      int
}

// Mediator turns a canvas image into a single result string. It never fails:
// every problem is reported as one of the Msg* strings.
type Mediator struct {
	engine    Engine
	opts      Options
	breaker   *gobreaker.CircuitBreaker
	cache     *lru.Cache[string, string]
	flight    singleflight.Group
	sanitizer *bluemonday.Policy
	logger    *slog.Logger

	// result string of the provider fault that last counted against the breaker
	lastFault atomic.Pointer[string]
}

// New creates a mediator around engine
func New(engine Engine, opts Options, logger *slog.Logger) (*Mediator, error) {
	m := &Mediator{
		engine:    engine,
		opts:      opts,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With("provider", engine.Name()),
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    engine.Name(),
		Timeout: 30 * time.Second,
		// Only an unhealthy provider trips the breaker, bad input does not
		IsSuccessful: func(err error) bool {
			return err == nil || !isServiceFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("recognition breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		m.cache = cache
	}

	return m, nil
}

// NewFromConfig picks the engine named by the configured provider
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Mediator, error) {
	rc := cfg.Recognition
	httpClient := &http.Client{}

	var engine Engine
	switch rc.Provider {
	case config.ProviderGemini:
		engine = NewGeminiEngine(rc.APIKey, rc.Endpoint, rc.Model, rc.Language, httpClient)
	case config.ProviderOCRSpace:
		engine = NewOCRSpaceEngine(rc.APIKey, rc.Endpoint, rc.Language, httpClient, logger)
	default:
		return nil, fmt.Errorf("unknown recognition provider %q", rc.Provider)
	}

	if rc.APIKey == "" {
		logger.Warn("recognition API key is not configured, recognition requests will fail", "provider", rc.Provider)
	}

	return New(engine, Options{
		APIKey:         rc.APIKey,
		MinImageLength: rc.MinImageLength,
		Timeout:        rc.Timeout,
		CacheSize:      rc.CacheSize,
	}, logger)
}

// Recognize returns the recognized text or a failure string
func (m *Mediator) Recognize(ctx context.Context, raw string) string {
	img := parseImage(raw)

	if len(img.Data) < m.opts.MinImageLength {
		m.logger.Debug("recognition short-circuited", "length", len(img.Data), "min", m.opts.MinImageLength)
		return MsgTooBlank
	}
	if m.opts.APIKey == "" {
		return MsgKeyMissing
	}

	key := payloadKey(img)
	if m.cache != nil {
		if text, ok := m.cache.Get(key); ok {
			m.logger.Debug("recognition cache hit")
			return text
		}
	}

	// Identical payloads in flight share one provider call
	result, _, _ := m.flight.Do(key, func() (any, error) {
		return m.call(ctx, img, key), nil
	})
	return result.(string)
}

func (m *Mediator) call(ctx context.Context, img Image, key string) string {
	// Once issued a call runs to completion even if the requester goes away
	ctx = context.WithoutCancel(ctx)
	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := m.breaker.Execute(func() (interface{}, error) {
		return m.engine.Recognize(ctx, img)
	})
	if err != nil {
		msg := m.describe(err)
		m.logger.Warn("recognition failed", "error", err, "result", msg, "took", time.Since(start))
		return msg
	}

	text := m.sanitize(out.(string))
	if text == "" {
		return MsgEmpty
	}

	m.logger.Info("recognition succeeded", "chars", len(text), "took", time.Since(start))
	if m.cache != nil {
		m.cache.Add(key, text)
	}
	return text
}

// describe reports an open breaker with the fault that tripped it, so a
// provider that keeps failing the same way keeps producing the same string
func (m *Mediator) describe(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if last := m.lastFault.Load(); last != nil {
			return *last
		}
		return Describe(err)
	}

	msg := Describe(err)
	if isServiceFault(err) {
		m.lastFault.Store(&msg)
	}
	return msg
}

// Element tags such as <p>, </b>, <br/> or <a href=...>. Comparisons like
// "a<b and c>d" do not match.
var markupPattern = regexp.MustCompile(`</[a-zA-Z][a-zA-Z0-9]*\s*>|<[a-zA-Z][a-zA-Z0-9]*\s*/?>|<[a-zA-Z][a-zA-Z0-9]*\s+[a-zA-Z-]+\s*=`)

// sanitize strips markup the model may have produced. Text without tags is
// returned untouched.
func (m *Mediator) sanitize(text string) string {
	text = strings.TrimSpace(text)
	if !markupPattern.MatchString(text) {
		return text
	}
	return strings.TrimSpace(html.UnescapeString(m.sanitizer.Sanitize(text)))
}

func payloadKey(img Image) string {
	sum := sha256.Sum256([]byte(img.MIMEType + ":" + img.Data))
	return hex.EncodeToString(sum[:])
}
