package gigachat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medtriage/platform/pkg/common/logger"
	"github.com/medtriage/platform/pkg/gateway/httpclient"
	"github.com/medtriage/platform/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultTimeout = 20 * time.Second

	temperature = 0.1
	maxTokens   = 1000
)

type Config struct {
	APIURL         string
	Model          string
	ConnectTimeout time.Duration
	InsecureTLS    bool
	Auth           AuthConfig
	TokenStore     TokenStore
}

// Request describes one file to analyze. Template may be empty to use the
// built-in instructions.
type Request struct {
	Text      string
	MediaType string
	FileName  string
	Template  string
	Timeout   time.Duration
}

type Client struct {
	apiURL  string
	model   string
	http    *http.Client
	tokens  *TokenHolder
	breaker *gobreaker.CircuitBreaker[string]
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}
	httpClient := httpclient.New(httpclient.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		InsecureTLS:    cfg.InsecureTLS,
	})

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "gigachat",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A timed-out call degrades to a timeout outcome and must not open the
		// breaker; only hard failures count.
		IsSuccessful: func(err error) bool {
			return err == nil || httpclient.IsTimeout(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.Set(float64(to))
			logger.Log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &Client{
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		model:   cfg.Model,
		http:    httpClient,
		tokens:  NewTokenHolder(cfg.Auth, httpClient, cfg.TokenStore),
		breaker: breaker,
	}
}

// Analyze sends the text to the model and returns a normalized outcome. It
// never fails: every error is folded into an Outcome of kind timeout or
// failed.
func (c *Client) Analyze(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	log := logger.Log.WithFields(map[string]interface{}{
		"file_name":  req.FileName,
		"media_type": req.MediaType,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("gigachat analysis panicked")
			out = FailedOutcome(fmt.Sprintf("внутренняя ошибка: %v", r))
		}
		elapsed := time.Since(start)
		metrics.AnalysisOutcomes.WithLabelValues(string(out.Kind)).Inc()
		metrics.AnalysisCallDuration.Observe(elapsed.Seconds())
		log.WithFields(map[string]interface{}{
			"kind":        out.Kind,
			"conditions":  len(out.Conditions),
			"confidence":  out.Confidence,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("gigachat analysis finished")
	}()

	token, err := c.tokens.Valid(ctx)
	if err != nil {
		log.WithError(err).Error("gigachat token unavailable")
		return FailedOutcome("Ошибка аутентификации")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := RenderPrompt(req.Template, req.Text, req.MediaType, req.FileName)
	content, err := c.breaker.Execute(func() (string, error) {
		return c.complete(callCtx, token, prompt)
	})
	if err != nil {
		return c.degrade(err, log)
	}

	log.WithField("reply_preview", truncateRunes(content, 200)).Debug("gigachat raw reply")
	return normalize(parseReply(content))
}

func (c *Client) degrade(err error, log *logrus.Entry) Outcome {
	var status *StatusError
	switch {
	case httpclient.IsTimeout(err):
		log.Warn("gigachat call timed out")
		return TimeoutOutcome()
	case errors.As(err, &status):
		if status.Code == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		log.WithField("status", status.Code).Warn("gigachat returned an error status")
		return FailedOutcome(fmt.Sprintf("Ошибка API: %d", status.Code))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Warn("gigachat circuit breaker is open")
		return FailedOutcome("Сервис анализа временно недоступен")
	}
	log.WithError(err).Warn("gigachat call failed")
	return FailedOutcome(err.Error())
}

// StatusError is a non-200 answer from the completion endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gigachat: unexpected status %d", e.Code)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, token, prompt string) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", &StatusError{Code: resp.StatusCode}
	}

	var body completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(body.Choices) == 0 {
		return "{}", nil
	}
	return body.Choices[0].Message.Content, nil
}
