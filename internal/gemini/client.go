// Package gemini wraps the Gemini API for media description, text
// classification, and embedding. It owns credential rotation, request
// pacing, upload polling, and the retry policy used by the pipeline.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/jhowland/camsift/internal/config"
	"github.com/jhowland/camsift/internal/metrics"
)

// FileHandle references an uploaded remote artifact.
type FileHandle struct {
	Name     string
	URI      string
	MIMEType string
}

// Client talks to the Gemini API with a round-robin credential pool.
type Client struct {
	ring         *keyRing
	visionModel  string
	embedModel   string
	pollInterval time.Duration
	maxPolls     int
	retry        RetryPolicy
	collector    *metrics.Collector
}

// maxPollAttempts bounds how long an upload may sit in the processing state
// before the item is abandoned.
const maxPollAttempts = 60

// NewClient builds a Client from configuration. One genai client and one
// rate limiter are created per API key.
func NewClient(ctx context.Context, cfg config.Config, collector *metrics.Collector) (*Client, error) {
	ring, err := newKeyRing(ctx, cfg.APIKeys, cfg.RequestsPerSecond)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ring:         ring,
		visionModel:  cfg.VisionModel,
		embedModel:   cfg.EmbedModel,
		pollInterval: cfg.PollInterval,
		maxPolls:     maxPollAttempts,
		collector:    collector,
	}
	c.retry = RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		Delay:       cfg.RetryDelay,
		Retryable:   IsTransient,
		OnRetry: func(err error, attempt int) {
			if IsRateLimited(err) && ring.size() > 1 {
				ring.advance()
				slog.Info("rotated API credential after rate limit", "attempt", attempt)
			}
			slog.Warn("retrying remote call", "attempt", attempt, "error", err)
		},
	}
	return c, nil
}

// Keys returns the number of configured credentials.
func (c *Client) Keys() int {
	return c.ring.size()
}

// Close releases all underlying API clients.
func (c *Client) Close() {
	c.ring.close()
}

// Upload submits the file at path and polls until the remote copy leaves the
// processing state. Transient upload errors are retried per the client's
// policy; a terminal FAILED state is not.
func (c *Client) Upload(ctx context.Context, path string) (FileHandle, error) {
	var handle FileHandle
	err := c.retry.Do(ctx, func() error {
		start := time.Now()
		h, err := c.uploadOnce(ctx, path)
		if err != nil {
			c.collector.RecordFailure(metrics.OpUpload)
			return err
		}
		c.collector.RecordTiming(metrics.OpUpload, time.Since(start))
		handle = h
		return nil
	})
	if err != nil {
		return FileHandle{}, fmt.Errorf("upload %s: %w", path, err)
	}
	return handle, nil
}

func (c *Client) uploadOnce(ctx context.Context, path string) (FileHandle, error) {
	cred := c.ring.current()
	if err := cred.limiter.Wait(ctx); err != nil {
		return FileHandle{}, err
	}

	file, err := cred.client.UploadFileFromPath(ctx, path, nil)
	if err != nil {
		return FileHandle{}, err
	}

	for polls := 0; file.State == genai.FileStateProcessing; polls++ {
		if polls >= c.maxPolls {
			return FileHandle{}, ErrPollTimeout
		}
		if !sleepCtx(ctx, c.pollInterval) {
			return FileHandle{}, ctx.Err()
		}
		file, err = cred.client.GetFile(ctx, file.Name)
		if err != nil {
			return FileHandle{}, err
		}
	}

	if file.State == genai.FileStateFailed {
		return FileHandle{}, ErrFileFailed
	}

	return FileHandle{Name: file.Name, URI: file.URI, MIMEType: file.MIMEType}, nil
}

// Describe asks the vision model for a free-text description of an uploaded
// artifact. An empty or blocked response is ErrContentFiltered, which
// callers must treat as terminal for the item.
func (c *Client) Describe(ctx context.Context, handle FileHandle, prompt string, timeout time.Duration) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, timeout,
		genai.Text(prompt),
		genai.FileData{URI: handle.URI, MIMEType: handle.MIMEType},
	)
	if err != nil {
		c.collector.RecordFailure(metrics.OpDescribe)
		return "", fmt.Errorf("describe: %w", err)
	}
	c.collector.RecordTiming(metrics.OpDescribe, time.Since(start))
	return text, nil
}

// ClassifyText asks the vision model to classify a description. The raw
// model text is returned; label parsing is the caller's concern.
func (c *Client) ClassifyText(ctx context.Context, description, prompt string, timeout time.Duration) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, timeout,
		genai.Text(prompt),
		genai.Text(description),
	)
	if err != nil {
		c.collector.RecordFailure(metrics.OpClassify)
		return "", fmt.Errorf("classify: %w", err)
	}
	c.collector.RecordTiming(metrics.OpClassify, time.Since(start))
	return text, nil
}

func (c *Client) generate(ctx context.Context, timeout time.Duration, parts ...genai.Part) (string, error) {
	cred := c.ring.current()
	if err := cred.limiter.Wait(ctx); err != nil {
		return "", err
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	model := cred.client.GenerativeModel(c.visionModel)
	resp, err := model.GenerateContent(callCtx, parts...)
	if err != nil {
		return "", err
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrContentFiltered
	}
	return text, nil
}

// Embed computes a semantic-similarity embedding for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	cred := c.ring.current()
	if err := cred.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	em := cred.client.EmbeddingModel(c.embedModel)
	em.TaskType = genai.TaskTypeSemanticSimilarity
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		c.collector.RecordFailure(metrics.OpEmbedding)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		c.collector.RecordFailure(metrics.OpEmbedding)
		return nil, fmt.Errorf("embed: empty embedding returned")
	}
	c.collector.RecordTiming(metrics.OpEmbedding, time.Since(start))
	return res.Embedding.Values, nil
}

// Delete removes an uploaded artifact. Best-effort: callers log failures but
// never let them change a classification outcome.
func (c *Client) Delete(ctx context.Context, handle FileHandle) error {
	cred := c.ring.current()
	start := time.Now()
	if err := cred.client.DeleteFile(ctx, handle.Name); err != nil {
		c.collector.RecordFailure(metrics.OpDelete)
		return fmt.Errorf("delete %s: %w", handle.Name, err)
	}
	c.collector.RecordTiming(metrics.OpDelete, time.Since(start))
	return nil
}

// responseText flattens all text parts of the first candidate. Blocked
// prompts and safety-stopped candidates yield "".
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String())
}
