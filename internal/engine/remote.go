package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/eduardohotta/cortex/internal/audio"
)

const (
	defaultRemoteTimeout = 30 * time.Second
	maxRemoteBackoff     = 30 * time.Second
)

// Remote transcribes through an OpenAI-compatible /audio/transcriptions
// endpoint, such as a faster-whisper server. Segments are requested in
// verbose_json form so that timing and log-probabilities survive.
type Remote struct {
	client     *openai.Client
	model      string
	maxRetries int
	timeout    time.Duration

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// RemoteStats represents remote engine statistics
type RemoteStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewRemote creates a remote engine
func NewRemote(s Settings) (*Remote, error) {
	if s.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultRemoteTimeout
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}

	cfg := openai.DefaultConfig(s.APIKey)
	cfg.BaseURL = strings.TrimRight(s.Endpoint, "/")
	cfg.HTTPClient = &http.Client{
		Timeout: s.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	model := s.ModelSize
	if model == "" {
		model = openai.Whisper1
	}

	return &Remote{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		maxRetries: s.MaxRetries,
		timeout:    s.Timeout,
	}, nil
}

// Transcribe implements Engine
func (r *Remote) Transcribe(ctx context.Context, samples []float32, opts Options) (*Result, error) {
	wav, err := audio.EncodeWAVBytes(samples, audio.TargetSampleRate)
	if err != nil {
		return nil, fmt.Errorf("encode chunk: %w", err)
	}

	startTime := time.Now()
	r.incrementTotalRequests()

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > maxRemoteBackoff {
				backoffTime = maxRemoteBackoff
			}
			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := r.doRequest(ctx, wav, opts)
		if err == nil {
			r.incrementSuccessRequests()
			r.updateAvgResponseTime(time.Since(startTime))
			return res, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	// Failures on the server side are never hardware failures here: switching
	// the local device cannot fix them.
	r.incrementFailedRequests()
	return nil, fmt.Errorf("transcription failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *Remote) doRequest(ctx context.Context, wav []byte, opts Options) (*Result, error) {
	req := openai.AudioRequest{
		Model:       r.model,
		FilePath:    "chunk.wav",
		Reader:      bytes.NewReader(wav),
		Prompt:      opts.InitialPrompt,
		Temperature: opts.Temperature,
		Language:    opts.Language,
		Format:      openai.AudioResponseFormatVerboseJSON,
	}

	resp, err := r.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &Result{Language: resp.Language}
	if res.Language == "" {
		res.Language = opts.Language
	}
	for _, s := range resp.Segments {
		res.Segments = append(res.Segments, Segment{
			Text:             s.Text,
			Start:            s.Start,
			End:              s.End,
			AvgLogProb:       s.AvgLogprob,
			NoSpeechProb:     s.NoSpeechProb,
			CompressionRatio: s.CompressionRatio,
		})
	}
	// Servers that ignore verbose_json still return the text.
	if len(resp.Segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		res.Segments = []Segment{{Text: resp.Text, End: resp.Duration}}
	}
	return res, nil
}

// isRetryableError reports whether a failed request is worth repeating:
// timeouts, rate limiting, server errors and connection failures.
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "refused")
}

func (r *Remote) incrementTotalRequests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalRequests++
}

func (r *Remote) incrementSuccessRequests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successRequests++
}

func (r *Remote) incrementFailedRequests() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedRequests++
}

func (r *Remote) incrementTotalRetries() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalRetries++
}

func (r *Remote) updateAvgResponseTime(responseTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Simple moving average
	if r.avgResponseTime == 0 {
		r.avgResponseTime = responseTime
	} else {
		r.avgResponseTime = (r.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current remote engine statistics
func (r *Remote) GetStats() RemoteStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	successRate := float64(0)
	if r.totalRequests > 0 {
		successRate = float64(r.successRequests) / float64(r.totalRequests) * 100
	}

	return RemoteStats{
		TotalRequests:   r.totalRequests,
		SuccessRequests: r.successRequests,
		FailedRequests:  r.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    r.totalRetries,
		AvgResponseTime: r.avgResponseTime,
	}
}

// Close implements Engine
func (r *Remote) Close() error {
	return nil
}
