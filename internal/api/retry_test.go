package api

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", cfg.MaxDelay)
	}
	if cfg.RetryableOn == nil {
		t.Error("RetryableOn is nil")
	}
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		expected   bool
	}{
		{"network error", 0, 0, true},
		{"network error at max", 3, 0, false},
		{"first attempt, retryable", 0, 503, true},
		{"third attempt, retryable", 2, 503, true},
		{"max attempts reached", 3, 503, false},
		{"non-retryable 400", 0, 400, false},
		{"non-retryable 404", 0, 404, false},
		{"non-retryable 409", 0, 409, false},
		{"retryable 429", 0, 429, true},
		{"retryable 504", 0, 504, true},
		{"retryable 408", 0, 408, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cfg.ShouldRetry(tt.attempt, tt.statusCode)
			if result != tt.expected {
				t.Errorf("ShouldRetry(%d, %d) = %v, want %v",
					tt.attempt, tt.statusCode, result, tt.expected)
			}
		})
	}
}

func TestRetryConfig_ShouldRetry_NilPredicate(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 1}
	if !cfg.ShouldRetry(0, 503) {
		t.Error("ShouldRetry(0, 503) = false, want true with default predicate")
	}
	if cfg.ShouldRetry(0, 422) {
		t.Error("ShouldRetry(0, 422) = true, want false with default predicate")
	}
}

func TestRetryConfig_Delay(t *testing.T) {
	cfg := &RetryConfig{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
	}

	for _, tt := range tests {
		if delay := cfg.Delay(tt.attempt); delay != tt.expected {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, delay, tt.expected)
		}
	}
}

func TestRetryConfig_Delay_WithJitter(t *testing.T) {
	cfg := &RetryConfig{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.5,
	}

	for i := 0; i < 100; i++ {
		delay := cfg.Delay(0)
		if delay < 500*time.Millisecond || delay > 1500*time.Millisecond {
			t.Errorf("Delay(0) = %v, want within [500ms, 1.5s]", delay)
		}
	}
}

func TestRetryConfig_Wait_ContextCancellation(t *testing.T) {
	cfg := &RetryConfig{
		BaseDelay:  10 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := cfg.Wait(ctx, 0)
	if err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() took %v after cancellation", elapsed)
	}
}

func TestIdempotent(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{http.MethodGet, true},
		{http.MethodHead, true},
		{http.MethodPost, false},
		{http.MethodDelete, false},
	}
	for _, tt := range tests {
		if got := Idempotent(tt.method); got != tt.want {
			t.Errorf("Idempotent(%s) = %v, want %v", tt.method, got, tt.want)
		}
	}
}
