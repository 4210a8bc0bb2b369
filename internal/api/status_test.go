package api

import (
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeOK},
		{201, OutcomeOK},
		{204, OutcomeOK},
		{304, OutcomeUnknown},
		{400, OutcomeFail},
		{401, OutcomeFail},
		{403, OutcomeFail},
		{404, OutcomeFail},
		{429, OutcomeRetry},
		{500, OutcomeRetry},
		{503, OutcomeRetry},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.status); got != tt.want {
			t.Errorf("ClassifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := 200 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{2, 800 * time.Millisecond},
		{4, 3200 * time.Millisecond},
		{5, maxBackoff},
		{30, maxBackoff},
	}

	for _, tt := range tests {
		if got := CalculateBackoff(base, tt.attempt); got != tt.want {
			t.Errorf("CalculateBackoff(%v, %d) = %v, want %v", base, tt.attempt, got, tt.want)
		}
	}

	if got := CalculateBackoff(0, 3); got != 0 {
		t.Errorf("CalculateBackoff with zero base = %v, want 0", got)
	}
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	if _, ok := retryAfter(h); ok {
		t.Error("missing header should not be parsed")
	}

	h.Set("Retry-After", "2")
	if d, ok := retryAfter(h); !ok || d != 2*time.Second {
		t.Errorf("retryAfter = %v, %v; want 2s, true", d, ok)
	}

	h.Set("Retry-After", "3600")
	if d, _ := retryAfter(h); d != maxBackoff {
		t.Errorf("retryAfter should be capped at %v, got %v", maxBackoff, d)
	}

	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	if _, ok := retryAfter(h); ok {
		t.Error("HTTP-date form is not supported")
	}
}
