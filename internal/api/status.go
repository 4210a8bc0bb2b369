package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/eventdesk/internal/model"
)

// Outcome はHTTPステータスコードに基づくAPI呼び出し結果の分類。
type Outcome int

const (
	// OutcomeOK は成功（2xx）。
	OutcomeOK Outcome = iota
	// OutcomeFail は再送しても結果が変わらない失敗（429以外の4xx）。
	OutcomeFail
	// OutcomeRetry はバックオフ後の再送で回復し得る失敗（429/5xx）。
	OutcomeRetry
	// OutcomeUnknown は未知のステータスコード。
	OutcomeUnknown
)

// maxBackoff は再送待ちの上限。
// 対話的なCLIなので数秒を超えて待たせない。
const maxBackoff = 5 * time.Second

// ClassifyStatus はHTTPステータスコードを呼び出し結果に分類する。
func ClassifyStatus(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeOK
	case statusCode == http.StatusTooManyRequests:
		return OutcomeRetry
	case statusCode >= 500:
		return OutcomeRetry
	case statusCode >= 400:
		return OutcomeFail
	default:
		return OutcomeUnknown
	}
}

// CalculateBackoff は再送回数に基づいて指数バックオフ遅延を計算する。
// 初回base、2倍ずつ増加、最大maxBackoff。
func CalculateBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// retryAfter はRetry-Afterヘッダー（秒数形式）を解釈する。
// 無い・解釈できない場合はfalseを返す。
func retryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec < 0 {
		return 0, false
	}
	d := time.Duration(sec) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d, true
}

// errorCodeForStatus はHTTPステータスをエラーコードに対応付ける。
func errorCodeForStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity:
		return model.ErrCodeBadRequest
	case statusCode == http.StatusUnauthorized:
		return model.ErrCodeUnauthorized
	case statusCode == http.StatusForbidden:
		return model.ErrCodeForbidden
	case statusCode == http.StatusNotFound:
		return model.ErrCodeNotFound
	case statusCode == http.StatusTooManyRequests:
		return model.ErrCodeRateLimited
	case statusCode >= 500:
		return model.ErrCodeServer
	default:
		return model.ErrCodeUnexpected
	}
}
