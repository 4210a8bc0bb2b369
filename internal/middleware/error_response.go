package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponseBody はエラーレスポンスの本文。
// クライアントはmessageを表示し、無ければ自前のフォールバックを使う。
type ErrorResponseBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// WriteError はエラーレスポンスを書き込む。
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:    code,
		Message: message,
	})
}

// WriteInternalServerError は内部エラーのレスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}

// WriteJSON は成功レスポンスをJSONで書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
