// Package security はサーバーから受け取った文字列を端末に表示する前の無害化を提供する。
//
// イベントのタイトルや説明は他のユーザーが入力した任意の文字列で、
// HTMLタグや端末制御シーケンス（ESC等）を含み得る。
// bluemondayのStrictPolicyでタグを除去し、残った制御文字を取り除く。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は表示用テキストの無害化のインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグと制御文字を除去したテキストを返す。改行とタブは残す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
	// SanitizeLine はSanitizeに加えて改行・タブを空白に置き換え、1行に収める。
	// 表の1セルなど、レイアウトを崩してはいけない箇所で使う。
	SanitizeLine(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// すべてのタグを除去するStrictPolicyを使う。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグと制御文字を除去したテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは&などをエスケープするので、表示用に戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, text)
}

// SanitizeLine はSanitizeの結果を1行に収める。
func (s *textSanitizer) SanitizeLine(raw string) string {
	text := s.Sanitize(raw)
	return strings.Join(strings.Fields(text), " ")
}
