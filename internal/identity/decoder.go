// Package identity はベアラートークンのペイロードをサーバーに問い合わせずにデコードする。
//
// 署名・有効期限の検証は一切行わない。取り出したユーザーIDは編集・削除ボタンの
// 表示判定などUI上のヒントにのみ使用し、認可の判断には使用してはならない。
package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/eventdesk/internal/model"
)

// claims はバックエンドが発行するJWTのペイロード。
// userIdが正式なクレーム名で、user_id・subもフォールバックとして受け付ける。
type claims struct {
	UserID    claimID `json:"userId"`
	UserIDAlt claimID `json:"user_id"`
	jwt.RegisteredClaims
}

// claimID は文字列・数値どちらのユーザーIDクレームも文字列として受け取る。
type claimID string

// UnmarshalJSON はjson.Unmarshalerを実装する。数値は桁を落とさずそのまま文字列にする。
func (c *claimID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*c = ""
	case string:
		*c = claimID(x)
	case json.Number:
		*c = claimID(x.String())
	default:
		return fmt.Errorf("user id claim must be a string or number, got %s", data)
	}
	return nil
}

// parser はデコード専用のパーサー。ParseUnverifiedは検証を行わない。
var parser = jwt.NewParser()

// Decode はトークンのペイロードを解析してDecodedIdentityを返す。
// ドット区切り3セグメントの構造でない場合や、ペイロードがデコードできない場合は
// model.ErrMalformedTokenを返す。同じトークンには常に同じ結果を返す純粋関数。
func Decode(token string) (*model.DecodedIdentity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", model.ErrMalformedToken)
	}

	var c claims
	parsed, _, err := parser.ParseUnverified(token, &c)
	if err != nil {
		// algヘッダーが未知でもペイロード自体はデコード済みなので、UI用途では採用する
		if !errors.Is(err, jwt.ErrTokenUnverifiable) || parsed == nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedToken, err)
		}
	}

	id := &model.DecodedIdentity{
		UserID: firstNonEmpty(string(c.UserID), string(c.UserIDAlt), c.Subject),
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}

	return id, nil
}

// UserID はトークンからユーザーIDを取り出す。
// トークンが無い・デコードできない場合は空文字列を返し、所有者判定は常に偽になる。
func UserID(token string) string {
	id, err := Decode(token)
	if err != nil {
		return ""
	}
	return id.UserID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
