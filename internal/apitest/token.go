package apitest

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// eventClaims は発行するトークンのクレーム。
// ユーザーIDはuserIdクレームに載せる。
type eventClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// IssueToken はユーザーIDに対するHS256署名済みトークンを発行する。
func (s *Server) IssueToken(userID string) string {
	now := s.now()
	claims := eventClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return token
}

// VerifyToken は署名と有効期限を検証し、ユーザーIDを返す。
// middleware.TokenVerifierを実装する。
func (s *Server) VerifyToken(token string) (string, error) {
	var claims eventClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if claims.UserID == "" {
		return "", errors.New("token has no userId claim")
	}
	return claims.UserID, nil
}
