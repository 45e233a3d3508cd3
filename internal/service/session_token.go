package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrSessionTokenInvalid = errors.New("checkout session token invalid")

// SessionClaims 结算会话 JWT 声明；sid 缺省时取 sub
type SessionClaims struct {
	SessionID  string `json:"sid,omitempty"`
	StoreToken string `json:"store_token,omitempty"`
	jwt.RegisteredClaims
}

// ResolvedSessionID 会话 ID
func (c *SessionClaims) ResolvedSessionID() string {
	if c == nil {
		return ""
	}
	if sid := strings.TrimSpace(c.SessionID); sid != "" {
		return sid
	}
	return strings.TrimSpace(c.Subject)
}

// SessionTokenIssuer 签发与解析会话 token
type SessionTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionTokenIssuer 创建会话 token 签发器
func NewSessionTokenIssuer(secret string, ttl time.Duration) *SessionTokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionTokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue 签发会话 token；sessionID 为空时生成新的游客会话
func (s *SessionTokenIssuer) Issue(sessionID, storeToken string) (string, string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", "", time.Time{}, errors.New("jwt secret missing")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := SessionClaims{
		SessionID:  sessionID,
		StoreToken: strings.TrimSpace(storeToken),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return tokenString, sessionID, expiresAt, nil
}

// Parse 解析会话 token
func (s *SessionTokenIssuer) Parse(tokenString string) (*SessionClaims, error) {
	return ParseSessionToken(string(s.secret), tokenString)
}

// ParseSessionToken 校验 HS256 签名并返回声明
func ParseSessionToken(secret, tokenString string) (*SessionClaims, error) {
	if secret == "" {
		return nil, errors.New("jwt secret missing")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &SessionClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.ResolvedSessionID() == "" {
		return nil, ErrSessionTokenInvalid
	}
	return claims, nil
}
