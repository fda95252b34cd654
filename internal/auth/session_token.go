package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/taskmaster/internal/model"
)

// ErrInvalidSession はセッショントークンが不正または期限切れの場合に返す。
var ErrInvalidSession = errors.New("invalid session token")

const sessionIssuer = "taskmaster"

// SessionClaims はセッションCookieに格納するクレーム。
// RegisteredClaims.IDはsessionsテーブルの行を指す。
type SessionClaims struct {
	Username string `json:"username"`
	Remember bool   `json:"remember"`
	jwt.RegisteredClaims
}

// UserID はSubjectからユーザーIDを取り出す。
func (c *SessionClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// SessionTokensConfig はセッショントークンの設定。
type SessionTokensConfig struct {
	Secret         string
	SessionMaxAge  time.Duration // remember=false の有効期間
	RememberMaxAge time.Duration // remember=true の有効期間
}

// SessionTokens はSECRET_KEYで署名したセッショントークンを発行・検証する。
// 署名の検証のみを行い、セッション行の有無は呼び出し側が確認する。
type SessionTokens struct {
	config SessionTokensConfig
	now    func() time.Time
}

// NewSessionTokens はSessionTokensを生成する。
func NewSessionTokens(config SessionTokensConfig) *SessionTokens {
	return &SessionTokens{config: config, now: time.Now}
}

// TTL はrememberに応じたトークンの有効期間を返す。
func (s *SessionTokens) TTL(remember bool) time.Duration {
	if remember {
		return s.config.RememberMaxAge
	}
	return s.config.SessionMaxAge
}

// NewSession はrememberに応じた有効期限を持つ新しいセッションを生成する。
func (s *SessionTokens) NewSession(userID int64, remember bool) *model.Session {
	now := s.now()
	return &model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(s.TTL(remember)),
		CreatedAt: now,
	}
}

// Issue はセッションを参照する署名付きトークンを発行する。
func (s *SessionTokens) Issue(session *model.Session, username string, remember bool) (string, error) {
	claims := SessionClaims{
		Username: username,
		Remember: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Issuer:    sessionIssuer,
			Subject:   strconv.FormatInt(session.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

// Parse はトークンを検証してクレームを返す。
// 署名不一致、期限切れ、HS256以外のアルゴリズム、セッションID欠落はErrInvalidSessionとなる。
func (s *SessionTokens) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) {
			return []byte(s.config.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidSession
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
