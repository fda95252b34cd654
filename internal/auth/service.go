// Package auth は資格情報の登録・照合とセッショントークンの管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/repository"
)

// Session はログイン成功時に発行されるセッション情報。
type Session struct {
	User     *model.User
	Token    string
	Remember bool
	MaxAge   int // Cookieの有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      *PasswordHasher
	tokens      *SessionTokens
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, hasher *PasswordHasher, tokens *SessionTokens) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		tokens:      tokens,
	}
}

// Register は利用者を登録する。
// ユーザー名が既に存在する場合はDUPLICATE_USERNAMEのAPIErrorを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, model.ValidationErrorFrom(err)
	}

	existing, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUsernameError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{Username: in.Username, PasswordHash: hash}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 事前確認と挿入の間に同名登録が割り込んだ場合
		if errors.Is(err, model.ErrDuplicateUsername) {
			return nil, model.NewDuplicateUsernameError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Verify はユーザー名とパスワードを照合する。
// ユーザー不在とパスワード不一致はいずれもINVALID_CREDENTIALSとなる。
func (s *Service) Verify(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !s.hasher.Verify(password, user.PasswordHash) {
		return nil, model.NewInvalidCredentialsError()
	}
	return user, nil
}

// Login は資格情報を照合し、セッションを保存してトークンを発行する。
// remember=falseの場合はブラウザセッション限りのCookieとして扱うためMaxAgeは0となる。
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if err := in.Validate(); err != nil {
		return nil, model.ValidationErrorFrom(err)
	}

	user, err := s.Verify(ctx, in.Username, in.Password)
	if err != nil {
		return nil, err
	}

	stored := s.tokens.NewSession(user.ID, in.Remember)
	if err := s.sessionRepo.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.tokens.Issue(stored, user.Username, in.Remember)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	// 期限切れ行の掃除はログインの成否に影響させない
	if n, err := s.sessionRepo.DeleteExpired(ctx); err != nil {
		slog.Warn("failed to delete expired sessions", slog.String("error", err.Error()))
	} else if n > 0 {
		slog.Info("expired sessions deleted", slog.Int64("count", n))
	}

	session := &Session{User: user, Token: token, Remember: in.Remember}
	if in.Remember {
		session.MaxAge = int(s.tokens.TTL(true).Seconds())
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.Bool("remember", in.Remember),
	)
	return session, nil
}

// ResolveSession はセッショントークンから現在のユーザーを取得する。
// トークンが不正・期限切れ、セッションがログアウト済み、またはユーザーが削除済みの場合はnilを返す（匿名扱い）。
func (s *Service) ResolveSession(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, nil
	}
	userID, _ := claims.UserID()

	stored, err := s.sessionRepo.FindByID(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if stored == nil || stored.UserID != userID {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session user: %w", err)
	}
	return user, nil
}

// Logout はトークンが指すセッションを削除する。
// 不正なトークンは削除対象が無いため何もしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.sessionRepo.DeleteByID(ctx, claims.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("user_id", claims.Subject))
	return nil
}
