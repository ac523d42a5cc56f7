// Package mockapi は開発・テスト用のCMSプラットフォームAPIスタブを提供する。
package mockapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/geekcms/internal/middleware"
	"github.com/hitoshi/geekcms/internal/model"
)

// TestCode はログインに成功する固定の認証コード。
const TestCode = "246810"

// DefaultTokenTTL は発行したトークンの既定の有効期間。
const DefaultTokenTTL = 2 * time.Hour

// ErrInvalidLogin は携帯電話番号または認証コードが正しくないことを示す。
var ErrInvalidLogin = errors.New("invalid mobile or code")

// issuedToken は発行済みトークンの所有者と有効期限。
type issuedToken struct {
	userID    string
	expiresAt time.Time
}

// AuthService はログインとトークンの発行・検証を行う。
type AuthService struct {
	users  UserFinder
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]issuedToken
}

// UserFinder は携帯電話番号からユーザーを探すインターフェース。Storeが実装する。
type UserFinder interface {
	UserByMobile(mobile string) (*model.UserProfile, bool)
}

// NewAuthService はAuthServiceを生成する。ttlが0以下の場合はDefaultTokenTTLを使う。
func NewAuthService(users UserFinder, ttl time.Duration, logger *slog.Logger) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{
		users:  users,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
		tokens: make(map[string]issuedToken),
	}
}

// Login は携帯電話番号と認証コードを検証し、アクセストークンとリフレッシュトークンを発行する。
func (s *AuthService) Login(_ context.Context, mobile, code string) (*model.AuthorizationResult, error) {
	user, ok := s.users.UserByMobile(mobile)
	if !ok || code != TestCode {
		return nil, ErrInvalidLogin
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	refresh, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	s.mu.Lock()
	s.tokens[token] = issuedToken{userID: user.ID, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Info("token_issued",
		slog.String("user_id", user.ID),
		slog.Duration("ttl", s.ttl),
	)

	return &model.AuthorizationResult{Token: token, RefreshToken: refresh}, nil
}

// ResolveToken はトークンの所有者を返す。期限切れのトークンは破棄してfalseを返す。
func (s *AuthService) ResolveToken(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.tokens[token]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(issued.expiresAt) {
		delete(s.tokens, token)
		s.logger.Info("token_expired", slog.String("user_id", issued.userID))
		return "", false, nil
	}
	return issued.userID, true, nil
}

// Revoke はトークンを無効にする。
func (s *AuthService) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// ActiveTokens は有効期限内のトークン数を返す。
func (s *AuthService) ActiveTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, t := range s.tokens {
		if now.Before(t.expiresAt) {
			n++
		}
	}
	return n
}

// generateToken は暗号的に安全なトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// compile-time interface check
var _ middleware.TokenResolver = (*AuthService)(nil)
