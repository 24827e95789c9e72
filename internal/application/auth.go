package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"safe-eye-console/internal/domain/entity"
	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

// AuthSession единственная сессия оператора на процесс.
// Все компоненты получают её явно, а не через глобальное состояние.
type AuthSession struct {
	auth  port.Authenticator
	store port.TokenStore

	mu     sync.Mutex
	tokens entity.Tokens
	hooks  []func()
}

// NewAuthSession создаёт сессию и поднимает сохранённые токены из store.
func NewAuthSession(auth port.Authenticator, store port.TokenStore) *AuthSession {
	s := &AuthSession{auth: auth, store: store}
	if store == nil {
		return s
	}

	tokens, err := store.Load()
	if err != nil {
		logger.Warn("Auth", "Load stored tokens: %v", err)
		return s
	}
	s.tokens = tokens
	if tokens.Valid() {
		logger.Info("Auth", "Restored stored session")
	}
	return s
}

// Login получает токены и сохраняет их.
func (s *AuthSession) Login(ctx context.Context, username, password string) error {
	creds := entity.Credentials{Username: strings.TrimSpace(username), Password: password}
	if creds.Username == "" || creds.Password == "" {
		return entity.ErrMissingCredentials
	}

	tokens, err := s.auth.ObtainTokens(ctx, creds)
	if err != nil {
		if errors.Is(err, entity.ErrUnauthorized) {
			return entity.ErrInvalidCredentials
		}
		logger.Error("Auth", "Login %s: %v", creds.Username, err)
		return err
	}

	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()

	s.persist(tokens)
	logger.Info("Auth", "Operator %s logged in", creds.Username)
	return nil
}

// AccessToken возвращает текущий токен доступа.
func (s *AuthSession) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Access, s.tokens.Valid()
}

// Authenticated сообщает, что сессия открыта.
func (s *AuthSession) Authenticated() bool {
	_, ok := s.AccessToken()
	return ok
}

// Logout закрывает сессию по запросу оператора.
func (s *AuthSession) Logout() {
	if s.clear() {
		logger.Info("Auth", "Operator logged out")
	}
}

// HandleUnauthorized вызывается на любой 401. Токены сбрасываются, хуки перенаправления
// срабатывают один раз за сессию, даже если 401 пришли одновременно.
func (s *AuthSession) HandleUnauthorized() {
	if !s.clear() {
		return
	}
	logger.Warn("Auth", "Session expired, redirecting to login")

	s.mu.Lock()
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// OnLogout регистрирует хук глобального выхода.
func (s *AuthSession) OnLogout(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// clear сбрасывает токены. Возвращает true, если сессия была открыта.
func (s *AuthSession) clear() bool {
	s.mu.Lock()
	wasValid := s.tokens.Valid()
	s.tokens = entity.Tokens{}
	s.mu.Unlock()

	if !wasValid {
		return false
	}
	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			logger.Warn("Auth", "Clear stored tokens: %v", err)
		}
	}
	return true
}

func (s *AuthSession) persist(tokens entity.Tokens) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(tokens); err != nil {
		logger.Warn("Auth", "Save tokens: %v", err)
	}
}
