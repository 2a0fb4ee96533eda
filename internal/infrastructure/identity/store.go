package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"go.uber.org/zap"
)

// Store is the locally stored user identity. It implements port.IdentityProvider.
type Store struct {
	repo   port.IdentityRepository
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cached *entity.Identity
	loaded bool
}

// NewStore creates an identity store backed by repo
func NewStore(repo port.IdentityRepository, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

var _ port.IdentityProvider = (*Store)(nil)

// Current returns the signed-in identity or apperrors.ErrMissingIdentity
func (s *Store) Current(ctx context.Context) (*entity.Identity, error) {
	s.mu.RLock()
	cached, loaded := s.cached, s.loaded
	s.mu.RUnlock()

	if !loaded {
		stored, err := s.repo.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("load identity: %w", err)
		}
		s.mu.Lock()
		s.cached, s.loaded = stored, true
		s.mu.Unlock()
		cached = stored
	}

	if cached == nil || cached.Token == "" {
		return nil, apperrors.ErrMissingIdentity
	}
	if cached.Expired(s.now()) {
		return nil, fmt.Errorf("%w: stored token expired at %s", apperrors.ErrMissingIdentity, cached.ExpiresAt.Format(time.RFC3339))
	}

	cp := *cached
	return &cp, nil
}

// SignIn stores token as the current identity. userID and name fall back to
// the token claims when empty; an opaque token needs an explicit userID.
func (s *Store) SignIn(ctx context.Context, token, userID, name string) (*entity.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, invalidToken("token is required")
	}

	identity := &entity.Identity{
		UserID:   strings.TrimSpace(userID),
		Name:     strings.TrimSpace(name),
		Token:    token,
		StoredAt: s.now().UTC(),
	}

	claims, err := ParseClaims(token)
	if err != nil {
		if identity.UserID == "" {
			return nil, &apperrors.ValidationError{Fields: map[string]string{"userId": "User id is required for a non-JWT token"}}
		}
		s.logger.Debug("Token is not a JWT, storing as opaque credential")
	} else {
		if identity.UserID == "" {
			identity.UserID = claims.ApproverID()
		}
		if identity.Name == "" {
			identity.Name = claims.Name
		}
		if exp, _ := claims.GetExpirationTime(); exp != nil {
			t := exp.Time.UTC()
			identity.ExpiresAt = &t
		}
	}

	if identity.UserID == "" {
		return nil, &apperrors.ValidationError{Fields: map[string]string{"userId": "Token carries no user id"}}
	}
	if identity.Expired(s.now()) {
		return nil, invalidToken("token already expired")
	}

	if err := s.repo.Save(ctx, identity); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached, s.loaded = identity, true
	s.mu.Unlock()

	s.logger.Info("Identity stored", zap.String("user_id", identity.UserID))
	cp := *identity
	return &cp, nil
}

func invalidToken(msg string) error {
	return &apperrors.ValidationError{Fields: map[string]string{"token": msg}}
}

// SignOut forgets the stored identity
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached, s.loaded = nil, true
	s.mu.Unlock()

	s.logger.Info("Identity cleared")
	return nil
}
