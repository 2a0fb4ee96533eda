package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// IdentityRepository keeps the single signed-in identity in user_identity
type IdentityRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *sqlite.DB, logger *zap.Logger) *IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

// Save replaces the stored identity
func (r *IdentityRepository) Save(ctx context.Context, identity *entity.Identity) error {
	if identity.StoredAt.IsZero() {
		identity.StoredAt = time.Now().UTC()
	}

	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Conn(ctx)
		if _, err := exec.ExecContext(ctx, `DELETE FROM user_identity`); err != nil {
			return fmt.Errorf("failed to clear identity: %w", err)
		}

		_, err := exec.ExecContext(ctx, `
			INSERT INTO user_identity (id, user_id, name, token, expires_at, stored_at)
			VALUES (1, ?, ?, ?, ?, ?)
		`, identity.UserID, identity.Name, identity.Token, nullTime(identity.ExpiresAt), identity.StoredAt)
		if err != nil {
			r.logger.Error("Failed to store identity", zap.String("user_id", identity.UserID), zap.Error(err))
			return fmt.Errorf("failed to store identity: %w", err)
		}
		return nil
	})
}

// Get returns the stored identity, or nil when nobody is signed in
func (r *IdentityRepository) Get(ctx context.Context) (*entity.Identity, error) {
	var (
		identity  entity.Identity
		expiresAt sql.NullTime
	)
	err := r.db.Conn(ctx).QueryRowContext(ctx, `
		SELECT user_id, name, token, expires_at, stored_at
		FROM user_identity
		WHERE id = 1
	`).Scan(&identity.UserID, &identity.Name, &identity.Token, &expiresAt, &identity.StoredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to load identity", zap.Error(err))
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		identity.ExpiresAt = &t
	}
	return &identity, nil
}

// Clear signs the stored identity out
func (r *IdentityRepository) Clear(ctx context.Context) error {
	if _, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM user_identity`); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
