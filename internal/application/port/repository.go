package port

import (
	"context"

	"github.com/garyjia/logistics-console/internal/domain/entity"
)

// IdentityRepository persists the single locally stored user identity
type IdentityRepository interface {
	Save(ctx context.Context, identity *entity.Identity) error
	Get(ctx context.Context) (*entity.Identity, error)
	Clear(ctx context.Context) error
}

// ActivityRepository persists the document activity journal
type ActivityRepository interface {
	Create(ctx context.Context, activity *entity.Activity) error
	ListByDocument(ctx context.Context, documentType, documentID string, limit int) ([]*entity.Activity, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
