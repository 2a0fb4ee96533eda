package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ActivityRepository implements port.ActivityRepository
type ActivityRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity journal repository
func NewActivityRepository(db *sqlite.DB, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an entry. Replaying the same event id is ignored.
func (r *ActivityRepository) Create(ctx context.Context, activity *entity.Activity) error {
	query := `
		INSERT INTO activity_log (
			event_id, event_type, document_type, document_id, actor_id, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query,
		activity.EventID,
		activity.EventType,
		activity.DocumentType,
		activity.DocumentID,
		activity.ActorID,
		activity.Payload,
		activity.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create activity record",
			zap.String("event_id", activity.EventID),
			zap.Error(err))
		return fmt.Errorf("failed to create activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	activity.ID = id
	return nil
}

// ListByDocument returns the newest entries first
func (r *ActivityRepository) ListByDocument(ctx context.Context, documentType, documentID string, limit int) ([]*entity.Activity, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_id, event_type, document_type, document_id, actor_id, payload, created_at
		FROM activity_log
		WHERE document_type = ? AND document_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, documentType, documentID, limit)
	if err != nil {
		r.logger.Error("Failed to list activity",
			zap.String("document_type", documentType),
			zap.String("document_id", documentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var records []*entity.Activity
	for rows.Next() {
		var a entity.Activity
		if err := rows.Scan(
			&a.ID,
			&a.EventID,
			&a.EventType,
			&a.DocumentType,
			&a.DocumentID,
			&a.ActorID,
			&a.Payload,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		records = append(records, &a)
	}
	return records, rows.Err()
}

var _ port.ActivityRepository = (*ActivityRepository)(nil)
