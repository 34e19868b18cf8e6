package repository

import (
	"context"
	"fmt"

	"imagevault/internal/models"
)

type ActivityRepository struct {
	db DB
}

func NewActivityRepository(db DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Record appends one upload row to the audit log.
func (r *ActivityRepository) Record(ctx context.Context, entry models.ActivityEntry) error {
	const query = `
		INSERT INTO activity_log (username, saved_filename, posted_filename, ip, user_agent, referer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
	`
	var createdAt any
	if !entry.CreatedAt.IsZero() {
		createdAt = entry.CreatedAt
	}

	_, err := r.db.Exec(ctx, query,
		entry.Username,
		entry.SavedFilename,
		entry.PostedFilename,
		entry.IP,
		entry.UserAgent,
		entry.Referer,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
