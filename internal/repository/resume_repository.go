package repository

import (
	"context"

	"autoapply/internal/database"
	"autoapply/internal/domain/user"

	"github.com/google/uuid"
)

type ResumeRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]user.Resume, error)
}

type PostgresResumeRepository struct {
	db database.DB
}

func NewPostgresResumeRepository(db database.DB) *PostgresResumeRepository {
	return &PostgresResumeRepository{db: db}
}

// ListByUser returns the default resume first so that it wins score ties.
func (r *PostgresResumeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]user.Resume, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, name, content, skills, is_default, COALESCE(file_ref, ''), created_at
		 FROM resumes
		 WHERE user_id = $1
		 ORDER BY is_default DESC, created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]user.Resume, 0)
	for rows.Next() {
		var it user.Resume
		if err := rows.Scan(&it.ID, &it.UserID, &it.Name, &it.Content, &it.Skills, &it.IsDefault, &it.FileRef, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
