package repository

import (
	"context"
	"fmt"

	"database/sql"

	"github.com/hitoshi/renraku/internal/model"
)

// PostgresStatusCheckRepo はPostgreSQLを使用した死活報告リポジトリ。
type PostgresStatusCheckRepo struct {
	db *sql.DB
}

// NewPostgresStatusCheckRepo はPostgresStatusCheckRepoを生成する。
func NewPostgresStatusCheckRepo(db *sql.DB) *PostgresStatusCheckRepo {
	return &PostgresStatusCheckRepo{db: db}
}

// Create は死活報告を作成する。
func (r *PostgresStatusCheckRepo) Create(ctx context.Context, check *model.StatusCheck) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO status_checks (id, client_name, timestamp) VALUES ($1, $2, $3)`,
		check.ID, check.ClientName, check.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create status check: %w", err)
	}
	return nil
}

// List は死活報告をtimestamp降順で最大limit件返す。
func (r *PostgresStatusCheckRepo) List(ctx context.Context, limit int) ([]*model.StatusCheck, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_name, timestamp FROM status_checks ORDER BY timestamp DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list status checks: %w", err)
	}
	defer rows.Close()

	var checks []*model.StatusCheck
	for rows.Next() {
		check := &model.StatusCheck{}
		if err := rows.Scan(&check.ID, &check.ClientName, &check.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan status check: %w", err)
		}
		checks = append(checks, check)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status checks: %w", err)
	}

	return checks, nil
}

// compile-time interface check
var _ StatusCheckRepository = (*PostgresStatusCheckRepo)(nil)
