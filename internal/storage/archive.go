package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/docjobs/internal/domain"
	"github.com/cuongbtq/docjobs/shared/postgresql"
)

// archiveSchema creates the archive table on first use.
const archiveSchema = `
	CREATE TABLE IF NOT EXISTS job_archive (
		job_id      BIGINT NOT NULL,
		tenant_id   TEXT NOT NULL,
		job_type    TEXT NOT NULL,
		status      TEXT NOT NULL,
		input_uri   TEXT NOT NULL,
		result      JSONB,
		error       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, job_id, created_at)
	)
`

// archivedJob is the row shape of job_archive
type archivedJob struct {
	JobID     int64     `db:"job_id"`
	TenantID  string    `db:"tenant_id"`
	JobType   string    `db:"job_type"`
	Status    string    `db:"status"`
	InputURI  string    `db:"input_uri"`
	Result    *string   `db:"result"`
	Error     string    `db:"error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PostgresArchiver writes evicted jobs into the job_archive table.
type PostgresArchiver struct {
	pg     *postgresql.Client
	logger *slog.Logger
}

// NewPostgresArchiver creates the archive table if needed and returns an archiver.
func NewPostgresArchiver(ctx context.Context, pg *postgresql.Client, logger *slog.Logger) (*PostgresArchiver, error) {
	if err := pg.ExecContext(ctx, archiveSchema); err != nil {
		return nil, fmt.Errorf("failed to create job_archive table: %w", err)
	}
	return &PostgresArchiver{
		pg:     pg,
		logger: logger,
	}, nil
}

// Archive inserts jobs in a single transaction. Rows already archived are skipped.
func (a *PostgresArchiver) Archive(ctx context.Context, jobs []*domain.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	query := `
		INSERT INTO job_archive (
			job_id, tenant_id, job_type, status,
			input_uri, result, error, created_at, updated_at
		) VALUES (
			:job_id, :tenant_id, :job_type, :status,
			:input_uri, :result, :error, :created_at, :updated_at
		)
		ON CONFLICT DO NOTHING
	`

	rows := make([]archivedJob, len(jobs))
	for i, job := range jobs {
		var result *string
		if job.Result != nil {
			s := string(job.Result)
			result = &s
		}
		rows[i] = archivedJob{
			JobID:     job.ID,
			TenantID:  job.TenantID,
			JobType:   string(job.JobType),
			Status:    string(job.Status),
			InputURI:  job.InputReference,
			Result:    result,
			Error:     job.Error,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		}
	}

	tx, err := a.pg.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to archive jobs: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to archive job %d: %w", row.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	a.logger.Info("Archived finished jobs", slog.Int("count", len(rows)))
	return nil
}
