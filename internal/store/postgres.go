package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/patenthound/patenthound/pkg/models"
)

const jobColumns = `id, patent_number, claim_text, company_name, product_name,
	 priority, scheduled_for, search_type, status, progress, retry_count, max_retries,
	 external_response_id, input_prompt, research_results, error_message,
	 created_at, updated_at, queued_at, started_at, finished_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Research Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.ResearchJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_jobs (id, patent_number, claim_text, company_name, product_name,
		   priority, scheduled_for, search_type, status, progress, retry_count, max_retries,
		   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		job.ID, job.PatentNumber, job.ClaimText, job.CompanyName, job.ProductName,
		job.Priority, job.ScheduledFor, job.SearchType, job.Status, job.Progress,
		job.RetryCount, job.MaxRetries, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.ResearchJob, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM research_jobs WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	order := "created_at DESC"
	if filter.OrderByPriority {
		order = "priority DESC, created_at DESC"
	}

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM research_jobs WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		jobColumns, where, order, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) FindActiveJobByPatent(ctx context.Context, patentNumber string) (*models.ResearchJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM research_jobs
		 WHERE patent_number = $1 AND status IN ('pending', 'researching')
		 ORDER BY created_at ASC LIMIT 1`, patentNumber)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active job by patent: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) FindJobByResponseID(ctx context.Context, responseID string) (*models.ResearchJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE external_response_id = $1 LIMIT 1`, responseID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by response id: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM research_jobs WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs by status: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) JobStatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM research_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) SelectPendingJobs(ctx context.Context, now time.Time, limit int) ([]*models.ResearchJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM research_jobs
		 WHERE status = 'pending' AND (scheduled_for IS NULL OR scheduled_for <= $1)
		 ORDER BY priority DESC, created_at ASC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) ListResearchingJobs(ctx context.Context) ([]*models.ResearchJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM research_jobs WHERE status = 'researching'`)
	if err != nil {
		return nil, fmt.Errorf("list researching jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	return jobs, rows.Err()
}

// ClaimPendingJob is a conditional update so that two overlapping ticks can
// never both submit the same job: only the tick whose update hits the pending
// row wins the claim.
func (s *PostgresStore) ClaimPendingJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE research_jobs SET status = 'researching', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("claim pending job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) MarkSubmitted(ctx context.Context, id uuid.UUID, responseID, prompt string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE research_jobs
		 SET external_response_id = $2, input_prompt = $3, progress = 10,
		     started_at = NOW(), queued_at = COALESCE(queued_at, NOW()), updated_at = NOW()
		 WHERE id = $1`, id, responseID, prompt)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReleaseForRetry(ctx context.Context, id uuid.UUID, retryCount int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE research_jobs SET status = 'pending', retry_count = $2, updated_at = NOW()
		 WHERE id = $1`, id, retryCount)
	if err != nil {
		return fmt.Errorf("release for retry: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementRetryCount(ctx context.Context, id uuid.UUID, retryCount int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE research_jobs SET retry_count = $2, updated_at = NOW() WHERE id = $1`,
		id, retryCount)
	if err != nil {
		return fmt.Errorf("increment retry count: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, results *models.ResearchResults) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE research_jobs
		 SET status = 'completed', research_results = $2, progress = 100,
		     finished_at = NOW(), updated_at = NOW()
		 WHERE id = $1`, id, results)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, errMsg string, opts ...FailOption) error {
	params := &failParams{}
	for _, opt := range opts {
		opt(params)
	}

	query := `UPDATE research_jobs SET status = 'failed', error_message = $2,
	          finished_at = NOW(), updated_at = NOW()`
	args := []any{id, errMsg}
	if params.RetryCount != nil {
		query += ", retry_count = $3"
		args = append(args, *params.RetryCount)
	}
	query += " WHERE id = $1"

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// ResetJobForRetry moves a failed job back to pending, clearing prior state.
// The WHERE guard keeps concurrent resets from double-incrementing the counter.
func (s *PostgresStore) ResetJobForRetry(ctx context.Context, id uuid.UUID) (*models.ResearchJob, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE research_jobs
		 SET status = 'pending', progress = 0, error_message = NULL,
		     external_response_id = NULL, research_results = NULL,
		     retry_count = retry_count + 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'failed'
		 RETURNING `+jobColumns, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reset job for retry: %w", err)
	}
	return job, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ResearchJob, error) {
	var j models.ResearchJob
	err := row.Scan(&j.ID, &j.PatentNumber, &j.ClaimText, &j.CompanyName, &j.ProductName,
		&j.Priority, &j.ScheduledFor, &j.SearchType, &j.Status, &j.Progress,
		&j.RetryCount, &j.MaxRetries, &j.ExternalResponseID, &j.InputPrompt,
		&j.ResearchResults, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt, &j.QueuedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*models.ResearchJob, error) {
	var jobs []*models.ResearchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
