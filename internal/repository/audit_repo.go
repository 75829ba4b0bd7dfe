package repository

import (
	"context"

	"confidential_rps/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditColumns = `id, principal, game, action, category, details, ip, user_agent, created_at`

// AuditRepository stores the append-only audit trail.
type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an entry and fills in its id and timestamp.
func (r *AuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	if log.Details == nil {
		log.Details = map[string]interface{}{}
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO audit_logs (principal, game, action, category, details, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, log.Principal, log.Game, log.Action, log.Category, log.Details, log.IP, log.UserAgent).
		Scan(&log.ID, &log.CreatedAt)
}

// GetByPrincipal returns the latest entries written for principal.
func (r *AuditRepository) GetByPrincipal(ctx context.Context, principal string, limit int) ([]*domain.AuditLog, error) {
	return r.query(ctx, `SELECT `+auditColumns+` FROM audit_logs
		WHERE principal = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, principal, limit)
}

// GetByGame returns the trail of one game, oldest first.
func (r *AuditRepository) GetByGame(ctx context.Context, game string, limit int) ([]*domain.AuditLog, error) {
	return r.query(ctx, `SELECT `+auditColumns+` FROM audit_logs
		WHERE game = $1 ORDER BY created_at ASC, id ASC LIMIT $2`, game, limit)
}

func (r *AuditRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[domain.AuditLog])
}
