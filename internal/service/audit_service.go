package service

import (
	"context"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/logger"
	"confidential_rps/internal/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditService handles audit logging. With no database it only logs.
type AuditService struct {
	repo *repository.AuditRepository
}

// NewAuditService creates a new audit service. db may be nil.
func NewAuditService(db *pgxpool.Pool) *AuditService {
	if db == nil {
		return &AuditService{}
	}
	return &AuditService{
		repo: repository.NewAuditRepository(db),
	}
}

// Log creates a new audit log entry
func (s *AuditService) Log(ctx context.Context, principal, game common.Address, action, category string, details map[string]interface{}) {
	s.write(ctx, &domain.AuditLog{
		Principal: principal.Hex(),
		Game:      hexOrEmpty(game),
		Action:    action,
		Category:  category,
		Details:   details,
	})
}

// LogWithRequest creates an audit log with request info (IP, User-Agent)
func (s *AuditService) LogWithRequest(ctx context.Context, principal, game common.Address, action, category, ip, userAgent string, details map[string]interface{}) {
	s.write(ctx, &domain.AuditLog{
		Principal: principal.Hex(),
		Game:      hexOrEmpty(game),
		Action:    action,
		Category:  category,
		Details:   details,
		IP:        ip,
		UserAgent: userAgent,
	})
}

// LogLogin logs a wallet sign-in
func (s *AuditService) LogLogin(ctx context.Context, principal common.Address, ip, userAgent string) {
	s.LogWithRequest(ctx, principal, common.Address{}, domain.AuditActionLogin, domain.AuditCategoryAuth, ip, userAgent, nil)
}

// GameTrail returns the recorded actions on one game, oldest first.
func (s *AuditService) GameTrail(ctx context.Context, game common.Address, limit int) ([]*domain.AuditLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetByGame(ctx, game.Hex(), limit)
}

// History returns what principal did, newest first.
func (s *AuditService) History(ctx context.Context, principal common.Address, limit int) ([]*domain.AuditLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetByPrincipal(ctx, principal.Hex(), limit)
}

func (s *AuditService) write(ctx context.Context, log *domain.AuditLog) {
	logger.Debug("audit", "principal", log.Principal, "game", log.Game, "action", log.Action)
	if s == nil || s.repo == nil {
		return
	}
	if err := s.repo.Create(ctx, log); err != nil {
		logger.Error("failed to create audit log", "error", err, "action", log.Action, "principal", log.Principal)
	}
}

func hexOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}
