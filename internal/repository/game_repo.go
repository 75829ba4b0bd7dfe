package repository

import (
	"context"
	"errors"

	"confidential_rps/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrGameNotFound = errors.New("game not found")

type GameRepository struct {
	db *pgxpool.Pool
}

func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

const gameColumns = `address, owner, mode, players, encrypted_moves, has_played,
	decryption_state, request_id::text, clear_moves, result, created_at, updated_at`

// Save upserts the latest snapshot of a game.
func (r *GameRepository) Save(ctx context.Context, s *domain.GameSnapshot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO games (address, owner, mode, players, encrypted_moves, has_played,
			decryption_state, request_id, clear_moves, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::uuid, $9, $10, $11, $12)
		ON CONFLICT (address) DO UPDATE SET
			mode = EXCLUDED.mode,
			players = EXCLUDED.players,
			encrypted_moves = EXCLUDED.encrypted_moves,
			has_played = EXCLUDED.has_played,
			decryption_state = EXCLUDED.decryption_state,
			request_id = EXCLUDED.request_id,
			clear_moves = EXCLUDED.clear_moves,
			result = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at
		WHERE games.updated_at <= EXCLUDED.updated_at`,
		s.Address, s.Owner, s.Mode, s.Players, s.EncryptedMoves, s.HasPlayed,
		s.DecryptionState, s.RequestID, s.ClearMoves, s.Result, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// GetByAddress loads the stored snapshot for address.
func (r *GameRepository) GetByAddress(ctx context.Context, address string) (*domain.GameSnapshot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE address = $1`, address)
	s, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	return s, err
}

// ListByPlayer returns the games address took part in or owns, newest first.
func (r *GameRepository) ListByPlayer(ctx context.Context, address string, limit int) ([]*domain.GameSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+gameColumns+`
		FROM games
		WHERE owner = $1 OR $1 = ANY(players)
		ORDER BY created_at DESC
		LIMIT $2`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.GameSnapshot
	for rows.Next() {
		s, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func scanGame(row pgx.Row) (*domain.GameSnapshot, error) {
	var s domain.GameSnapshot
	err := row.Scan(&s.Address, &s.Owner, &s.Mode, &s.Players, &s.EncryptedMoves, &s.HasPlayed,
		&s.DecryptionState, &s.RequestID, &s.ClearMoves, &s.Result, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
