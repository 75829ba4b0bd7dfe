package integration

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"confidential_rps/internal/domain"
	"confidential_rps/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	applyMigrations(t, db)
	return db
}

func applyMigrations(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "migrations")
	files, err := os.ReadDir(migDir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".sql") {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(migDir, name))
		require.NoError(t, err)
		_, err = db.Exec(context.Background(), string(b))
		require.NoError(t, err, "apply migration %s", name)
	}
}

func TestGameRepository_SaveAndLoad(t *testing.T) {
	db := connect(t)
	repo := repository.NewGameRepository(db)
	ctx := context.Background()

	addr := "0x" + strings.Repeat("ab", 20)
	_, _ = db.Exec(ctx, `DELETE FROM games WHERE address = $1`, addr)

	now := time.Now().UTC().Truncate(time.Millisecond)
	s := &domain.GameSnapshot{
		Address:         addr,
		Owner:           "0x" + strings.Repeat("01", 20),
		Mode:            "multi_player",
		Players:         []string{"0x" + strings.Repeat("a1", 20), ""},
		EncryptedMoves:  []string{"", ""},
		HasPlayed:       []bool{false, false},
		DecryptionState: "not_requested",
		Result:          "undetermined",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, repo.Save(ctx, s))

	id := "5f0c7b4e-3d1a-4a4e-9a7e-0d6c9f2a1b11"
	s.DecryptionState = "completed"
	s.RequestID = &id
	s.ClearMoves = []int64{0, 1}
	s.Result = "player2_wins"
	s.UpdatedAt = now.Add(time.Second)
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.GetByAddress(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.DecryptionState)
	require.NotNil(t, got.RequestID)
	assert.Equal(t, id, *got.RequestID)
	assert.Equal(t, []int64{0, 1}, got.ClearMoves)
	assert.Equal(t, "player2_wins", got.Result)

	list, err := repo.ListByPlayer(ctx, s.Players[0], 10)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	_, err = repo.GetByAddress(ctx, "0x"+strings.Repeat("ff", 20))
	require.ErrorIs(t, err, repository.ErrGameNotFound)
}

func TestAuditRepository_CreateAndList(t *testing.T) {
	db := connect(t)
	repo := repository.NewAuditRepository(db)
	ctx := context.Background()

	game := "0x" + strings.Repeat("cd", 20)
	_, _ = db.Exec(ctx, `DELETE FROM audit_logs WHERE game = $1`, game)

	require.NoError(t, repo.Create(ctx, &domain.AuditLog{
		Principal: "0x" + strings.Repeat("01", 20),
		Game:      game,
		Action:    domain.AuditActionDeploy,
		Category:  domain.AuditCategoryGame,
	}))
	require.NoError(t, repo.Create(ctx, &domain.AuditLog{
		Principal: "0x" + strings.Repeat("a1", 20),
		Game:      game,
		Action:    domain.AuditActionJoin,
		Category:  domain.AuditCategoryGame,
		Details:   map[string]interface{}{"slot": 0},
	}))

	logs, err := repo.GetByGame(ctx, game, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.AuditActionDeploy, logs[0].Action)
	assert.Equal(t, float64(0), logs[1].Details["slot"])
}
