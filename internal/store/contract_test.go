package store

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/mentor-labs/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRepositoryContract exercises the behaviour every Repository must share.
func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load missing returns nil", func(t *testing.T) {
		s, err := repo.Load(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("Save and Load", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		s := domain.NewSession("contract-save", domain.ModeInterview, now)
		s.History = domain.History{
			domain.SystemTurn("seed"),
			domain.UserTurn("hi"),
			domain.AssistantTurn(`{"structured":true}`),
		}
		s.Progress = domain.Progress{IntroDone: true, TestsDone: 2, Phase: domain.PhaseTesting}
		s.Personas[domain.LabelCTO] = domain.History{domain.SystemTurn("cto"), domain.AssistantTurn("**CTO:** ok")}

		require.NoError(t, repo.Save(ctx, s))

		got, err := repo.Load(ctx, "contract-save")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.ThreadID, got.ThreadID)
		assert.Equal(t, s.Mode, got.Mode)
		assert.Equal(t, s.History, got.History)
		assert.Equal(t, s.Progress, got.Progress)
		assert.Equal(t, s.Personas, got.Personas)
		assert.Equal(t, now.UnixMilli(), got.UpdatedAt.UnixMilli())
	})

	t.Run("Save overwrites snapshot", func(t *testing.T) {
		s := domain.NewSession("contract-overwrite", domain.ModeRouter, time.Now())
		s.History = domain.History{domain.SystemTurn("seed"), domain.UserTurn("one")}
		require.NoError(t, repo.Save(ctx, s))

		s.History = s.History.Append(domain.AssistantTurn("two"))
		require.NoError(t, repo.Save(ctx, s))

		got, err := repo.Load(ctx, "contract-overwrite")
		require.NoError(t, err)
		assert.Len(t, got.History, 3)
	})

	t.Run("Caller mutation does not leak", func(t *testing.T) {
		s := domain.NewSession("contract-isolation", domain.ModeRouter, time.Now())
		s.History = domain.History{domain.UserTurn("original")}
		require.NoError(t, repo.Save(ctx, s))

		s.History[0].Content = "mutated"

		got, err := repo.Load(ctx, "contract-isolation")
		require.NoError(t, err)
		assert.Equal(t, "original", got.History[0].Content)
	})

	t.Run("Delete and List", func(t *testing.T) {
		for _, id := range []string{"contract-list-1", "contract-list-2"} {
			require.NoError(t, repo.Save(ctx, domain.NewSession(id, domain.ModeRouter, time.Now())))
		}

		ids, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, "contract-list-1")
		assert.Contains(t, ids, "contract-list-2")

		require.NoError(t, repo.Delete(ctx, "contract-list-1"))
		require.NoError(t, repo.Delete(ctx, "contract-list-1"), "deleting twice is not an error")

		got, err := repo.Load(ctx, "contract-list-1")
		require.NoError(t, err)
		assert.Nil(t, got)

		ids, err = repo.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, "contract-list-1")
	})

	t.Run("CleanupExpired", func(t *testing.T) {
		old := domain.NewSession("contract-old", domain.ModeRouter, time.Now().Add(-2*time.Hour))
		fresh := domain.NewSession("contract-fresh", domain.ModeRouter, time.Now())
		require.NoError(t, repo.Save(ctx, old))
		require.NoError(t, repo.Save(ctx, fresh))

		deleted, err := repo.CleanupExpired(ctx, time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))

		got, err := repo.Load(ctx, "contract-old")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = repo.Load(ctx, "contract-fresh")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}
