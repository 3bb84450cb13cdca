package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"lead-crm/backend/pkg/models"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return pool
}

func testLead(stage string) *models.WorkItem {
	now := time.Now().UTC().Truncate(time.Millisecond)
	uid := uuid.New().String()
	return &models.WorkItem{
		UID:          uid,
		ItemID:       "LEAD-202608-" + uid[:5],
		CurrentStage: stage,
		Status:       models.StatusPending,
		Name:         "Test Lead",
		Config:       "default",
		ConfigValues: []models.FieldValue{},
		History:      []models.HistoryData{{Stage: stage, EnteredAt: now}},
		Tasks:        []models.WorkItemTask{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresLeadStore(t *testing.T) {
	pool := setupPool(t)
	store := NewPostgresLeadStore(pool)
	ctx := context.Background()

	t.Run("Insert and Get", func(t *testing.T) {
		lead := testLead("new")
		require.NoError(t, store.Insert(ctx, lead))

		got, err := store.Get(ctx, lead.UID)
		require.NoError(t, err)
		assert.Equal(t, lead.UID, got.UID)
		assert.Equal(t, lead.ItemID, got.ItemID)
		assert.Equal(t, lead.CurrentStage, got.CurrentStage)
		require.Len(t, got.History, 1)
		assert.Equal(t, "new", got.History[0].Stage)
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-uid")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Duplicate item_id rejected", func(t *testing.T) {
		a := testLead("new")
		b := testLead("new")
		b.ItemID = a.ItemID
		require.NoError(t, store.Insert(ctx, a))
		assert.Error(t, store.Insert(ctx, b))
	})

	t.Run("List filters and counts", func(t *testing.T) {
		lead := testLead("qualified")
		lead.Config = "filter-config"
		require.NoError(t, store.Insert(ctx, lead))

		leads, total, err := store.List(ctx, LeadFilter{Config: "filter-config"}, 10, 0, "created_at", true)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, leads, 1)
		assert.Equal(t, lead.UID, leads[0].UID)

		// Unknown sort field falls back to created_at instead of erroring.
		_, _, err = store.List(ctx, LeadFilter{}, 10, 0, "doc; DROP TABLE leads", false)
		assert.NoError(t, err)
	})

	t.Run("Mutate applies compound update atomically", func(t *testing.T) {
		lead := testLead("new")
		require.NoError(t, store.Insert(ctx, lead))

		now := time.Now().UTC().Truncate(time.Millisecond)
		updated, err := store.Mutate(ctx, lead.UID, func(l *models.WorkItem) error {
			l.CloseHistory(now)
			l.OpenHistory("contacted", now)
			l.CurrentStage = "contacted"
			l.Status = models.StatusInProgress
			l.UpdatedAt = now
			l.AppendActivity(models.Activity{Type: models.ActivityStageChange, Subject: "moved", CreatedAt: now})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "contacted", updated.CurrentStage)

		got, err := store.Get(ctx, lead.UID)
		require.NoError(t, err)
		assert.Equal(t, "contacted", got.CurrentStage)
		assert.Equal(t, models.StatusInProgress, got.Status)
		require.Len(t, got.History, 2)
		assert.NotNil(t, got.History[0].ExitedAt)
		assert.Len(t, got.Activities, 1)

		// The extracted column was updated along with the document.
		count, err := store.CountByStage(ctx, "contacted")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, count, int64(1))
	})

	t.Run("Mutate error writes nothing", func(t *testing.T) {
		lead := testLead("new")
		require.NoError(t, store.Insert(ctx, lead))

		_, err := store.Mutate(ctx, lead.UID, func(l *models.WorkItem) error {
			l.CurrentStage = "should-not-persist"
			return assert.AnError
		})
		require.Error(t, err)

		got, err := store.Get(ctx, lead.UID)
		require.NoError(t, err)
		assert.Equal(t, "new", got.CurrentStage)
	})

	t.Run("Mutate missing lead", func(t *testing.T) {
		_, err := store.Mutate(ctx, "no-such-uid", func(l *models.WorkItem) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Concurrent mutations serialize", func(t *testing.T) {
		lead := testLead("new")
		require.NoError(t, store.Insert(ctx, lead))

		const n = 10
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Mutate(ctx, lead.UID, func(l *models.WorkItem) error {
					l.AppendActivity(models.Activity{Type: "NOTE_ADDED", Subject: "ping"})
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, lead.UID)
		require.NoError(t, err)
		assert.Len(t, got.Activities, n, "no mutation lost")
	})

	t.Run("NextSequence never repeats", func(t *testing.T) {
		const n = 20
		results := make(chan int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seq, err := store.NextSequence(ctx, "LEAD-202608")
				if assert.NoError(t, err) {
					results <- seq
				}
			}()
		}
		wg.Wait()
		close(results)

		seen := make(map[int64]bool, n)
		for seq := range results {
			assert.False(t, seen[seq], "sequence %d handed out twice", seq)
			seen[seq] = true
		}
		assert.Len(t, seen, n)

		// A different key has its own counter.
		seq, err := store.NextSequence(ctx, "LEAD-202609")
		require.NoError(t, err)
		assert.EqualValues(t, 1, seq)
	})

	t.Run("Delete", func(t *testing.T) {
		lead := testLead("new")
		require.NoError(t, store.Insert(ctx, lead))
		require.NoError(t, store.Delete(ctx, lead.UID))
		assert.ErrorIs(t, store.Delete(ctx, lead.UID), ErrNotFound)
	})
}

func TestPostgresStageStore(t *testing.T) {
	pool := setupPool(t)
	store := NewPostgresStageStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	stage := func(uid string, order int) *models.WorkStage {
		return &models.WorkStage{
			UID: uid, Config: "default", Name: uid, Slug: uid, Order: order,
			IsActive: true, AllowedNextStages: []string{}, StageTasks: []models.WorkStageTask{},
			CreatedAt: now, UpdatedAt: now,
		}
	}

	require.NoError(t, store.Insert(ctx, stage("new", 1)))
	require.NoError(t, store.Insert(ctx, stage("contacted", 2)))
	require.NoError(t, store.Insert(ctx, stage("qualified", 3)))

	t.Run("List ordered by position", func(t *testing.T) {
		stages, err := store.List(ctx, "default")
		require.NoError(t, err)
		require.Len(t, stages, 3)
		assert.Equal(t, "new", stages[0].UID)
		assert.Equal(t, "qualified", stages[2].UID)
	})

	t.Run("SetOrder moves a stage", func(t *testing.T) {
		require.NoError(t, store.SetOrder(ctx, "qualified", 0, time.Now().UTC()))

		stages, err := store.List(ctx, "default")
		require.NoError(t, err)
		assert.Equal(t, "qualified", stages[0].UID)

		got, err := store.Get(ctx, "qualified")
		require.NoError(t, err)
		assert.Equal(t, 0, got.Order, "doc column kept in sync")

		assert.ErrorIs(t, store.SetOrder(ctx, "ghost", 1, time.Now()), ErrNotFound)
	})

	t.Run("Update round-trips the document", func(t *testing.T) {
		got, err := store.Get(ctx, "new")
		require.NoError(t, err)
		got.Name = "Fresh"
		got.StageTasks = []models.WorkStageTask{{UID: "t1", Name: "Call", IsActive: true}}
		require.NoError(t, store.Update(ctx, got))

		again, err := store.Get(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, "Fresh", again.Name)
		require.Len(t, again.StageTasks, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "contacted"))
		_, err := store.Get(ctx, "contacted")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "contacted"), ErrNotFound)
	})
}

func TestPostgresConfigStore(t *testing.T) {
	pool := setupPool(t)
	store := NewPostgresConfigStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	config := &models.WorkItemConfig{
		UID: "default", WorkflowName: "Sales", IsActive: true,
		Variables: []models.FieldDefinition{
			{FieldKey: "deal_size", FieldType: models.FieldTypeInteger},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Insert(ctx, config))

	got, err := store.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "Sales", got.WorkflowName)
	require.Len(t, got.Variables, 1)
	assert.Equal(t, models.FieldTypeInteger, got.Variables[0].FieldType)

	got.WorkflowName = "Enterprise Sales"
	require.NoError(t, store.Update(ctx, got))

	configs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "Enterprise Sales", configs[0].WorkflowName)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, &models.WorkItemConfig{UID: "missing"}), ErrNotFound)
}
