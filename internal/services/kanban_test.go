package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKanbanBoard(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a := createTestLead(t, svc, "new")
	b := createTestLead(t, svc, "new")
	c := createTestLead(t, svc, "contacted")

	board, err := svc.GetKanbanBoard(ctx, "")
	require.NoError(t, err)
	require.Len(t, board, 4)

	// Columns follow stage order.
	assert.Equal(t, "new", board[0].Stage.UID)
	assert.Equal(t, "contacted", board[1].Stage.UID)
	assert.Equal(t, "qualified", board[2].Stage.UID)
	assert.Equal(t, "rejected", board[3].Stage.UID)

	assert.Equal(t, 2, board[0].Count)
	uids := []string{board[0].Leads[0].UID, board[0].Leads[1].UID}
	assert.ElementsMatch(t, []string{a.UID, b.UID}, uids)

	assert.Equal(t, 1, board[1].Count)
	assert.Equal(t, c.UID, board[1].Leads[0].UID)

	// Empty stages still get a column.
	assert.Equal(t, 0, board[2].Count)
	assert.NotNil(t, board[2].Leads)
}

func TestGetKanbanBoardSkipsInactiveStages(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	inactive := false
	_, err := svc.UpdateStage(ctx, "rejected", StageUpdate{IsActive: &inactive})
	require.NoError(t, err)
	svc.boards.Wait()

	board, err := svc.GetKanbanBoard(ctx, "")
	require.NoError(t, err)
	require.Len(t, board, 3)
	for _, col := range board {
		assert.NotEqual(t, "rejected", col.Stage.UID)
	}
}

func TestGetKanbanBoardReflectsTransitions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	board, err := svc.GetKanbanBoard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, board[0].Count)

	_, err = svc.TransitionStage(ctx, lead.UID, "contacted", "", "tester")
	require.NoError(t, err)

	// The write invalidated the cached board. Cache writes are buffered, so
	// flush them before reading again.
	svc.boards.Wait()
	board, err = svc.GetKanbanBoard(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, board[0].Count)
	assert.Equal(t, 1, board[1].Count)
}

func TestGetKanbanBoardFiltersByConfig(t *testing.T) {
	svc, _, stages, _ := newTestService(t)
	ctx := context.Background()

	other, err := svc.CreateStage(ctx, CreateStageInput{Name: "Intake", Config: "support"})
	require.NoError(t, err)

	_, err = svc.CreateLead(ctx, CreateLeadInput{Name: "x", CurrentStage: other.UID, Config: "support"})
	require.NoError(t, err)
	createTestLead(t, svc, "new")

	board, err := svc.GetKanbanBoard(ctx, "support")
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, other.UID, board[0].Stage.UID)
	assert.Equal(t, 1, board[0].Count)

	all, err := stages.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
