package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-crm/backend/pkg/models"
)

func TestTransitionStage(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	moved, err := svc.TransitionStage(ctx, lead.UID, "contacted", "intro call booked", "tester")
	require.NoError(t, err)

	assert.Equal(t, "contacted", moved.CurrentStage)
	assert.Equal(t, models.StatusInProgress, moved.Status)

	// History: old entry closed, new entry open.
	require.Len(t, moved.History, 2)
	assert.Equal(t, "new", moved.History[0].Stage)
	require.NotNil(t, moved.History[0].ExitedAt)
	assert.Equal(t, "contacted", moved.History[1].Stage)
	assert.Nil(t, moved.History[1].ExitedAt)

	// Only the active template instantiated.
	require.Len(t, moved.Tasks, 1)
	task := moved.Tasks[0]
	assert.Equal(t, "Log first call", task.Name)
	assert.Equal(t, "tmpl-call", task.TemplateID)
	assert.Equal(t, "contacted", task.Stage)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.True(t, task.Required)

	// Transition activity appended with stage names.
	last := moved.Activities[len(moved.Activities)-1]
	assert.Equal(t, models.ActivityStageChange, last.Type)
	assert.Equal(t, "Lead moved to Contacted", last.Subject)
	assert.Equal(t, "New", last.ActivityData["from_stage"])
	assert.Equal(t, "Contacted", last.ActivityData["to_stage"])
	assert.Equal(t, "intro call booked", last.ActivityData["comment"])
}

func TestTransitionStageNotAllowed(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	// new has no edge to qualified.
	_, err := svc.TransitionStage(ctx, lead.UID, "qualified", "", "tester")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransitionNotAllowed))

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "New", engineErr.FromStage)
	assert.Equal(t, "Qualified", engineErr.ToStage)

	// Nothing was written.
	got, err := svc.GetLead(ctx, lead.UID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.CurrentStage)
	assert.Len(t, got.History, 1)
	assert.Len(t, got.Activities, 1)
}

func TestTransitionStageBlockedByRequiredTasks(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	moved, err := svc.TransitionStage(ctx, lead.UID, "contacted", "", "tester")
	require.NoError(t, err)
	require.Len(t, moved.Tasks, 1)

	_, err = svc.TransitionStage(ctx, lead.UID, "qualified", "", "tester")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRequiredTasksIncomplete))

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, []string{"Log first call"}, engineErr.TaskNames)

	// Complete the blocking task, then the transition goes through.
	_, err = svc.CompleteTask(ctx, lead.UID, moved.Tasks[0].UID, []models.FieldValue{
		{Variable: "call_date", FieldType: models.FieldTypeDate, Value: "2026-08-20"},
	}, "spoke for 20 min", "tester")
	require.NoError(t, err)

	after, err := svc.TransitionStage(ctx, lead.UID, "qualified", "", "tester")
	require.NoError(t, err)
	assert.Equal(t, "qualified", after.CurrentStage)
}

func TestTransitionStageRequiredTasksBlockEveryEdge(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	// The required task picked up in contacted blocks every outgoing edge,
	// not just the forward one.
	_, err := svc.TransitionStage(ctx, lead.UID, "contacted", "", "tester")
	require.NoError(t, err)
	_, err = svc.TransitionStage(ctx, lead.UID, "qualified", "", "tester")
	assert.True(t, IsKind(err, KindRequiredTasksIncomplete))
	_, err = svc.TransitionStage(ctx, lead.UID, "rejected", "", "tester")
	assert.True(t, IsKind(err, KindRequiredTasksIncomplete))
}

func TestTransitionStageTargetMissing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	_, err := svc.TransitionStage(ctx, lead.UID, "nonexistent", "", "tester")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestTransitionStageLeadMissing(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.TransitionStage(context.Background(), "missing", "contacted", "", "tester")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestTransitionStageCurrentStageUnresolvable(t *testing.T) {
	svc, _, stages, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	require.NoError(t, stages.Delete(ctx, "new"))

	_, err := svc.TransitionStage(ctx, lead.UID, "contacted", "", "tester")
	assert.True(t, IsKind(err, KindInvalidState))
}

func TestTransitionStageCycle(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	_, err := svc.TransitionStage(ctx, lead.UID, "rejected", "not a fit", "tester")
	require.NoError(t, err)
	back, err := svc.TransitionStage(ctx, lead.UID, "new", "re-engaging", "tester")
	require.NoError(t, err)

	assert.Equal(t, "new", back.CurrentStage)
	// Both visits to new are recorded; only the last is open.
	require.Len(t, back.History, 3)
	assert.Equal(t, "new", back.History[0].Stage)
	assert.NotNil(t, back.History[0].ExitedAt)
	assert.Equal(t, "new", back.History[2].Stage)
	assert.Nil(t, back.History[2].ExitedAt)
}

func TestCompleteTask(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	moved, err := svc.TransitionStage(ctx, lead.UID, "contacted", "", "tester")
	require.NoError(t, err)
	taskUID := moved.Tasks[0].UID

	done, err := svc.CompleteTask(ctx, lead.UID, taskUID, []models.FieldValue{
		{Variable: "call_date", FieldType: models.FieldTypeDate, Value: "2026-08-20"},
	}, "good call", "tester")
	require.NoError(t, err)

	task := done.FindTask(taskUID)
	require.NotNil(t, task)
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, "tester", task.CompletedBy)
	assert.Equal(t, "good call", task.Notes)
	require.Len(t, task.FieldValues, 1)

	last := done.Activities[len(done.Activities)-1]
	assert.Equal(t, models.ActivityTaskCompleted, last.Type)
	assert.Equal(t, taskUID, last.ActivityData["task_uid"])
}

func TestCompleteTaskValidatesFieldValues(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	moved, err := svc.TransitionStage(ctx, lead.UID, "contacted", "", "tester")
	require.NoError(t, err)
	taskUID := moved.Tasks[0].UID

	// Structurally broken value rejected before any write.
	_, err = svc.CompleteTask(ctx, lead.UID, taskUID, []models.FieldValue{
		{Variable: "call_date", FieldType: "mystery", Value: "x"},
	}, "", "tester")
	assert.True(t, IsKind(err, KindValidation))

	// Value failing the task's own definition rejected too.
	_, err = svc.CompleteTask(ctx, lead.UID, taskUID, []models.FieldValue{
		{Variable: "call_date", FieldType: models.FieldTypeDate, Value: "not a date"},
	}, "", "tester")
	assert.True(t, IsKind(err, KindValidation))

	// The task is still pending after both failures.
	got, err := svc.GetLead(ctx, lead.UID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.FindTask(taskUID).Status)
}

func TestCompleteTaskNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	// Existing lead, unknown task.
	_, err := svc.CompleteTask(ctx, lead.UID, "ghost-task", nil, "", "tester")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
	assert.Contains(t, err.Error(), "task")

	// Unknown lead.
	_, err = svc.CompleteTask(ctx, "ghost-lead", "ghost-task", nil, "", "tester")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
	assert.Contains(t, err.Error(), "lead")
}

func TestCompleteTaskDoesNotTransition(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	lead := createTestLead(t, svc, "new")

	moved, err := svc.TransitionStage(ctx, lead.UID, "contacted", "", "tester")
	require.NoError(t, err)

	done, err := svc.CompleteTask(ctx, lead.UID, moved.Tasks[0].UID, nil, "", "tester")
	require.NoError(t, err)
	assert.Equal(t, "contacted", done.CurrentStage)
}
