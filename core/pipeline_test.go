package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineState(t *testing.T) {
	state := NewPipelineState()

	require.Len(t, state.Stages, len(StageOrder))
	for i, stage := range state.Stages {
		assert.Equal(t, StageOrder[i], stage.Name)
		assert.Equal(t, StagePending, stage.Status)
	}
	assert.Equal(t, StageInitialization, state.CurrentStage().Name)
}

func TestPipelineState_StartAndComplete(t *testing.T) {
	state := NewPipelineState()

	require.NoError(t, state.StartStage(StageInitialization))
	assert.Equal(t, StageInProgress, state.Stage(StageInitialization).Status)
	assert.False(t, state.Stage(StageInitialization).StartedAt.IsZero())

	require.NoError(t, state.CompleteStage(StageInitialization))
	assert.Equal(t, StageCompleted, state.Stage(StageInitialization).Status)
	assert.False(t, state.Stage(StageInitialization).EndedAt.IsZero())

	require.NoError(t, state.StartStage(StageChunking))
	assert.Equal(t, StageChunking, state.CurrentStage().Name)
}

func TestPipelineState_CompleteBeforeStart(t *testing.T) {
	state := NewPipelineState()

	err := state.CompleteStage(StageChunking)
	require.ErrorIs(t, err, ErrStageNotStarted)
	assert.Equal(t, StagePending, state.Stage(StageChunking).Status)
}

func TestPipelineState_NoBackwardsStart(t *testing.T) {
	state := NewPipelineState()

	require.NoError(t, state.StartStage(StageInitialization))
	require.NoError(t, state.CompleteStage(StageInitialization))
	require.NoError(t, state.StartStage(StageProcessing))

	err := state.StartStage(StageChunking)
	require.ErrorIs(t, err, ErrStageOrder)
}

func TestPipelineState_UnknownStage(t *testing.T) {
	state := NewPipelineState()
	require.ErrorIs(t, state.StartStage("bogus"), ErrUnknownStage)
	require.ErrorIs(t, state.CompleteStage("bogus"), ErrUnknownStage)
	require.ErrorIs(t, state.FailStage("bogus"), ErrUnknownStage)
}

func TestPipelineState_RetryFromStage(t *testing.T) {
	state := NewPipelineState()

	require.NoError(t, state.StartStage(StageInitialization))
	require.NoError(t, state.CompleteStage(StageInitialization))
	require.NoError(t, state.StartStage(StageChunking))
	require.NoError(t, state.FailStage(StageChunking))
	assert.True(t, state.Failed())

	require.NoError(t, state.RetryFromStage(StageChunking))
	assert.False(t, state.Failed())
	assert.Equal(t, StageChunking, state.CurrentStage().Name)
	assert.Equal(t, StagePending, state.Stage(StageChunking).Status)
	assert.Equal(t, StagePending, state.Stage(StageProcessing).Status)
	// Earlier stages are untouched
	assert.Equal(t, StageCompleted, state.Stage(StageInitialization).Status)
}

func TestPipelineState_Completed(t *testing.T) {
	state := NewPipelineState()
	assert.False(t, state.Completed())

	for _, name := range StageOrder {
		require.NoError(t, state.StartStage(name))
		require.NoError(t, state.CompleteStage(name))
	}
	assert.True(t, state.Completed())
}
