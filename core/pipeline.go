// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"time"
)

// StageName identifies a phase of a job's lifecycle.
type StageName string

const (
	StageInitialization   StageName = "initialization"
	StageChunking         StageName = "chunking"
	StageSchemaGeneration StageName = "schema_generation"
	StageProcessing       StageName = "processing"
	StageGraphCreation    StageName = "knowledge_graph_creation"
)

// StageOrder is the canonical ordering of pipeline stages.
var StageOrder = []StageName{
	StageInitialization,
	StageChunking,
	StageSchemaGeneration,
	StageProcessing,
	StageGraphCreation,
}

// StageStatus represents the state of a single pipeline stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// Stage is one named phase of a job's pipeline with its status and timestamps.
type Stage struct {
	Name      StageName
	Status    StageStatus
	StartedAt time.Time
	EndedAt   time.Time
}

// PipelineState is an ordered set of named stages. Exactly one stage is
// current at a time; the current stage only moves forward except on
// failure or explicit retry-from-stage.
type PipelineState struct {
	Stages  []Stage
	Current int
	// Schema is the resolved target schema, cached once per job.
	Schema *Schema
}

// NewPipelineState creates a pipeline state with all stages pending.
func NewPipelineState() PipelineState {
	stages := make([]Stage, len(StageOrder))
	for i, name := range StageOrder {
		stages[i] = Stage{Name: name, Status: StagePending}
	}
	return PipelineState{Stages: stages}
}

// stageIndex returns the index of the named stage or -1.
func (p *PipelineState) stageIndex(name StageName) int {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return i
		}
	}
	return -1
}

// Stage returns the named stage, or nil if unknown.
func (p *PipelineState) Stage(name StageName) *Stage {
	i := p.stageIndex(name)
	if i < 0 {
		return nil
	}
	return &p.Stages[i]
}

// CurrentStage returns the stage the pipeline is currently on.
func (p *PipelineState) CurrentStage() *Stage {
	if p.Current < 0 || p.Current >= len(p.Stages) {
		return nil
	}
	return &p.Stages[p.Current]
}

// StartStage marks the named stage in_progress and advances the current
// stage to it. A stage behind the current one cannot be started; use
// RetryFromStage to rewind after a failure.
func (p *PipelineState) StartStage(name StageName) error {
	i := p.stageIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	if i < p.Current {
		return fmt.Errorf("%w: %s is behind current stage %s", ErrStageOrder, name, p.Stages[p.Current].Name)
	}
	stage := &p.Stages[i]
	if stage.Status == StageCompleted {
		return fmt.Errorf("%w: %s already completed", ErrStageOrder, name)
	}
	stage.Status = StageInProgress
	stage.StartedAt = time.Now().UTC()
	stage.EndedAt = time.Time{}
	p.Current = i
	return nil
}

// CompleteStage marks the named stage completed. The stage must have been
// started: a stage cannot be completed before it was in_progress.
func (p *PipelineState) CompleteStage(name StageName) error {
	i := p.stageIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	stage := &p.Stages[i]
	if stage.Status != StageInProgress {
		return fmt.Errorf("%w: %s is %s", ErrStageNotStarted, name, stage.Status)
	}
	stage.Status = StageCompleted
	stage.EndedAt = time.Now().UTC()
	return nil
}

// FailStage marks the named stage failed.
func (p *PipelineState) FailStage(name StageName) error {
	i := p.stageIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	stage := &p.Stages[i]
	stage.Status = StageFailed
	if stage.StartedAt.IsZero() {
		stage.StartedAt = time.Now().UTC()
	}
	stage.EndedAt = time.Now().UTC()
	return nil
}

// RetryFromStage rewinds the pipeline so it can be re-run from the named
// stage: that stage and every later one revert to pending.
func (p *PipelineState) RetryFromStage(name StageName) error {
	i := p.stageIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	for j := i; j < len(p.Stages); j++ {
		p.Stages[j].Status = StagePending
		p.Stages[j].StartedAt = time.Time{}
		p.Stages[j].EndedAt = time.Time{}
	}
	p.Current = i
	return nil
}

// Completed reports whether every stage has completed.
func (p *PipelineState) Completed() bool {
	for i := range p.Stages {
		if p.Stages[i].Status != StageCompleted {
			return false
		}
	}
	return true
}

// Failed reports whether any stage has failed.
func (p *PipelineState) Failed() bool {
	for i := range p.Stages {
		if p.Stages[i].Status == StageFailed {
			return true
		}
	}
	return false
}
