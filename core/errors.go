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

import "errors"

// Domain validation errors
var (
	// ErrInvalidJob indicates a Job failed validation.
	ErrInvalidJob = errors.New("invalid job")

	// ErrInvalidPartition indicates a Partition failed validation.
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrInvalidJobKind indicates an invalid JobKind value.
	ErrInvalidJobKind = errors.New("invalid job kind")

	// ErrInvalidChunkSize indicates a chunk size of zero or less.
	ErrInvalidChunkSize = errors.New("chunk size must be greater than 0")

	// ErrEmptySource indicates the Source field is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrEmptyTenant indicates the TenantID field is empty.
	ErrEmptyTenant = errors.New("tenant id cannot be empty")

	// ErrUnknownStage indicates a stage name not present in the pipeline.
	ErrUnknownStage = errors.New("unknown pipeline stage")

	// ErrStageOrder indicates a stage transition that would move backwards.
	ErrStageOrder = errors.New("invalid stage transition")

	// ErrStageNotStarted indicates completing a stage that was never in progress.
	ErrStageNotStarted = errors.New("stage cannot complete before it is in progress")

	// ErrResetWhileProcessing indicates a reset attempted on an active job.
	ErrResetWhileProcessing = errors.New("job cannot be reset while processing")
)
