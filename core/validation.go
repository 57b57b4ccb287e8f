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

import "fmt"

// ValidateJob validates a Job according to domain rules.
//
// Validation rules:
//   - Kind must be a known pipeline kind
//   - TenantID must not be empty
//   - Ingestion/enrichment jobs need a non-empty Source and ChunkSize > 0
//
// NOT validated (populated later by the engine):
//   - ID (0 is valid from database sequences)
//   - Status, Pipeline, Errors (initialized on submission)
func ValidateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}

	if err := ValidateJobKind(job.Kind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	if job.TenantID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyTenant)
	}

	if job.Kind == JobKindIngestion || job.Kind == JobKindEnrichment {
		if job.Source == "" {
			return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptySource)
		}
		if job.ChunkSize <= 0 {
			return fmt.Errorf("%w: %w", ErrInvalidJob, ErrInvalidChunkSize)
		}
	}

	return nil
}

// ValidatePartition validates a Partition according to domain rules.
func ValidatePartition(partition *Partition) error {
	if partition == nil {
		return fmt.Errorf("%w: partition is nil", ErrInvalidPartition)
	}

	if partition.JobId == 0 {
		return fmt.Errorf("%w: missing parent job id", ErrInvalidPartition)
	}

	if partition.InputRef == 0 {
		return fmt.Errorf("%w: missing input payload reference", ErrInvalidPartition)
	}

	if partition.TotalChunks <= 0 || partition.ChunkNumber < 0 || partition.ChunkNumber >= partition.TotalChunks {
		return fmt.Errorf("%w: chunk number %d out of range for %d chunks",
			ErrInvalidPartition, partition.ChunkNumber, partition.TotalChunks)
	}

	return nil
}

// ValidateJobKind validates that a JobKind has a valid value.
func ValidateJobKind(kind JobKind) error {
	if kind != JobKindIngestion && kind != JobKindEnrichment && kind != JobKindEmbedding {
		return fmt.Errorf("%w: value %d", ErrInvalidJobKind, kind)
	}
	return nil
}
