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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/storage"
)

// PartitionRepository implements storage.PartitionRepository for BadgerDB.
//
// Claim relies on BadgerDB's serializable snapshot isolation: the claiming
// transaction reads the partition record and writes it back, so of two
// racing claimers exactly one commit succeeds and the other fails with
// ErrConflict. That conflict is reported as claim=false, never as an error.
type PartitionRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.PartitionRepository = (*PartitionRepository)(nil)

// NewPartitionRepository creates a new PartitionRepository.
func NewPartitionRepository(backend *Backend) (*PartitionRepository, error) {
	idSeq, err := backend.GetSequence(partitionIDSeq)
	if err != nil {
		return nil, err
	}

	return &PartitionRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *PartitionRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *PartitionRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddPartitions persists new partitions, assigning IDs from sequence.
func (r *PartitionRepository) AddPartitions(ctx context.Context, partitions ...*core.Partition) ([]*core.Partition, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, partition := range partitions {
			if partition.Id == 0 {
				nextID, err := r.idSeq.Next()
				if err != nil {
					return err
				}
				// BadgerDB sequences can return 0 on first call, so we skip it
				if nextID == 0 {
					nextID, err = r.idSeq.Next()
					if err != nil {
						return err
					}
				}
				partition.Id = core.ID(nextID)
			}

			if partition.Status == "" {
				partition.Status = core.PartitionStatusPending
			}
			if err := core.ValidatePartition(partition); err != nil {
				return err
			}

			partition.InsertedAt = time.Now().UTC()
			partition.UpdatedAt = partition.InsertedAt

			if err := tx.Set(makePartitionKey(partition.Id), storage.MarshalPartition(partition)); err != nil {
				return err
			}

			indexKey := makePartitionJobKey(partition.JobId, partition.ChunkNumber, partition.Id)
			if err := tx.Set(indexKey, storage.MarshalID(partition.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return partitions, err
}

// GetPartition retrieves a single partition by ID.
func (r *PartitionRepository) GetPartition(ctx context.Context, id core.ID) (*core.Partition, error) {
	var partition *core.Partition

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		partition, err = r.readPartition(tx, id)
		return err
	}, false)

	if err != nil {
		return nil, err
	}
	return partition, nil
}

// readPartition reads one partition inside a transaction.
func (r *PartitionRepository) readPartition(tx *badger.Txn, id core.ID) (*core.Partition, error) {
	item, err := tx.Get(makePartitionKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var partition *core.Partition
	err = item.Value(func(val []byte) error {
		partition, err = storage.UnmarshalPartition(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return partition, nil
}

// forEachPartition iterates a job's partitions in chunk order.
func (r *PartitionRepository) forEachPartition(tx *badger.Txn, jobID core.ID, fn func(p *core.Partition) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialPartitionJobKey(jobID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var id core.ID
		err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		})
		if err != nil {
			return err
		}

		partition, err := r.readPartition(tx, id)
		if err != nil {
			return err
		}

		cont, err := fn(partition)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// ListByJob retrieves a job's partitions in chunk order, optionally
// filtered by status and paginated.
func (r *PartitionRepository) ListByJob(ctx context.Context, jobID core.ID, status *core.PartitionStatus, offset, limit int) ([]*core.Partition, error) {
	if offset < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var partitions []*core.Partition
	skipped := 0

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachPartition(tx, jobID, func(p *core.Partition) (bool, error) {
			if status != nil && p.Status != *status {
				return true, nil
			}
			if skipped < offset {
				skipped++
				return true, nil
			}
			partitions = append(partitions, p)
			if limit > 0 && len(partitions) >= limit {
				return false, nil
			}
			return true, nil
		})
	}, false)

	if err != nil {
		return nil, err
	}
	return partitions, nil
}

// ListPending retrieves up to limit pending partitions in chunk order.
func (r *PartitionRepository) ListPending(ctx context.Context, jobID core.ID, limit int) ([]*core.Partition, error) {
	pending := core.PartitionStatusPending
	return r.ListByJob(ctx, jobID, &pending, 0, limit)
}

// Claim atomically transitions a partition from pending to processing.
// At most one caller ever observes true for a given partition.
func (r *PartitionRepository) Claim(ctx context.Context, id core.ID) (bool, error) {
	claimed := false

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		partition, err := r.readPartition(tx, id)
		if err != nil {
			return err
		}

		if partition.Status != core.PartitionStatusPending {
			return nil
		}

		partition.Status = core.PartitionStatusProcessing
		partition.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makePartitionKey(id), storage.MarshalPartition(partition)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		claimed = true
		return nil
	}, true)

	if err != nil {
		// A commit conflict means another worker claimed concurrently.
		if errors.Is(err, badger.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return claimed, nil
}

// UpdateStatus sets a partition's status with the associated bookkeeping.
func (r *PartitionRepository) UpdateStatus(ctx context.Context, id core.ID, status core.PartitionStatus, errorMessage string) (*core.Partition, error) {
	var updated *core.Partition

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		partition, err := r.readPartition(tx, id)
		if err != nil {
			return err
		}

		partition.Status = status
		partition.UpdatedAt = time.Now().UTC()
		switch {
		case status == core.PartitionStatusError:
			partition.ErrorMessage = errorMessage
			partition.ProcessedAt = time.Now().UTC()
		case status == core.PartitionStatusDone:
			partition.ErrorMessage = ""
			partition.ProcessedAt = time.Now().UTC()
		default:
			partition.ErrorMessage = ""
			partition.ProcessedAt = time.Time{}
		}

		if err := tx.Set(makePartitionKey(id), storage.MarshalPartition(partition)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		updated = partition
		return nil
	}, true)

	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AttachOutput records the payload reference of a partition's output.
func (r *PartitionRepository) AttachOutput(ctx context.Context, id core.ID, outputRef core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		partition, err := r.readPartition(tx, id)
		if err != nil {
			return err
		}

		partition.OutputRef = outputRef
		partition.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makePartitionKey(id), storage.MarshalPartition(partition)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// CountByStatus returns partition counts by status for a job.
func (r *PartitionRepository) CountByStatus(ctx context.Context, jobID core.ID) (storage.StatusCounts, error) {
	var counts storage.StatusCounts

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachPartition(tx, jobID, func(p *core.Partition) (bool, error) {
			switch p.Status {
			case core.PartitionStatusPending:
				counts.Pending++
			case core.PartitionStatusProcessing:
				counts.Processing++
			case core.PartitionStatusDone:
				counts.Done++
			case core.PartitionStatusError:
				counts.Error++
			}
			return true, nil
		})
	}, false)

	return counts, err
}

// ResetAll reverts every partition of a job to pending. Input payloads and
// chunk structure are preserved; outputs and error state are cleared.
func (r *PartitionRepository) ResetAll(ctx context.Context, jobID core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		err := r.forEachPartition(tx, jobID, func(p *core.Partition) (bool, error) {
			p.Status = core.PartitionStatusPending
			p.ErrorMessage = ""
			p.OutputRef = 0
			p.ProcessedAt = time.Time{}
			p.UpdatedAt = time.Now().UTC()
			return true, tx.Set(makePartitionKey(p.Id), storage.MarshalPartition(p))
		})
		if err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
