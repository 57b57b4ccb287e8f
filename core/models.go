package core

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from content using BLAKE2b hashing.
// Payload references use this so that identical partition payloads map to the
// same stored document.
func IDFromContent(data []byte) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// JobKind identifies which pipeline a job belongs to.
type JobKind int

const (
	// JobKindIngestion generates graph queries from raw documents and writes
	// them to the destination store.
	JobKindIngestion JobKind = iota + 1
	// JobKindEnrichment transforms tabular record batches through an LLM.
	JobKindEnrichment
	// JobKindEmbedding generates vector embeddings for destination nodes.
	JobKindEmbedding
)

// String returns the kind's wire name.
func (k JobKind) String() string {
	switch k {
	case JobKindIngestion:
		return "ingestion"
	case JobKindEnrichment:
		return "enrichment"
	case JobKindEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether the status is a terminal job state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// PartitionStatus represents the lifecycle state of a partition.
type PartitionStatus string

const (
	PartitionStatusPending    PartitionStatus = "pending"
	PartitionStatusProcessing PartitionStatus = "processing"
	PartitionStatusDone       PartitionStatus = "done"
	PartitionStatusError      PartitionStatus = "error"
)

// IsTerminal reports whether the status is a terminal partition state.
func (s PartitionStatus) IsTerminal() bool {
	return s == PartitionStatusDone || s == PartitionStatusError
}

// Job is the top-level unit of ingestion, enrichment or embedding work
// submitted by a tenant. A job owns its partitions; it is never deleted
// while partitions reference it.
type Job struct {
	Id           ID
	Kind         JobKind
	TenantID     string
	Source       string // Source file path (ingestion/enrichment)
	Destination  string // Destination graph database name
	PromptName   string // Named prompt template driving generation
	SchemaPrompt string // Optional "defined schema" prompt name
	ChunkSize    int
	ChunkOverlap int // Text formats only
	Status       JobStatus
	// CompletionPercentage is floor((done+error)/total*100), recomputed by
	// the progress aggregator on every partition status change.
	CompletionPercentage int
	ExecutionStart       time.Time
	ExecutionEnd         time.Time
	Pipeline             PipelineState
	Errors               ErrorState
	Metadata             map[string]string
	InsertedAt           time.Time
	UpdatedAt            time.Time
}

// Partition is an independently claimable, processable slice of a job's
// input. Mutated exclusively through the atomic-claim protocol; immutable
// once done/error except for explicit reset.
type Partition struct {
	Id           ID
	JobId        ID
	InputRef     ID // Payload store key of the partition input
	OutputRef    ID // Payload store key of the produced output, 0 until done
	Status       PartitionStatus
	ErrorMessage string
	ChunkNumber  int
	TotalChunks  int
	RecordCount  int // Items, rows or characters depending on source format
	ProcessedAt  time.Time
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// CompletionPercentage computes floor((done+error)/total*100) from partition
// status counts. Returns 0 when total is 0.
func CompletionPercentage(done, errored, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(done+errored) / float64(total) * 100.0))
}
