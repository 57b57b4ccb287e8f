// Package chunk slices a job's source file into persisted partitions.
//
// Structured sources (json, csv, tsv, xlsx) are sliced into consecutive
// groups of chunk_size records; text sources (txt, md, html, xml, pdf) are
// split by a recursive character splitter honoring chunk_overlap. Every
// chunk's payload is persisted to the payload store and one partition
// record is created per chunk.
package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/storage"
	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker turns job sources into persisted partitions.
type Chunker struct {
	payloads   storage.PayloadStore
	partitions storage.PartitionRepository
	logger     *slog.Logger
}

// NewChunker creates a Chunker writing through the given stores.
func NewChunker(payloads storage.PayloadStore, partitions storage.PartitionRepository) *Chunker {
	return &Chunker{
		payloads:   payloads,
		partitions: partitions,
		logger:     slog.Default().With("component", "chunker"),
	}
}

// Payload is one chunk ready for persistence.
type Payload struct {
	Document    *storage.PayloadDocument
	RecordCount int
}

// Split slices raw source bytes into chunk payloads.
// Structured formats produce exactly ceil(records/size) chunks.
func Split(format Format, data []byte, size, overlap int) ([]Payload, error) {
	if size <= 0 {
		return nil, core.ErrInvalidChunkSize
	}

	switch format {
	case FormatJSON:
		records, err := readJSONRecords(data)
		if err != nil {
			return nil, err
		}
		return sliceRecords(records, size), nil
	case FormatCSV:
		records, err := readDelimitedRecords(data, ',')
		if err != nil {
			return nil, err
		}
		return sliceRecords(records, size), nil
	case FormatTSV:
		records, err := readDelimitedRecords(data, '\t')
		if err != nil {
			return nil, err
		}
		return sliceRecords(records, size), nil
	case FormatXLSX:
		records, err := readXLSXRecords(data)
		if err != nil {
			return nil, err
		}
		return sliceRecords(records, size), nil
	case FormatText:
		return splitText(string(data), size, overlap)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// sliceRecords groups records into consecutive chunks of size.
func sliceRecords(records []json.RawMessage, size int) []Payload {
	total := (len(records) + size - 1) / size
	payloads := make([]Payload, 0, total)

	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		group := records[start:end]
		payloads = append(payloads, Payload{
			Document:    storage.NewRecordPayload(group, nil),
			RecordCount: len(group),
		})
	}
	return payloads
}

// splitText splits text with a sliding character window.
func splitText(text string, size, overlap int) ([]Payload, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)

	pieces, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	payloads := make([]Payload, 0, len(pieces))
	for _, piece := range pieces {
		doc, err := storage.NewTextPayload(piece, nil)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, Payload{Document: doc, RecordCount: 1})
	}
	return payloads, nil
}

// CreatePartitions reads the job's source, splits it, persists every chunk
// payload and records one partition per chunk. Payload writes happen before
// partition writes, so a failure mid-way leaves prior chunks intact and no
// partition without its payload.
func (c *Chunker) CreatePartitions(ctx context.Context, job *core.Job) ([]*core.Partition, error) {
	format := DetectFormat(job.Source)
	if format == FormatUnknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, job.Source)
	}

	data, err := os.ReadFile(job.Source)
	if err != nil {
		return nil, err
	}

	payloads, err := Split(format, data, job.ChunkSize, job.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	c.logger.Info("chunked source",
		"job_id", job.Id,
		"source", job.Source,
		"chunks", len(payloads))

	total := len(payloads)
	partitions := make([]*core.Partition, 0, total)
	for i, payload := range payloads {
		if payload.Document.Metadata == nil {
			payload.Document.Metadata = map[string]any{}
		}
		payload.Document.Metadata["chunk_number"] = i
		payload.Document.Metadata["total_chunks"] = total
		payload.Document.Metadata[storage.MetaTotalRecords] = payload.RecordCount

		ref, err := c.payloads.PutPayload(ctx, payload.Document)
		if err != nil {
			return partitions, err
		}

		created, err := c.partitions.AddPartitions(ctx, &core.Partition{
			JobId:       job.Id,
			InputRef:    ref,
			ChunkNumber: i,
			TotalChunks: total,
			RecordCount: payload.RecordCount,
		})
		if err != nil {
			return partitions, err
		}
		partitions = append(partitions, created[0])
	}
	return partitions, nil
}

// CreatePartitionsFromRecords persists pre-split record batches as
// partitions. Used when chaining enrichment output into an ingestion job.
func (c *Chunker) CreatePartitionsFromRecords(ctx context.Context, job *core.Job, records []json.RawMessage) ([]*core.Partition, error) {
	if job.ChunkSize <= 0 {
		return nil, core.ErrInvalidChunkSize
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	payloads := sliceRecords(records, job.ChunkSize)

	total := len(payloads)
	partitions := make([]*core.Partition, 0, total)
	for i, payload := range payloads {
		payload.Document.Metadata = map[string]any{
			"chunk_number":           i,
			"total_chunks":           total,
			storage.MetaTotalRecords: payload.RecordCount,
		}

		ref, err := c.payloads.PutPayload(ctx, payload.Document)
		if err != nil {
			return partitions, err
		}

		created, err := c.partitions.AddPartitions(ctx, &core.Partition{
			JobId:       job.Id,
			InputRef:    ref,
			ChunkNumber: i,
			TotalChunks: total,
			RecordCount: payload.RecordCount,
		})
		if err != nil {
			return partitions, err
		}
		partitions = append(partitions, created[0])
	}
	return partitions, nil
}
