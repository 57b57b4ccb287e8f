package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/graphmill/core"
)

// Key prefixes for different data types
const (
	jobRecordPrefix       = "jobrec"
	jobIDSeq              = "jobrecseq"
	partitionRecordPrefix = "partrec"
	partitionJobPrefix    = "partrecj"
	partitionIDSeq        = "partrecseq"
	payloadRecordPrefix   = "paylrec"
)

// makeJobKey generates a key for a job record by ID.
func makeJobKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", jobRecordPrefix, id))
}

// makePartitionKey generates a key for a partition record by ID.
func makePartitionKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", partitionRecordPrefix, id))
}

// makePartitionJobKey generates a composite key for the job index.
// Format: prefix:jobID:chunkNumber:partitionID
func makePartitionJobKey(jobID core.ID, chunkNumber int, partitionID core.ID) []byte {
	prefix := partitionJobPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 24 // 8 bytes each for jobID, chunkNumber and partitionID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort follows chunk order
	binary.BigEndian.PutUint64(buf[offset:], uint64(jobID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkNumber))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(partitionID))
	return buf
}

// makePartialPartitionJobKey generates a partial key for scanning one job's
// partitions in chunk order.
func makePartialPartitionJobKey(jobID core.ID) []byte {
	prefix := partitionJobPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(jobID))
	return buf
}

// makePayloadKey generates a key for a payload document by content hash.
func makePayloadKey(ref core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", payloadRecordPrefix, ref))
}
