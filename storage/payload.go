package storage

import (
	"encoding/json"
)

// Payload metadata keys written by the enrichment pipeline.
const (
	MetaTotalRecords      = "total_records"
	MetaSuccessfulRecords = "successful_records"
	MetaFailedRecords     = "failed_records"
)

// PayloadDocument is the persisted shape of a partition payload:
// {"data": [...], "metadata": {...}}. Tabular sources store one element
// per record; text sources store a single JSON string element.
type PayloadDocument struct {
	Data     []json.RawMessage `json:"data"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// NewTextPayload wraps a text chunk in the payload document shape.
func NewTextPayload(text string, metadata map[string]any) (*PayloadDocument, error) {
	encoded, err := json.Marshal(text)
	if err != nil {
		return nil, err
	}
	return &PayloadDocument{
		Data:     []json.RawMessage{encoded},
		Metadata: metadata,
	}, nil
}

// NewRecordPayload wraps tabular records in the payload document shape.
func NewRecordPayload(records []json.RawMessage, metadata map[string]any) *PayloadDocument {
	return &PayloadDocument{
		Data:     records,
		Metadata: metadata,
	}
}

// Text returns the payload's single text element. Returns "" when the
// payload does not hold exactly one JSON string.
func (d *PayloadDocument) Text() string {
	if len(d.Data) != 1 {
		return ""
	}
	var text string
	if err := json.Unmarshal(d.Data[0], &text); err != nil {
		return ""
	}
	return text
}

// MarshalPayload serializes a payload document to its canonical JSON form.
func MarshalPayload(doc *PayloadDocument) ([]byte, error) {
	return json.Marshal(doc)
}

// UnmarshalPayload deserializes a payload document from JSON.
func UnmarshalPayload(data []byte) (*PayloadDocument, error) {
	var doc PayloadDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
