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


package storage

import (
	"time"

	mus "github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/graphmill/core"
)

// Serializers for persisted record types. The job and partition records
// embed variable-shape state (pipeline stages, four error ledgers,
// metadata maps), so the serializers are composed by hand from mus-go
// primitives rather than generated.
var (
	IDMUS        = idSer{}
	JobMUS       = jobSer{}
	PartitionMUS = partitionSer{}
)

var (
	_ mus.Serializer[core.ID]        = IDMUS
	_ mus.Serializer[core.Job]       = JobMUS
	_ mus.Serializer[core.Partition] = PartitionMUS
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, IDMUS.Size(id))
	IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := IDMUS.Unmarshal(data)
	return id, err
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *core.Job) []byte {
	buf := make([]byte, JobMUS.Size(*job))
	JobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	job, _, err := JobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarshalPartition serializes a Partition to bytes.
func MarshalPartition(partition *core.Partition) []byte {
	buf := make([]byte, PartitionMUS.Size(*partition))
	PartitionMUS.Marshal(*partition, buf)
	return buf
}

// UnmarshalPartition deserializes a Partition from bytes.
func UnmarshalPartition(data []byte) (*core.Partition, error) {
	partition, _, err := PartitionMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &partition, nil
}

// marshalSlice writes a length-prefixed sequence of items.
func marshalSlice[T any](ser mus.Serializer[T], items []T, bs []byte) (n int) {
	n = varint.Int.Marshal(len(items), bs)
	for i := range items {
		n += ser.Marshal(items[i], bs[n:])
	}
	return
}

func unmarshalSlice[T any](ser mus.Serializer[T], bs []byte) (items []T, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		err = ErrTruncatedData
		return
	}
	var n1 int
	for i := 0; i < length; i++ {
		var item T
		item, n1, err = ser.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		items = append(items, item)
	}
	return
}

func sizeSlice[T any](ser mus.Serializer[T], items []T) (size int) {
	size = varint.Int.Size(len(items))
	for i := range items {
		size += ser.Size(items[i])
	}
	return
}

// idSer serializes core.ID as a varint.
type idSer struct{}

func (idSer) Marshal(id core.ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idSer) Unmarshal(bs []byte) (core.ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return core.ID(v), n, err
}

func (idSer) Size(id core.ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idSer) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// timeSer serializes time.Time as a presence flag plus unix microseconds.
// The flag keeps zero times round-trippable.
type timeSer struct{}

var timeMUS = timeSer{}

func (timeSer) Marshal(t time.Time, bs []byte) (n int) {
	n = ord.Bool.Marshal(!t.IsZero(), bs)
	if !t.IsZero() {
		n += varint.Int64.Marshal(t.UnixMicro(), bs[n:])
	}
	return
}

func (timeSer) Unmarshal(bs []byte) (t time.Time, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	v, n1, err := varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	t = time.UnixMicro(v).UTC()
	return
}

func (timeSer) Size(t time.Time) (size int) {
	size = ord.Bool.Size(!t.IsZero())
	if !t.IsZero() {
		size += varint.Int64.Size(t.UnixMicro())
	}
	return
}

func (s timeSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// stringMapSer serializes map[string]string deterministically enough for
// storage (order is not significant on read).
type stringMapSer struct{}

var stringMapMUS = stringMapSer{}

func (stringMapSer) Marshal(m map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return
}

func (stringMapSer) Unmarshal(bs []byte) (m map[string]string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length == 0 {
		return
	}
	m = make(map[string]string, length)
	var k, v string
	var n1 int
	for i := 0; i < length; i++ {
		k, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		v, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		m[k] = v
	}
	return
}

func (stringMapSer) Size(m map[string]string) (size int) {
	size = varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	return
}

func (s stringMapSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// stageSer serializes one pipeline stage.
type stageSer struct{}

var stageMUS = stageSer{}

func (stageSer) Marshal(stage core.Stage, bs []byte) (n int) {
	n = ord.String.Marshal(string(stage.Name), bs)
	n += ord.String.Marshal(string(stage.Status), bs[n:])
	n += timeMUS.Marshal(stage.StartedAt, bs[n:])
	n += timeMUS.Marshal(stage.EndedAt, bs[n:])
	return
}

func (stageSer) Unmarshal(bs []byte) (stage core.Stage, n int, err error) {
	var s string
	var n1 int
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	stage.Name = core.StageName(s)
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	stage.Status = core.StageStatus(s)
	stage.StartedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	stage.EndedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (stageSer) Size(stage core.Stage) int {
	return ord.String.Size(string(stage.Name)) +
		ord.String.Size(string(stage.Status)) +
		timeMUS.Size(stage.StartedAt) +
		timeMUS.Size(stage.EndedAt)
}

func (s stageSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// propertySer serializes one schema property.
type propertySer struct{}

var propertyMUS = propertySer{}

func (propertySer) Marshal(p core.PropertySpec, bs []byte) (n int) {
	n = ord.String.Marshal(p.Name, bs)
	n += ord.String.Marshal(p.Type, bs[n:])
	return
}

func (propertySer) Unmarshal(bs []byte) (p core.PropertySpec, n int, err error) {
	var n1 int
	p.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	p.Type, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (propertySer) Size(p core.PropertySpec) int {
	return ord.String.Size(p.Name) + ord.String.Size(p.Type)
}

func (s propertySer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// labelSer serializes one node label with its properties.
type labelSer struct{}

var labelMUS = labelSer{}

func (labelSer) Marshal(l core.NodeLabel, bs []byte) (n int) {
	n = ord.String.Marshal(l.Name, bs)
	n += marshalSlice(propertyMUS, l.Properties, bs[n:])
	return
}

func (labelSer) Unmarshal(bs []byte) (l core.NodeLabel, n int, err error) {
	var n1 int
	l.Name, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	l.Properties, n1, err = unmarshalSlice(propertyMUS, bs[n:])
	n += n1
	return
}

func (labelSer) Size(l core.NodeLabel) int {
	return ord.String.Size(l.Name) + sizeSlice(propertyMUS, l.Properties)
}

func (s labelSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// relationshipSer serializes one relationship spec.
type relationshipSer struct{}

var relationshipMUS = relationshipSer{}

func (relationshipSer) Marshal(r core.RelationshipSpec, bs []byte) (n int) {
	n = ord.String.Marshal(r.Type, bs)
	n += ord.String.Marshal(r.From, bs[n:])
	n += ord.String.Marshal(r.To, bs[n:])
	return
}

func (relationshipSer) Unmarshal(bs []byte) (r core.RelationshipSpec, n int, err error) {
	var n1 int
	r.Type, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	r.From, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.To, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (relationshipSer) Size(r core.RelationshipSpec) int {
	return ord.String.Size(r.Type) + ord.String.Size(r.From) + ord.String.Size(r.To)
}

func (s relationshipSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// schemaSer serializes a schema.
type schemaSer struct{}

var schemaMUS = schemaSer{}

func (schemaSer) Marshal(schema core.Schema, bs []byte) (n int) {
	n = marshalSlice(labelMUS, schema.Labels, bs)
	n += marshalSlice(relationshipMUS, schema.Relationships, bs[n:])
	n += ord.String.Marshal(schema.Raw, bs[n:])
	n += ord.String.Marshal(string(schema.Origin), bs[n:])
	return
}

func (schemaSer) Unmarshal(bs []byte) (schema core.Schema, n int, err error) {
	var n1 int
	schema.Labels, n, err = unmarshalSlice(labelMUS, bs)
	if err != nil {
		return
	}
	schema.Relationships, n1, err = unmarshalSlice(relationshipMUS, bs[n:])
	n += n1
	if err != nil {
		return
	}
	schema.Raw, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var origin string
	origin, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	schema.Origin = core.SchemaOrigin(origin)
	return
}

func (schemaSer) Size(schema core.Schema) int {
	return sizeSlice(labelMUS, schema.Labels) +
		sizeSlice(relationshipMUS, schema.Relationships) +
		ord.String.Size(schema.Raw) +
		ord.String.Size(string(schema.Origin))
}

func (s schemaSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// pipelineStateSer serializes the stage machine plus the cached schema.
type pipelineStateSer struct{}

var pipelineStateMUS = pipelineStateSer{}

func (pipelineStateSer) Marshal(state core.PipelineState, bs []byte) (n int) {
	n = marshalSlice(stageMUS, state.Stages, bs)
	n += varint.Int.Marshal(state.Current, bs[n:])
	n += ord.Bool.Marshal(state.Schema != nil, bs[n:])
	if state.Schema != nil {
		n += schemaMUS.Marshal(*state.Schema, bs[n:])
	}
	return
}

func (pipelineStateSer) Unmarshal(bs []byte) (state core.PipelineState, n int, err error) {
	var n1 int
	state.Stages, n, err = unmarshalSlice(stageMUS, bs)
	if err != nil {
		return
	}
	state.Current, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var hasSchema bool
	hasSchema, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil || !hasSchema {
		return
	}
	var schema core.Schema
	schema, n1, err = schemaMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	state.Schema = &schema
	return
}

func (pipelineStateSer) Size(state core.PipelineState) (size int) {
	size = sizeSlice(stageMUS, state.Stages) +
		varint.Int.Size(state.Current) +
		ord.Bool.Size(state.Schema != nil)
	if state.Schema != nil {
		size += schemaMUS.Size(*state.Schema)
	}
	return
}

func (s pipelineStateSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// Error ledger entry serializers.

type pipelineErrSer struct{}

var pipelineErrMUS = pipelineErrSer{}

func (pipelineErrSer) Marshal(e core.PipelineError, bs []byte) (n int) {
	n = ord.String.Marshal(string(e.Stage), bs)
	n += ord.String.Marshal(e.Message, bs[n:])
	n += ord.Bool.Marshal(e.Fatal, bs[n:])
	n += timeMUS.Marshal(e.OccurredAt, bs[n:])
	return
}

func (pipelineErrSer) Unmarshal(bs []byte) (e core.PipelineError, n int, err error) {
	var s string
	var n1 int
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	e.Stage = core.StageName(s)
	e.Message, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.Fatal, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.OccurredAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (pipelineErrSer) Size(e core.PipelineError) int {
	return ord.String.Size(string(e.Stage)) +
		ord.String.Size(e.Message) +
		ord.Bool.Size(e.Fatal) +
		timeMUS.Size(e.OccurredAt)
}

func (s pipelineErrSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type schemaErrSer struct{}

var schemaErrMUS = schemaErrSer{}

func (schemaErrSer) Marshal(e core.SchemaError, bs []byte) (n int) {
	n = ord.String.Marshal(string(e.Kind), bs)
	n += ord.String.Marshal(e.Message, bs[n:])
	n += timeMUS.Marshal(e.OccurredAt, bs[n:])
	return
}

func (schemaErrSer) Unmarshal(bs []byte) (e core.SchemaError, n int, err error) {
	var s string
	var n1 int
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	e.Kind = core.SchemaErrorKind(s)
	e.Message, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.OccurredAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (schemaErrSer) Size(e core.SchemaError) int {
	return ord.String.Size(string(e.Kind)) +
		ord.String.Size(e.Message) +
		timeMUS.Size(e.OccurredAt)
}

func (s schemaErrSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type destErrSer struct{}

var destErrMUS = destErrSer{}

func (destErrSer) Marshal(e core.DestinationError, bs []byte) (n int) {
	n = ord.String.Marshal(string(e.Kind), bs)
	n += ord.String.Marshal(e.Message, bs[n:])
	n += ord.String.Marshal(e.Statement, bs[n:])
	n += timeMUS.Marshal(e.OccurredAt, bs[n:])
	return
}

func (destErrSer) Unmarshal(bs []byte) (e core.DestinationError, n int, err error) {
	var s string
	var n1 int
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	e.Kind = core.DestinationErrorKind(s)
	e.Message, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.Statement, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.OccurredAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (destErrSer) Size(e core.DestinationError) int {
	return ord.String.Size(string(e.Kind)) +
		ord.String.Size(e.Message) +
		ord.String.Size(e.Statement) +
		timeMUS.Size(e.OccurredAt)
}

func (s destErrSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type validationErrSer struct{}

var validationErrMUS = validationErrSer{}

func (validationErrSer) Marshal(e core.ValidationError, bs []byte) (n int) {
	n = ord.String.Marshal(string(e.Kind), bs)
	n += ord.String.Marshal(e.Field, bs[n:])
	n += ord.String.Marshal(e.Expected, bs[n:])
	n += ord.String.Marshal(e.Actual, bs[n:])
	n += ord.String.Marshal(e.Message, bs[n:])
	n += timeMUS.Marshal(e.OccurredAt, bs[n:])
	return
}

func (validationErrSer) Unmarshal(bs []byte) (e core.ValidationError, n int, err error) {
	var s string
	var n1 int
	s, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	e.Kind = core.ValidationErrorKind(s)
	for _, field := range []*string{&e.Field, &e.Expected, &e.Actual, &e.Message} {
		*field, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	e.OccurredAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (validationErrSer) Size(e core.ValidationError) int {
	return ord.String.Size(string(e.Kind)) +
		ord.String.Size(e.Field) +
		ord.String.Size(e.Expected) +
		ord.String.Size(e.Actual) +
		ord.String.Size(e.Message) +
		timeMUS.Size(e.OccurredAt)
}

func (s validationErrSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// errorStateSer serializes the four ledgers and their counters.
type errorStateSer struct{}

var errorStateMUS = errorStateSer{}

func (errorStateSer) Marshal(state core.ErrorState, bs []byte) (n int) {
	n = marshalSlice(pipelineErrMUS, state.Pipeline, bs)
	n += marshalSlice(schemaErrMUS, state.Schema, bs[n:])
	n += marshalSlice(destErrMUS, state.Destination, bs[n:])
	n += marshalSlice(validationErrMUS, state.Validation, bs[n:])
	n += varint.Int.Marshal(state.FatalCount, bs[n:])
	return
}

func (errorStateSer) Unmarshal(bs []byte) (state core.ErrorState, n int, err error) {
	var n1 int
	state.Pipeline, n, err = unmarshalSlice(pipelineErrMUS, bs)
	if err != nil {
		return
	}
	state.Schema, n1, err = unmarshalSlice(schemaErrMUS, bs[n:])
	n += n1
	if err != nil {
		return
	}
	state.Destination, n1, err = unmarshalSlice(destErrMUS, bs[n:])
	n += n1
	if err != nil {
		return
	}
	state.Validation, n1, err = unmarshalSlice(validationErrMUS, bs[n:])
	n += n1
	if err != nil {
		return
	}
	state.FatalCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	// Counters are derived from ledger lengths so the invariant holds
	// even if a ledger was written by an older version.
	state.PipelineCount = len(state.Pipeline)
	state.SchemaCount = len(state.Schema)
	state.DestinationCount = len(state.Destination)
	state.ValidationCount = len(state.Validation)
	return
}

func (errorStateSer) Size(state core.ErrorState) int {
	return sizeSlice(pipelineErrMUS, state.Pipeline) +
		sizeSlice(schemaErrMUS, state.Schema) +
		sizeSlice(destErrMUS, state.Destination) +
		sizeSlice(validationErrMUS, state.Validation) +
		varint.Int.Size(state.FatalCount)
}

func (s errorStateSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// jobSer serializes a Job record.
type jobSer struct{}

func (jobSer) Marshal(job core.Job, bs []byte) (n int) {
	n = IDMUS.Marshal(job.Id, bs)
	n += varint.Int.Marshal(int(job.Kind), bs[n:])
	n += ord.String.Marshal(job.TenantID, bs[n:])
	n += ord.String.Marshal(job.Source, bs[n:])
	n += ord.String.Marshal(job.Destination, bs[n:])
	n += ord.String.Marshal(job.PromptName, bs[n:])
	n += ord.String.Marshal(job.SchemaPrompt, bs[n:])
	n += varint.Int.Marshal(job.ChunkSize, bs[n:])
	n += varint.Int.Marshal(job.ChunkOverlap, bs[n:])
	n += ord.String.Marshal(string(job.Status), bs[n:])
	n += varint.Int.Marshal(job.CompletionPercentage, bs[n:])
	n += timeMUS.Marshal(job.ExecutionStart, bs[n:])
	n += timeMUS.Marshal(job.ExecutionEnd, bs[n:])
	n += pipelineStateMUS.Marshal(job.Pipeline, bs[n:])
	n += errorStateMUS.Marshal(job.Errors, bs[n:])
	n += stringMapMUS.Marshal(job.Metadata, bs[n:])
	n += timeMUS.Marshal(job.InsertedAt, bs[n:])
	n += timeMUS.Marshal(job.UpdatedAt, bs[n:])
	return
}

func (jobSer) Unmarshal(bs []byte) (job core.Job, n int, err error) {
	var n1, kind int
	var s string
	job.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	kind, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.Kind = core.JobKind(kind)
	for _, field := range []*string{&job.TenantID, &job.Source, &job.Destination, &job.PromptName, &job.SchemaPrompt} {
		*field, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	job.ChunkSize, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.ChunkOverlap, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.Status = core.JobStatus(s)
	job.CompletionPercentage, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.ExecutionStart, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.ExecutionEnd, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.Pipeline, n1, err = pipelineStateMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.Errors, n1, err = errorStateMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.Metadata, n1, err = stringMapMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.InsertedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	job.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (jobSer) Size(job core.Job) int {
	return IDMUS.Size(job.Id) +
		varint.Int.Size(int(job.Kind)) +
		ord.String.Size(job.TenantID) +
		ord.String.Size(job.Source) +
		ord.String.Size(job.Destination) +
		ord.String.Size(job.PromptName) +
		ord.String.Size(job.SchemaPrompt) +
		varint.Int.Size(job.ChunkSize) +
		varint.Int.Size(job.ChunkOverlap) +
		ord.String.Size(string(job.Status)) +
		varint.Int.Size(job.CompletionPercentage) +
		timeMUS.Size(job.ExecutionStart) +
		timeMUS.Size(job.ExecutionEnd) +
		pipelineStateMUS.Size(job.Pipeline) +
		errorStateMUS.Size(job.Errors) +
		stringMapMUS.Size(job.Metadata) +
		timeMUS.Size(job.InsertedAt) +
		timeMUS.Size(job.UpdatedAt)
}

func (s jobSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// partitionSer serializes a Partition record.
type partitionSer struct{}

func (partitionSer) Marshal(p core.Partition, bs []byte) (n int) {
	n = IDMUS.Marshal(p.Id, bs)
	n += IDMUS.Marshal(p.JobId, bs[n:])
	n += IDMUS.Marshal(p.InputRef, bs[n:])
	n += IDMUS.Marshal(p.OutputRef, bs[n:])
	n += ord.String.Marshal(string(p.Status), bs[n:])
	n += ord.String.Marshal(p.ErrorMessage, bs[n:])
	n += varint.Int.Marshal(p.ChunkNumber, bs[n:])
	n += varint.Int.Marshal(p.TotalChunks, bs[n:])
	n += varint.Int.Marshal(p.RecordCount, bs[n:])
	n += timeMUS.Marshal(p.ProcessedAt, bs[n:])
	n += timeMUS.Marshal(p.InsertedAt, bs[n:])
	n += timeMUS.Marshal(p.UpdatedAt, bs[n:])
	return
}

func (partitionSer) Unmarshal(bs []byte) (p core.Partition, n int, err error) {
	var n1 int
	var s string
	p.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	for _, id := range []*core.ID{&p.JobId, &p.InputRef, &p.OutputRef} {
		*id, n1, err = IDMUS.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	s, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	p.Status = core.PartitionStatus(s)
	p.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for _, field := range []*int{&p.ChunkNumber, &p.TotalChunks, &p.RecordCount} {
		*field, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	p.ProcessedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	p.InsertedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	p.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (partitionSer) Size(p core.Partition) int {
	return IDMUS.Size(p.Id) +
		IDMUS.Size(p.JobId) +
		IDMUS.Size(p.InputRef) +
		IDMUS.Size(p.OutputRef) +
		ord.String.Size(string(p.Status)) +
		ord.String.Size(p.ErrorMessage) +
		varint.Int.Size(p.ChunkNumber) +
		varint.Int.Size(p.TotalChunks) +
		varint.Int.Size(p.RecordCount) +
		timeMUS.Size(p.ProcessedAt) +
		timeMUS.Size(p.InsertedAt) +
		timeMUS.Size(p.UpdatedAt)
}

func (s partitionSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
