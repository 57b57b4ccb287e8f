package pipeline

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrPartitionRepositoryRequired is returned when a partition repository is not provided.
	ErrPartitionRepositoryRequired = errors.New("partition repository required")

	// ErrPayloadStoreRequired is returned when a payload store is not provided.
	ErrPayloadStoreRequired = errors.New("payload store required")

	// ErrPromptProviderRequired is returned when a prompt provider is not provided.
	ErrPromptProviderRequired = errors.New("prompt provider required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrStoreFactoryRequired is returned when a destination store factory is not provided.
	ErrStoreFactoryRequired = errors.New("destination store factory required")

	// ErrWrongJobKind is returned when a job is submitted to the wrong engine.
	ErrWrongJobKind = errors.New("wrong job kind for this engine")
)
