package models

import "errors"

var (
	// ErrMalformedInput means the uploaded bytes could not be parsed as the
	// expected document format. Fatal, never retried.
	ErrMalformedInput = errors.New("malformed input")

	// ErrEmbeddingUnavailable means the embedding provider kept failing until
	// the retry budget ran out.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexUnavailable means a vector index call failed. Fatal on the write
	// path, best-effort on cleanup deletes.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrUnauthorized means the requesting user does not own the document.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoContext means retrieval returned zero chunks for the query.
	ErrNoContext = errors.New("no relevant content found")

	// ErrSchemaValidation means the generation output did not match the
	// required question-set structure.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrAlreadyProcessing means another pipeline holds the claim for the
	// document.
	ErrAlreadyProcessing = errors.New("document already being processed")

	// ErrInvalidTransition means a status update would violate the state
	// machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound means the requested row does not exist or is not visible to
	// the caller.
	ErrNotFound = errors.New("not found")
)
