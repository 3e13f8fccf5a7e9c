package domain

import "errors"

var (
	// ErrEmptyDocument indicates the document has no extractable text (e.g. a scanned image).
	ErrEmptyDocument = errors.New("document has no extractable text")
	// ErrMalformedGeometry indicates a fragment or page has invalid or out-of-page coordinates.
	ErrMalformedGeometry = errors.New("malformed document geometry")
	// ErrUnreadableDocument indicates the bytes could not be parsed as a PDF.
	ErrUnreadableDocument = errors.New("unreadable document")
	// ErrIndexingFailed indicates embedding or index population failed during ingestion.
	ErrIndexingFailed = errors.New("indexing failed")

	ErrInvalidQuery      = errors.New("invalid query")
	ErrEmptyIndex        = errors.New("session index is empty")
	ErrEmbeddingMismatch = errors.New("query embedder does not match session index")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// ErrGenerationTimeout indicates the answer generator did not respond in time.
	ErrGenerationTimeout = errors.New("answer generation timed out")
)

var codes = []struct {
	err       error
	code      string
	retryable bool
}{
	{ErrEmptyDocument, "empty_document", false},
	{ErrMalformedGeometry, "malformed_geometry", false},
	{ErrUnreadableDocument, "unreadable_document", false},
	{ErrIndexingFailed, "indexing_failed", true},
	{ErrInvalidQuery, "invalid_query", false},
	{ErrEmptyIndex, "empty_index", false},
	{ErrEmbeddingMismatch, "embedding_mismatch", false},
	{ErrSessionNotFound, "session_not_found", false},
	{ErrSessionExpired, "session_expired", false},
	{ErrGenerationTimeout, "generation_timeout", true},
}

// CodeOf returns a stable machine-readable code for err. Unknown errors map to "internal".
func CodeOf(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// IsRetryable reports whether repeating the same request may succeed.
func IsRetryable(err error) bool {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.retryable
		}
	}
	return err != nil
}
