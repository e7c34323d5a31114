package document

import (
	"errors"
	"fmt"
)

// ErrUnknownDocument is returned for lifecycle operations on a URI that is
// not open.
var ErrUnknownDocument = errors.New("unknown document")

// ErrStaleAnalysis marks a run superseded by a newer version. It never
// leaves the scheduler.
var ErrStaleAnalysis = errors.New("stale analysis")

// UnknownDocumentError carries the offending URI.
type UnknownDocumentError struct {
	URI string
}

func (e *UnknownDocumentError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownDocument, e.URI)
}

// Is makes errors.Is(err, ErrUnknownDocument) hold.
func (e *UnknownDocumentError) Is(target error) bool {
	return target == ErrUnknownDocument
}
