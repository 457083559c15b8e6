package app

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline and catalog failures so callers can tell
// retryable, terminal and degraded outcomes apart.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindCaptioning
	KindMetadataParseDegraded
	KindStorageWrite
	KindStorageRead
	KindNotFound
	KindMetadataCorrupt
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCaptioning:
		return "captioning"
	case KindMetadataParseDegraded:
		return "metadata_parse_degraded"
	case KindStorageWrite:
		return "storage_write"
	case KindStorageRead:
		return "storage_read"
	case KindNotFound:
		return "not_found"
	case KindMetadataCorrupt:
		return "metadata_corrupt"
	default:
		return "unknown"
	}
}

// Stage names the pipeline step an error or event was produced at.
type Stage string

const (
	StageValidate        Stage = "validate"
	StageStage           Stage = "stage"
	StageAnnotate        Stage = "annotate"
	StageParse           Stage = "parse"
	StagePersistMetadata Stage = "persist_metadata"
	StagePersistImage    Stage = "persist_image"
	StageDone            Stage = "done"
	StageRead            Stage = "read"
)

var (
	ErrNoFile          = errors.New("no file supplied")
	ErrEmptyFile       = errors.New("uploaded file is empty")
	ErrFileTooLarge    = errors.New("uploaded file is too large")
	ErrUnsupportedType = errors.New("unsupported image type, only jpg, jpeg and png are accepted")
	ErrImageNotFound   = errors.New("image not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// Error carries the kind, the stage reached and the file involved.
type Error struct {
	Kind     Kind
	Stage    Stage
	Filename string
	Err      error
}

func (e *Error) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s at %s for %q: %v", e.Kind, e.Stage, e.Filename, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindCaptioning || e.Kind == KindStorageWrite || e.Kind == KindStorageRead
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func newError(kind Kind, stage Stage, filename string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Filename: filename, Err: err}
}
