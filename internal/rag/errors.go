package rag

import "errors"

// Error kinds. Every error returned by this package wraps exactly one of them.
var (
	// ErrConfig is fatal: dimension mismatch, missing namespace, unusable
	// index. Retrying does not help.
	ErrConfig = errors.New("rag: configuration error")
	// ErrContent means the document itself is unusable.
	ErrContent = errors.New("rag: content error")
	// ErrTransient covers embedder and index failures that may succeed on retry.
	ErrTransient = errors.New("rag: transient error")
)

func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

func IsContent(err error) bool {
	return errors.Is(err, ErrContent)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
