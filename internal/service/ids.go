package service

import "github.com/google/uuid"

// newID never contains '_', so rag.Namespace stays unambiguous.
func newID() string {
	return uuid.NewString()
}
