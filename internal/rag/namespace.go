package rag

import (
	"fmt"
	"strings"
)

// Namespace builds the partition key for one tenant's document.
func Namespace(tenantID, documentID string) string {
	return tenantID + "_" + documentID
}

func validateNamespace(ns string) error {
	if strings.TrimSpace(ns) == "" {
		return fmt.Errorf("%w: namespace is required", ErrConfig)
	}
	return nil
}
