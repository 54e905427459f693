package services

import (
	"errors"
	"fmt"

	"ragchat-backend/internal/store"
)

// Conversation service errors. Handlers map these to HTTP status codes.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrPersistence     = errors.New("persistence failure")
	ErrAskFailed       = errors.New("answer backend call failed")
	ErrDocumentsFailed = errors.New("document backend call failed")
)

// storeError translates a store error into the service taxonomy.
func storeError(err error, action string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, action)
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, action, err)
}
