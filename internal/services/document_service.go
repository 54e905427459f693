package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentBackend is the document half of the answer backend.
type DocumentBackend interface {
	Stats(ctx context.Context, userID string) (json.RawMessage, error)
	ProcessAllPDFs(ctx context.Context, userID string, customPath *string) (json.RawMessage, error)
	DeleteFile(ctx context.Context, userID, fileName string) (json.RawMessage, error)
}

// DocumentService exposes the caller's document collection on the backend.
// Payloads are passed through unchanged.
type DocumentService struct {
	backend DocumentBackend
	log     *zap.Logger
}

func NewDocumentService(backend DocumentBackend, log *zap.Logger) *DocumentService {
	return &DocumentService{backend: backend, log: log.Named("documents")}
}

func (s *DocumentService) Stats(ctx context.Context, userID uuid.UUID) (json.RawMessage, error) {
	out, err := s.backend.Stats(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentsFailed, err)
	}
	return out, nil
}

// ProcessAll asks the backend to ingest every document for the user.
// A blank customPath is treated as unset.
func (s *DocumentService) ProcessAll(ctx context.Context, userID uuid.UUID, customPath *string) (json.RawMessage, error) {
	if customPath != nil && strings.TrimSpace(*customPath) == "" {
		customPath = nil
	}
	out, err := s.backend.ProcessAllPDFs(ctx, userID.String(), customPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentsFailed, err)
	}
	s.log.Info("documents processed", zap.Stringer("user_id", userID))
	return out, nil
}

func (s *DocumentService) DeleteFile(ctx context.Context, userID uuid.UUID, fileName string) (json.RawMessage, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name must not be empty", ErrInvalidArgument)
	}
	out, err := s.backend.DeleteFile(ctx, userID.String(), fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentsFailed, err)
	}
	s.log.Info("document deleted", zap.Stringer("user_id", userID), zap.String("file", fileName))
	return out, nil
}
