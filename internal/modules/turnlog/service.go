package turnlog

import (
	"context"

	"mapchat/internal/modules/conversation"
)

// Service records conversation turns. A Service built without a store is
// a no-op, so analytics stay optional.
type Service struct {
	store *Store
}

// NewService creates a Service backed by the given Store. store may be nil.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Record implements conversation.Recorder.
func (s *Service) Record(ctx context.Context, rec conversation.TurnRecord) error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Insert(ctx, rec)
}
