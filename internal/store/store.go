// Package store keeps the latest snapshot of every page.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/snapshot"
)

// ErrEmptyPageID rejects a blank page id on every backend.
var ErrEmptyPageID = errors.New("page id is required")

// Store holds at most one snapshot per page id. Put replaces the previous
// generation atomically; readers never see a partial snapshot.
type Store interface {
	Put(ctx context.Context, pageID string, snap *snapshot.Snapshot) error
	GetByPageID(ctx context.Context, pageID string) (*snapshot.Snapshot, bool, error)
	RemoveByPageID(ctx context.Context, pageID string) error
	Clear(ctx context.Context) error
}

// MemoryStore is a process-local Store. Independent page ids never contend
// on a shared lock.
type MemoryStore struct {
	pages sync.Map // page id -> *snapshot.Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Put(_ context.Context, pageID string, snap *snapshot.Snapshot) error {
	if err := validatePageID(pageID); err != nil {
		return err
	}
	if snap == nil {
		s.pages.Delete(pageID)
		return nil
	}
	s.pages.Store(pageID, snap)
	return nil
}

func (s *MemoryStore) GetByPageID(_ context.Context, pageID string) (*snapshot.Snapshot, bool, error) {
	if err := validatePageID(pageID); err != nil {
		return nil, false, err
	}
	v, ok := s.pages.Load(pageID)
	if !ok {
		return nil, false, nil
	}
	return v.(*snapshot.Snapshot), true, nil
}

func (s *MemoryStore) RemoveByPageID(_ context.Context, pageID string) error {
	if err := validatePageID(pageID); err != nil {
		return err
	}
	s.pages.Delete(pageID)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.pages.Range(func(key, _ any) bool {
		s.pages.Delete(key)
		return true
	})
	return nil
}

func validatePageID(pageID string) error {
	if strings.TrimSpace(pageID) == "" {
		return ErrEmptyPageID
	}
	return nil
}
