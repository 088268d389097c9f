package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-process AttachmentStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]FileAttachment

	// FailWith, when set, is returned by every call.
	FailWith error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]FileAttachment)}
}

func (s *MemoryStore) Upsert(_ context.Context, att FileAttachment) (*FileAttachment, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byRole, ok := s.records[att.ProposalID]
	if !ok {
		byRole = make(map[string]FileAttachment)
		s.records[att.ProposalID] = byRole
	}
	var previous *FileAttachment
	if prev, ok := byRole[att.Role]; ok {
		previous = &prev
	}
	byRole[att.Role] = att
	return previous, nil
}

func (s *MemoryStore) ListByProposal(_ context.Context, proposalID string) ([]FileAttachment, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAttachments(s.records[proposalID]), nil
}

func (s *MemoryStore) ListByProposals(_ context.Context, proposalIDs []string) (map[string][]FileAttachment, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]FileAttachment, len(proposalIDs))
	for _, id := range proposalIDs {
		if atts := sortedAttachments(s.records[id]); len(atts) > 0 {
			out[id] = atts
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteByProposal(_ context.Context, proposalID string) ([]FileAttachment, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := sortedAttachments(s.records[proposalID])
	delete(s.records, proposalID)
	return removed, nil
}

func (s *MemoryStore) ProposalIDs(_ context.Context) ([]string, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return s.FailWith
}

func sortedAttachments(byRole map[string]FileAttachment) []FileAttachment {
	if len(byRole) == 0 {
		return nil
	}
	out := make([]FileAttachment, 0, len(byRole))
	for _, att := range byRole {
		out = append(out, att)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// MemoryBlobStore is an in-process BlobStore.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	seq   atomic.Uint64

	// FailPut, when set, is returned by Put.
	FailPut error
}

// NewMemoryBlobStore returns an empty blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Put(_ context.Context, name string, r io.Reader) (string, int64, error) {
	if s.FailPut != nil {
		return "", 0, s.FailPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	locator := "mem:" + strconv.FormatUint(s.seq.Add(1), 10) + ":" + name

	s.mu.Lock()
	s.blobs[locator] = data
	s.mu.Unlock()
	return locator, int64(len(data)), nil
}

func (s *MemoryBlobStore) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[locator]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", locator, ErrBlobNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryBlobStore) Delete(_ context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[locator]; !ok {
		return fmt.Errorf("blob %s: %w", locator, ErrBlobNotFound)
	}
	delete(s.blobs, locator)
	return nil
}

// Len reports how many blobs are stored.
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Has reports whether locator is stored.
func (s *MemoryBlobStore) Has(locator string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[locator]
	return ok
}
