package folder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
)

// InMemory mirrors the Postgres folder store for unit tests. The SQL schema
// unassigns member assessments through ON DELETE SET NULL; here the onDelete
// hook plays that role and is wired to the assessment store's unassign.
type InMemory struct {
	mu       sync.RWMutex
	folders  map[domain.OrgDomain]map[domain.FolderID]*Folder
	onDelete func(org domain.OrgDomain, id domain.FolderID)
}

// NewInMemory creates an empty in-memory folder store. onDelete may be nil.
func NewInMemory(onDelete func(org domain.OrgDomain, id domain.FolderID)) *InMemory {
	return &InMemory{
		folders:  make(map[domain.OrgDomain]map[domain.FolderID]*Folder),
		onDelete: onDelete,
	}
}

func (s *InMemory) Create(_ context.Context, f *Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.folders[f.OrgDomain]
	if byID == nil {
		byID = make(map[domain.FolderID]*Folder)
		s.folders[f.OrgDomain] = byID
	}
	for _, existing := range byID {
		if existing.Name == f.Name {
			return fmt.Errorf("folder %q: %w", f.Name, sentinel.ErrConflict)
		}
	}
	clone := *f
	byID[f.ID] = &clone
	return nil
}

func (s *InMemory) Get(_ context.Context, org domain.OrgDomain, id domain.FolderID) (*Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := s.find(org, id)
	if err != nil {
		return nil, err
	}
	clone := *f
	return &clone, nil
}

func (s *InMemory) List(_ context.Context, org domain.OrgDomain, p ListParams) ([]Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []Folder
	for _, f := range s.folders[org] {
		all = append(all, *f)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	var out []Folder
	for _, f := range all {
		if p.AfterName != "" && f.Name <= p.AfterName {
			continue
		}
		out = append(out, f)
		if len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) Rename(_ context.Context, org domain.OrgDomain, id domain.FolderID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.find(org, id)
	if err != nil {
		return err
	}
	for otherID, other := range s.folders[org] {
		if otherID != id && other.Name == name {
			return fmt.Errorf("folder %q: %w", name, sentinel.ErrConflict)
		}
	}
	f.Name = name
	return nil
}

func (s *InMemory) Delete(_ context.Context, org domain.OrgDomain, id domain.FolderID) error {
	s.mu.Lock()
	if _, err := s.find(org, id); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.folders[org], id)
	s.mu.Unlock()

	if s.onDelete != nil {
		s.onDelete(org, id)
	}
	return nil
}

func (s *InMemory) find(org domain.OrgDomain, id domain.FolderID) (*Folder, error) {
	f := s.folders[org][id]
	if f == nil {
		return nil, fmt.Errorf("folder %s: %w", id, sentinel.ErrNotFound)
	}
	return f, nil
}
