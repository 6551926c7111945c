// Package memory implements the store interfaces in process. It backs tests
// and single-node deployments without PostgreSQL.
package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

const recordShards = 32

// Store satisfies every interface in package store.
type Store struct {
	issueMu sync.RWMutex
	// byDoc holds each document's current issue slice. A replace swaps the
	// slice header; slices are never mutated after being stored.
	byDoc   map[uuid.UUID][]models.Issue
	byIssue map[uuid.UUID]models.Issue

	shards [recordShards]recordShard

	contentMu sync.RWMutex
	contents  map[uuid.UUID]*models.DocumentContent

	docMu sync.RWMutex
	docs  map[uuid.UUID]*models.Document

	reportMu sync.RWMutex
	reports  map[uuid.UUID][]models.ScoreReport
}

type recordShard struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.RemediationRecord
}

var (
	_ store.IssueStore    = (*Store)(nil)
	_ store.RecordStore   = (*Store)(nil)
	_ store.ContentStore  = (*Store)(nil)
	_ store.DocumentStore = (*Store)(nil)
	_ store.ReportStore   = (*Store)(nil)
)

func New() *Store {
	s := &Store{
		byDoc:    make(map[uuid.UUID][]models.Issue),
		byIssue:  make(map[uuid.UUID]models.Issue),
		contents: make(map[uuid.UUID]*models.DocumentContent),
		docs:     make(map[uuid.UUID]*models.Document),
		reports:  make(map[uuid.UUID][]models.ScoreReport),
	}
	for i := range s.shards {
		s.shards[i].records = make(map[uuid.UUID]*models.RemediationRecord)
	}
	return s
}

func (s *Store) ReplaceIssues(_ context.Context, documentID uuid.UUID, issues []models.Issue) error {
	next := make([]models.Issue, len(issues))
	copy(next, issues)

	s.issueMu.Lock()
	defer s.issueMu.Unlock()
	for _, old := range s.byDoc[documentID] {
		delete(s.byIssue, old.ID)
	}
	for _, is := range next {
		s.byIssue[is.ID] = is
	}
	s.byDoc[documentID] = next
	return nil
}

func (s *Store) ListIssues(_ context.Context, documentID uuid.UUID) ([]models.Issue, error) {
	s.issueMu.RLock()
	cur := s.byDoc[documentID]
	s.issueMu.RUnlock()

	out := make([]models.Issue, len(cur))
	copy(out, cur)
	return out, nil
}

func (s *Store) GetIssue(_ context.Context, issueID uuid.UUID) (*models.Issue, error) {
	s.issueMu.RLock()
	defer s.issueMu.RUnlock()
	is, ok := s.byIssue[issueID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &is, nil
}

// FindIssues returns matching issues ordered by document, then detection order.
func (s *Store) FindIssues(_ context.Context, filter models.IssueFilter) ([]models.Issue, error) {
	s.issueMu.RLock()
	docIDs := make([]uuid.UUID, 0, len(s.byDoc))
	for id := range s.byDoc {
		docIDs = append(docIDs, id)
	}
	sets := make(map[uuid.UUID][]models.Issue, len(docIDs))
	for _, id := range docIDs {
		sets[id] = s.byDoc[id]
	}
	s.issueMu.RUnlock()

	sort.Slice(docIDs, func(i, j int) bool { return docIDs[i].String() < docIDs[j].String() })

	var out []models.Issue
	for _, id := range docIDs {
		for _, is := range sets[id] {
			if filter.Matches(is) {
				out = append(out, is)
			}
		}
	}
	return out, nil
}

func (s *Store) shard(id uuid.UUID) *recordShard {
	h := fnv.New32a()
	h.Write(id[:])
	return &s.shards[h.Sum32()%recordShards]
}

func (s *Store) GetRecord(_ context.Context, issueID uuid.UUID) (*models.RemediationRecord, error) {
	sh := s.shard(issueID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[issueID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) CompareAndSwap(_ context.Context, expected int64, rec *models.RemediationRecord) error {
	sh := s.shard(rec.IssueID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.records[rec.IssueID]
	switch {
	case expected == 0 && ok:
		return store.ErrConflict
	case expected != 0 && (!ok || cur.Version != expected):
		return store.ErrConflict
	}

	rec.Version = expected + 1
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	sh.records[rec.IssueID] = rec.Clone()
	return nil
}

func (s *Store) ListRecords(_ context.Context, documentID uuid.UUID) ([]*models.RemediationRecord, error) {
	var out []*models.RemediationRecord
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, rec := range sh.records {
			if rec.DocumentID == documentID {
				out = append(out, rec.Clone())
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueID.String() < out[j].IssueID.String() })
	return out, nil
}

func (s *Store) PruneRecords(_ context.Context, documentID uuid.UUID, live []uuid.UUID) error {
	keep := make(map[uuid.UUID]struct{}, len(live))
	for _, id := range live {
		keep[id] = struct{}{}
	}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, rec := range sh.records {
			if _, ok := keep[id]; !ok && rec.DocumentID == documentID {
				delete(sh.records, id)
			}
		}
		sh.mu.Unlock()
	}
	return nil
}

func (s *Store) SaveContent(_ context.Context, documentID uuid.UUID, content *models.DocumentContent) error {
	s.contentMu.Lock()
	defer s.contentMu.Unlock()
	s.contents[documentID] = content
	return nil
}

func (s *Store) GetContent(_ context.Context, documentID uuid.UUID) (*models.DocumentContent, error) {
	s.contentMu.RLock()
	defer s.contentMu.RUnlock()
	c, ok := s.contents[documentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

// PutDocument registers a document. Uploads happen outside this service, so
// this is how tests and the local runner seed documents.
func (s *Store) PutDocument(doc models.Document) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	d := doc
	s.docs[doc.ID] = &d
}

func (s *Store) GetDocument(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, status string, pageCount int) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	if pageCount > 0 {
		d.PageCount = pageCount
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SaveReport(_ context.Context, report models.ScoreReport) error {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.reports[report.DocumentID] = append(s.reports[report.DocumentID], report)
	return nil
}

func (s *Store) LatestReport(_ context.Context, documentID uuid.UUID) (*models.ScoreReport, error) {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	hist := s.reports[documentID]
	if len(hist) == 0 {
		return nil, store.ErrNotFound
	}
	r := hist[len(hist)-1]
	return &r, nil
}
