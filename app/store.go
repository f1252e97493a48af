package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app/models"
)

// RowStore persists rows. Implementations must return rows ordered by
// sequence number and must never hand out slices they keep internally.
type RowStore interface {
	// CreateRows inserts every row of one batch atomically.
	CreateRows(ctx context.Context, rows []models.Row) error
	// FindRows loads full rows for a batch, ordered by sequence number.
	FindRows(ctx context.Context, batchID string) ([]models.Row, error)
	// FindRowStatuses loads the {id, productName, status} projection.
	FindRowStatuses(ctx context.Context, batchID string) ([]models.RowStatusView, error)
	// SaveOutputs replaces the stored output URL list of row with
	// row.OutputImageURLs. Returns ErrNotFound for an unknown row.
	SaveOutputs(ctx context.Context, row models.Row) error
	// SetBatchStatus overwrites the status of every row in a batch and
	// returns how many rows it touched.
	SetBatchStatus(ctx context.Context, batchID string, status models.RowStatus) (int, error)
}

// MemoryStore is an in-process RowStore used by tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  map[string]models.Row // by row id
	order map[string][]string   // batch id -> row ids
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:  make(map[string]models.Row),
		order: make(map[string][]string),
		now:   time.Now,
	}
}

func (m *MemoryStore) CreateRows(ctx context.Context, rows []models.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rows {
		if _, ok := m.rows[r.ID]; ok {
			return &ValidationError{Field: "id", Message: "duplicate row id " + r.ID}
		}
	}
	now := m.now().UTC()
	for _, r := range rows {
		c := r.Clone()
		if c.Status == "" {
			c.Status = models.StatusProcessing
		}
		if c.OutputImageURLs == nil {
			c.OutputImageURLs = []string{}
		}
		c.CreatedAt, c.UpdatedAt = now, now
		m.rows[c.ID] = c
		m.order[c.BatchID] = append(m.order[c.BatchID], c.ID)
	}
	return nil
}

func (m *MemoryStore) FindRows(ctx context.Context, batchID string) ([]models.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order[batchID]
	out := make([]models.Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rows[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (m *MemoryStore) FindRowStatuses(ctx context.Context, batchID string) ([]models.RowStatusView, error) {
	rows, err := m.FindRows(ctx, batchID)
	if err != nil {
		return nil, err
	}
	out := make([]models.RowStatusView, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RowStatusView{ID: r.ID, ProductName: r.ProductName, Status: r.Status})
	}
	return out, nil
}

func (m *MemoryStore) SaveOutputs(ctx context.Context, row models.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[row.ID]
	if !ok {
		return ErrNotFound
	}
	r.OutputImageURLs = append([]string{}, row.OutputImageURLs...)
	r.UpdatedAt = m.now().UTC()
	m.rows[row.ID] = r
	return nil
}

func (m *MemoryStore) SetBatchStatus(ctx context.Context, batchID string, status models.RowStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	ids := m.order[batchID]
	for _, id := range ids {
		r := m.rows[id]
		r.Status = status
		r.UpdatedAt = now
		m.rows[id] = r
	}
	return len(ids), nil
}
