package app

import (
	"context"
	"fmt"

	"github.com/abhi007singh/legendary-sniffle/app/models"
)

// BatchStatus is the on-demand view of a batch. Export is only set once
// every row is completed.
type BatchStatus struct {
	BatchID string
	State   models.BatchState
	Rows    []models.RowStatusView
	Export  []models.Row
}

func (s BatchStatus) Complete() bool { return s.State == models.BatchCompleted }

// Reconciler derives batch state from the stored rows. It never writes.
type Reconciler struct {
	Store RowStore
}

func (r *Reconciler) Status(ctx context.Context, batchID string) (BatchStatus, error) {
	views, err := r.Store.FindRowStatuses(ctx, batchID)
	if err != nil {
		return BatchStatus{}, fmt.Errorf("load statuses %s: %w", batchID, err)
	}
	if len(views) == 0 {
		return BatchStatus{}, ErrNotFound
	}

	st := BatchStatus{BatchID: batchID, State: models.DeriveBatchState(views), Rows: views}
	if !st.Complete() {
		return st, nil
	}

	rows, err := r.Store.FindRows(ctx, batchID)
	if err != nil {
		return BatchStatus{}, fmt.Errorf("load rows %s: %w", batchID, err)
	}
	st.Export = rows
	return st, nil
}
