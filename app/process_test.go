package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/rs/zerolog"
)

type fakeFetcher struct {
	mu     sync.Mutex
	images map[string][]byte
	calls  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	b, ok := f.images[url]
	if !ok {
		return nil, &FetchError{URL: url, StatusCode: http.StatusNotFound, Err: errors.New("bad status: 404 Not Found")}
	}
	return b, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (p *fakePublisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[name] {
		return "", &PublishError{Name: name, StatusCode: http.StatusInternalServerError}
	}
	p.names = append(p.names, name)
	return publicURL("https://cdn.test", name), nil
}

// checkpointStore records every checkpoint and enforces the output bound.
type checkpointStore struct {
	*MemoryStore
	t     *testing.T
	mu    sync.Mutex
	saves [][]string
	fail  bool
}

func (s *checkpointStore) SaveOutputs(ctx context.Context, row models.Row) error {
	s.mu.Lock()
	s.saves = append(s.saves, append([]string(nil), row.OutputImageURLs...))
	fail := s.fail
	s.mu.Unlock()

	if len(row.OutputImageURLs) > len(row.SourceImageURLs) {
		s.t.Errorf("checkpoint with %d outputs for %d sources", len(row.OutputImageURLs), len(row.SourceImageURLs))
	}
	if fail {
		return errors.New("store unavailable")
	}
	return s.MemoryStore.SaveOutputs(ctx, row)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *fakeNotifier) Notify(ctx context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *fakeNotifier) notifications() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Notification(nil), n.sent...)
}

type pipelineFixture struct {
	store     *checkpointStore
	fetcher   *fakeFetcher
	publisher *fakePublisher
	notifier  *fakeNotifier
	proc      *Processor
	orch      *Orchestrator
}

func newPipelineFixture(t *testing.T, valid ...string) *pipelineFixture {
	t.Helper()
	img := testPNG(t)
	images := make(map[string][]byte)
	for _, u := range valid {
		images[u] = img
	}
	tr, err := NewJPEGTranscoder(50)
	if err != nil {
		t.Fatalf("NewJPEGTranscoder error = %v", err)
	}

	f := &pipelineFixture{
		store:     &checkpointStore{MemoryStore: NewMemoryStore(), t: t},
		fetcher:   &fakeFetcher{images: images},
		publisher: &fakePublisher{fail: map[string]bool{}},
		notifier:  &fakeNotifier{},
	}
	f.proc = &Processor{Store: f.store, Fetcher: f.fetcher, Transcoder: tr, Publisher: f.publisher, Log: zerolog.Nop()}
	f.orch = &Orchestrator{Store: f.store, Processor: f.proc, Notifier: f.notifier, Log: zerolog.Nop()}
	return f
}

func TestProcessRowDenseOutputs(t *testing.T) {
	srcs := []string{
		"https://img.test/1.png",
		"https://img.test/2.png",
		"https://img.test/3.png",
		"https://img.test/4.png",
	}
	// 2.png 404s
	f := newPipelineFixture(t, srcs[0], srcs[2], srcs[3])
	row := models.Row{ID: "r1", BatchID: "b1", SequenceNumber: 1, ProductName: "Shoe", Status: models.StatusProcessing, SourceImageURLs: srcs}
	_ = f.store.CreateRows(context.Background(), []models.Row{row})

	rep := f.proc.ProcessRow(context.Background(), &row)

	want := []string{"https://cdn.test/1-output.png", "https://cdn.test/3-output.png", "https://cdn.test/4-output.png"}
	if strings.Join(row.OutputImageURLs, " ") != strings.Join(want, " ") {
		t.Fatalf("outputs = %v, want %v", row.OutputImageURLs, want)
	}
	if rep.Attempted != 4 || rep.Published != 3 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if row.Status != models.StatusProcessing {
		t.Fatalf("ProcessRow changed status to %s", row.Status)
	}
	if strings.Join(f.fetcher.calls, " ") != strings.Join(srcs, " ") {
		t.Fatalf("fetch order = %v", f.fetcher.calls)
	}

	// one checkpoint per success, each one longer than the last
	if len(f.store.saves) != 3 {
		t.Fatalf("checkpoints = %d, want 3", len(f.store.saves))
	}
	for i, s := range f.store.saves {
		if len(s) != i+1 {
			t.Fatalf("checkpoint %d has %d outputs", i, len(s))
		}
	}

	stored, _ := f.store.FindRows(context.Background(), "b1")
	if len(stored[0].OutputImageURLs) != 3 {
		t.Fatalf("stored outputs = %v", stored[0].OutputImageURLs)
	}
}

func TestProcessRowSkipsDecodeAndPublishFailures(t *testing.T) {
	f := newPipelineFixture(t, "https://img.test/ok.png", "https://img.test/nope.png")
	f.fetcher.images["https://img.test/garbage.png"] = []byte("not an image")
	f.publisher.fail["nope-output.png"] = true

	row := models.Row{ID: "r1", BatchID: "b1", SequenceNumber: 1, SourceImageURLs: []string{
		"https://img.test/garbage.png",
		"https://img.test/nope.png",
		"https://img.test/ok.png",
	}}
	_ = f.store.CreateRows(context.Background(), []models.Row{row})

	rep := f.proc.ProcessRow(context.Background(), &row)
	if rep.Failed != 2 || rep.Published != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(row.OutputImageURLs) != 1 || row.OutputImageURLs[0] != "https://cdn.test/ok-output.png" {
		t.Fatalf("outputs = %v", row.OutputImageURLs)
	}
}

func TestProcessRowCheckpointFailureKeepsGoing(t *testing.T) {
	f := newPipelineFixture(t, "https://img.test/a.png", "https://img.test/b.png")
	row := models.Row{ID: "r1", BatchID: "b1", SequenceNumber: 1, SourceImageURLs: []string{"https://img.test/a.png", "https://img.test/b.png"}}
	_ = f.store.CreateRows(context.Background(), []models.Row{row})

	f.store.fail = true
	f.proc.ProcessRow(context.Background(), &row)
	if len(row.OutputImageURLs) != 2 {
		t.Fatalf("outputs = %v", row.OutputImageURLs)
	}
	if len(f.store.saves) != 2 || len(f.store.saves[1]) != 2 {
		t.Fatalf("second checkpoint should carry the full list: %v", f.store.saves)
	}
}

func TestProcessRowResumesAndNeverOverflows(t *testing.T) {
	f := newPipelineFixture(t, "https://img.test/a.png", "https://img.test/b.png")

	resumed := models.Row{ID: "r1", BatchID: "b1", SourceImageURLs: []string{"https://img.test/a.png", "https://img.test/b.png"},
		OutputImageURLs: []string{"https://cdn.test/a-output.png"}}
	rep := f.proc.ProcessRow(context.Background(), &resumed)
	if rep.Skipped != 1 || rep.Published != 1 || len(resumed.OutputImageURLs) != 2 {
		t.Fatalf("resume report = %+v outputs = %v", rep, resumed.OutputImageURLs)
	}

	full := models.Row{ID: "r2", BatchID: "b1", SourceImageURLs: []string{"https://img.test/a.png"},
		OutputImageURLs: []string{"https://cdn.test/other-output.png"}}
	f.proc.ProcessRow(context.Background(), &full)
	if len(full.OutputImageURLs) != 1 {
		t.Fatalf("row grew past its sources: %v", full.OutputImageURLs)
	}
}

func TestProcessBatchScenario(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "https://img.test/a1.png", "https://img.test/b1.png")
	rows := []models.Row{
		{ID: "A", BatchID: "X", SequenceNumber: 1, ProductName: "A", SourceImageURLs: []string{"https://img.test/a1.png"}},
		{ID: "B", BatchID: "X", SequenceNumber: 2, ProductName: "B", SourceImageURLs: []string{"https://img.test/b1.png", "https://img.test/b404.png"}},
	}
	if err := f.store.CreateRows(ctx, rows); err != nil {
		t.Fatalf("CreateRows error = %v", err)
	}

	rep, err := f.orch.ProcessBatch(ctx, "X")
	if err != nil {
		t.Fatalf("ProcessBatch error = %v", err)
	}
	f.orch.Wait()

	if published, failed := rep.Totals(); published != 2 || failed != 1 {
		t.Fatalf("totals = %d/%d", published, failed)
	}
	stored, _ := f.store.FindRows(ctx, "X")
	if len(stored[0].OutputImageURLs) != 1 || len(stored[1].OutputImageURLs) != 1 {
		t.Fatalf("outputs A=%v B=%v", stored[0].OutputImageURLs, stored[1].OutputImageURLs)
	}
	for _, r := range stored {
		if r.Status != models.StatusProcessing {
			t.Fatalf("row %s status = %s before notification", r.ID, r.Status)
		}
	}

	sent := f.notifier.notifications()
	if len(sent) != 1 || sent[0] != (models.Notification{BatchID: "X", Status: models.StatusCompleted}) {
		t.Fatalf("notifications = %+v", sent)
	}
}

func TestProcessBatchUnknownAndSkipped(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "https://img.test/a.png")

	if _, err := f.orch.ProcessBatch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ProcessBatch unknown = %v, want ErrNotFound", err)
	}
	f.orch.Wait()
	if n := len(f.notifier.notifications()); n != 0 {
		t.Fatalf("unknown batch sent %d notifications", n)
	}

	_ = f.store.CreateRows(ctx, []models.Row{
		{ID: "done", BatchID: "Y", SequenceNumber: 1, Status: models.StatusCompleted, SourceImageURLs: []string{"https://img.test/a.png"}},
	})
	rep, err := f.orch.ProcessBatch(ctx, "Y")
	if err != nil {
		t.Fatalf("ProcessBatch error = %v", err)
	}
	f.orch.Wait()
	if rep.SkippedRows != 1 || len(f.fetcher.calls) != 0 {
		t.Fatalf("completed row was reprocessed: %+v calls=%v", rep, f.fetcher.calls)
	}
	if n := len(f.notifier.notifications()); n != 1 {
		t.Fatalf("notifications = %d, want 1", n)
	}
}

func TestProcessBatchNotifyFailureDoesNotTouchRows(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, "https://img.test/a.png")
	f.notifier.err = errors.New("connection refused")
	_ = f.store.CreateRows(ctx, []models.Row{
		{ID: "r1", BatchID: "Z", SequenceNumber: 1, SourceImageURLs: []string{"https://img.test/a.png"}},
	})

	if _, err := f.orch.ProcessBatch(ctx, "Z"); err != nil {
		t.Fatalf("ProcessBatch error = %v", err)
	}
	f.orch.Wait()
	stored, _ := f.store.FindRows(ctx, "Z")
	if len(stored[0].OutputImageURLs) != 1 {
		t.Fatalf("outputs lost: %v", stored[0].OutputImageURLs)
	}
}

func TestProcessBatchCancelled(t *testing.T) {
	f := newPipelineFixture(t, "https://img.test/a.png")
	_ = f.store.CreateRows(context.Background(), []models.Row{
		{ID: "r1", BatchID: "C", SequenceNumber: 1, SourceImageURLs: []string{"https://img.test/a.png"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.orch.ProcessBatch(ctx, "C"); !errors.Is(err, context.Canceled) {
		t.Fatalf("ProcessBatch cancelled = %v", err)
	}
	f.orch.Wait()
	if n := len(f.notifier.notifications()); n != 0 {
		t.Fatalf("cancelled batch sent %d notifications", n)
	}
}

func TestProcessRowSameFileNameFromTwoHosts(t *testing.T) {
	srcs := []string{"https://h1.test/x/photo.png", "https://h2.test/y/photo.png"}

	t.Run("fresh pass publishes both", func(t *testing.T) {
		f := newPipelineFixture(t, srcs...)
		row := models.Row{ID: "r1", BatchID: "b1", SourceImageURLs: srcs}
		rep := f.proc.ProcessRow(context.Background(), &row)
		if rep.Published != 2 {
			t.Fatalf("report = %+v", rep)
		}
		if f.publisher.names[0] == f.publisher.names[1] {
			t.Fatalf("both sources published as %q", f.publisher.names[0])
		}
	})

	t.Run("resume retries the unpublished one", func(t *testing.T) {
		f := newPipelineFixture(t, srcs...)
		row := models.Row{ID: "r1", BatchID: "b1", SourceImageURLs: srcs,
			OutputImageURLs: []string{"https://cdn.test/photo-output.png"}}
		rep := f.proc.ProcessRow(context.Background(), &row)
		if rep.Skipped != 1 || rep.Attempted != 1 || rep.Published != 1 {
			t.Fatalf("report = %+v", rep)
		}
		if len(f.fetcher.calls) != 1 || f.fetcher.calls[0] != srcs[1] {
			t.Fatalf("fetched %v, want only %s", f.fetcher.calls, srcs[1])
		}
		if len(row.OutputImageURLs) != 2 {
			t.Fatalf("outputs = %v", row.OutputImageURLs)
		}
	})
}

func TestClaimOutputUsesEachPriorOnce(t *testing.T) {
	prior := []string{"https://cdn.test/photo-output.png"}
	claimed := make([]bool, len(prior))
	if !claimOutput(prior, claimed, "photo-output.png") {
		t.Fatalf("first claim should match")
	}
	if claimOutput(prior, claimed, "photo-output.png") {
		t.Fatalf("a prior output was claimed twice")
	}
}
