package deadletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmabill/internal/domain"
	"pharmabill/internal/store"
)

type fakeStore struct {
	entries []store.DeadLetter
	deleted int64
}

func (f *fakeStore) ListPendingDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	var out []store.DeadLetter
	for _, e := range f.entries {
		if e.ProcessedAt == nil {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) MarkDeadLetterReprocessed(ctx context.Context, id string, now time.Time) (bool, error) {
	for i := range f.entries {
		if f.entries[i].ID == id && f.entries[i].ProcessedAt == nil {
			t := now
			f.entries[i].ProcessedAt = &t
			f.entries[i].Status = string(domain.DeadLetterReprocessed)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CountPendingDeadLetters(ctx context.Context) (int, error) {
	n := 0
	for _, e := range f.entries {
		if e.ProcessedAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteReprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []store.DeadLetter
	for _, e := range f.entries {
		if e.Status == string(domain.DeadLetterReprocessed) && e.ProcessedAt != nil && e.ProcessedAt.Before(cutoff) {
			f.deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return f.deleted, nil
}

type fakeEngine struct {
	succeedTargets map[string]bool
	calls          []string
	err            error
}

func (f *fakeEngine) Resubmit(ctx context.Context, req domain.SubmitWebhookRequest) (string, bool, error) {
	f.calls = append(f.calls, req.TargetURL)
	if f.err != nil {
		return "", false, f.err
	}
	return "wh_new", f.succeedTargets[req.TargetURL], nil
}

func entry(id, target string, createdAt time.Time) store.DeadLetter {
	return store.DeadLetter{
		ID: id, Kind: "webhook", DeliveryID: "wh_" + id, TargetURL: target,
		EventName: "order.created", Payload: []byte(`{}`),
		Reason: "Max retry attempts exceeded", Status: string(domain.DeadLetterPending),
		CreatedAt: createdAt,
	}
}

func TestReprocessMarksSucceededEntries(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{entries: []store.DeadLetter{
		entry("dl1", "https://a.example/hook", now.Add(-2*time.Hour)),
		entry("dl2", "https://b.example/hook", now.Add(-1*time.Hour)),
	}}
	eng := &fakeEngine{succeedTargets: map[string]bool{"https://a.example/hook": true}}
	r := &Reprocessor{Store: fs, Engine: eng}

	rep, err := r.Reprocess(context.Background(), 10)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if rep.Selected != 2 || rep.Reprocessed != 1 || rep.StillFailed != 1 {
		t.Fatalf("report = %+v", rep)
	}

	if fs.entries[0].ProcessedAt == nil || fs.entries[0].Status != string(domain.DeadLetterReprocessed) {
		t.Fatalf("succeeded entry not marked reprocessed: %+v", fs.entries[0])
	}
	// failed entry stays pending, no duplicate created
	if fs.entries[1].ProcessedAt != nil {
		t.Fatalf("failed entry must stay pending")
	}
	if len(fs.entries) != 2 {
		t.Fatalf("entries = %d, want 2 (no duplicates)", len(fs.entries))
	}
}

func TestReprocessOldestFirstAndBounded(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{entries: []store.DeadLetter{
		entry("dl1", "https://old.example", now.Add(-3*time.Hour)),
		entry("dl2", "https://mid.example", now.Add(-2*time.Hour)),
		entry("dl3", "https://new.example", now.Add(-1*time.Hour)),
	}}
	eng := &fakeEngine{succeedTargets: map[string]bool{}}
	r := &Reprocessor{Store: fs, Engine: eng}

	rep, err := r.Reprocess(context.Background(), 2)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if rep.Selected != 2 {
		t.Fatalf("selected = %d, want batch size 2", rep.Selected)
	}
	if len(eng.calls) != 2 || eng.calls[0] != "https://old.example" || eng.calls[1] != "https://mid.example" {
		t.Fatalf("drain order wrong: %v", eng.calls)
	}
}

func TestReprocessEngineErrorLeavesEntryPending(t *testing.T) {
	fs := &fakeStore{entries: []store.DeadLetter{entry("dl1", "https://a.example", time.Now())}}
	eng := &fakeEngine{err: errors.New("db down")}
	r := &Reprocessor{Store: fs, Engine: eng}

	rep, err := r.Reprocess(context.Background(), 10)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if rep.StillFailed != 1 || fs.entries[0].ProcessedAt != nil {
		t.Fatalf("errored entry must stay pending: %+v", rep)
	}
}

func TestCleanupDeletesOnlyAgedReprocessed(t *testing.T) {
	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-1 * 24 * time.Hour)

	e1 := entry("dl1", "https://a.example", old)
	e1.Status = string(domain.DeadLetterReprocessed)
	e1.ProcessedAt = &old
	e2 := entry("dl2", "https://b.example", recent)
	e2.Status = string(domain.DeadLetterReprocessed)
	e2.ProcessedAt = &recent
	e3 := entry("dl3", "https://c.example", old) // pending, never deleted

	fs := &fakeStore{entries: []store.DeadLetter{e1, e2, e3}}
	r := &Reprocessor{Store: fs, Retention: 30 * 24 * time.Hour, AlertThreshold: 1}

	if err := r.Cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(fs.entries) != 2 {
		t.Fatalf("entries = %d, want 2 after retention", len(fs.entries))
	}
	for _, e := range fs.entries {
		if e.ID == "dl1" {
			t.Fatalf("aged reprocessed entry should be gone")
		}
	}
}
