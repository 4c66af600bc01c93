package log

import (
	"path/filepath"
	"testing"
	"time"

	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/store"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestOpLogger_RoundTripAndReplay(t *testing.T) {
	dir := t.TempDir()
	var closed []string
	l := NewOpLogger(dir, "bp1", WriterOptions{Now: fixedClock(), OnClose: func(p string) { closed = append(closed, p) }})

	s := store.New(0)
	s.AddSink(l)
	belt := model.Entity{EntityNumber: 1, Name: "transport-belt", Position: model.Position{X: 0.5, Y: 0.5}}
	pole := model.Entity{EntityNumber: 2, Name: "small-electric-pole", Position: model.Position{X: 3.5, Y: 0.5}}
	mustCommit(t, s, store.NewTransaction("Added entity", store.TagAdd, store.Put(belt)))
	mustCommit(t, s, store.NewTransaction("Added entity", store.TagAdd, store.Put(pole)))
	for _, x := range []float64{1.5, 2.5} {
		moved := belt
		moved.Position.X = x
		mustCommit(t, s, store.NewTransaction("Moved entity", store.TagMove, store.Update(moved)))
	}
	mustCommit(t, s, store.NewTransaction("Removed entity", store.TagDelete, store.Remove(2)))
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(closed) != 1 || filepath.Base(closed[0]) != "ops-2026-03-01-10.jsonl.zst" {
		t.Fatalf("closed=%v", closed)
	}

	recs, err := ReadOps(OpsDir(dir))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("records=%d want 4 (moves collapsed)", len(recs))
	}
	mv := recs[2]
	if mv.Index != 3 || mv.Seq != 4 || mv.Changes[0].Before.Position.X != 0.5 || mv.Changes[0].After.Position.X != 2.5 {
		t.Fatalf("collapsed move=%+v", mv)
	}

	c := model.NewCollection()
	for _, r := range recs {
		if c, err = Apply(c, r, true); err != nil {
			t.Fatalf("apply %d: %v", r.Index, err)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("len=%d", c.Len())
	}
	got, _ := c.Get(1)
	if got.Position != (model.Position{X: 2.5, Y: 0.5}) {
		t.Fatalf("replayed=%+v", got)
	}
}

func TestApply_StrictDetectsDivergence(t *testing.T) {
	before := model.Entity{EntityNumber: 1, Name: "pipe"}
	after := model.Entity{EntityNumber: 1, Name: "pipe", Direction: model.East}
	r := OpRecord{Index: 7, Changes: []store.Change{{EntityNumber: 1, Before: &before, After: &after}}}

	if _, err := Apply(model.NewCollection(), r, true); err == nil {
		t.Fatalf("expected divergence error")
	}
	c, err := Apply(model.NewCollection(), r, false)
	if err != nil {
		t.Fatalf("lenient apply: %v", err)
	}
	if e, _ := c.Get(1); e.Direction != model.East {
		t.Fatalf("after not applied: %+v", e)
	}
}

func TestListSegments_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "ops", WriterOptions{Now: func() time.Time { return clock }})
	_ = w.Write(map[string]int{"a": 1})
	clock = clock.Add(time.Hour)
	_ = w.Write(map[string]int{"a": 2})
	_ = w.Close()
	other := NewJSONLZstdWriter(dir, "audit", WriterOptions{})
	_ = other.Write(1)
	_ = other.Close()

	files, err := ListSegments(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "ops-2026-03-01-23.jsonl.zst" || filepath.Base(files[1]) != "ops-2026-03-02-00.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
}

func mustCommit(t *testing.T, s *store.Store, tx store.Transaction) {
	t.Helper()
	if _, err := s.Commit(tx); err != nil {
		t.Fatalf("commit %s: %v", tx.Label, err)
	}
}

func TestReplay_SkipsCoveredRecords(t *testing.T) {
	e := func(x float64) *model.Entity {
		return &model.Entity{EntityNumber: 1, Name: "transport-belt", Position: model.Position{X: x, Y: 0.5}}
	}
	recs := []OpRecord{
		{Index: 1, Seq: 1, Changes: []store.Change{{EntityNumber: 1, After: e(0.5)}}},
		{Index: 2, Seq: 3, Changes: []store.Change{{EntityNumber: 1, Before: e(0.5), After: e(1.5)}}},
		{Index: 3, Seq: 5, Changes: []store.Change{{EntityNumber: 1, Before: e(1.5), After: e(4.5)}}},
	}
	base := model.NewCollection(*e(1.5))
	res, err := Replay(base, 2, 3, recs, true)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Applied != 1 || res.LastIndex != 3 || res.LastSeq != 5 {
		t.Fatalf("res=%+v", res)
	}
	if got, _ := res.Entities.Get(1); got.Position.X != 4.5 {
		t.Fatalf("entity=%+v", got)
	}

	res, err = Replay(base, 3, 5, recs, true)
	if err != nil || res.Applied != 0 || res.LastSeq != 5 {
		t.Fatalf("nothing to replay: res=%+v err=%v", res, err)
	}
}
