package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/nhle/gunsub/internal/clock"
	"github.com/nhle/gunsub/internal/model"
	"github.com/nhle/gunsub/internal/scanner"
	"github.com/nhle/gunsub/internal/source"
	"github.com/nhle/gunsub/internal/subscription"
	"github.com/nhle/gunsub/tests/testutil"
)

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type scanReply struct {
	result model.ScanResult
	err    error
}

// fakeScanner returns the queued replies in order, then succeeds.
type fakeScanner struct {
	replies []scanReply
	calls   []*time.Time
	onScan  func(call int)
}

func (f *fakeScanner) Scan(_ context.Context, since *time.Time) (model.ScanResult, error) {
	f.calls = append(f.calls, since)
	call := len(f.calls)
	if f.onScan != nil {
		f.onScan(call)
	}
	if call <= len(f.replies) {
		reply := f.replies[call-1]
		return reply.result, reply.err
	}
	return model.ScanResult{Pages: 1}, nil
}

// memoryCursors is an in-memory CursorStore.
type memoryCursors struct {
	cursor   *time.Time
	writes   []time.Time
	readErr  error
	writeErr error
}

func (m *memoryCursors) ReadCursor(context.Context) (time.Time, bool, error) {
	if m.readErr != nil {
		return time.Time{}, false, m.readErr
	}
	if m.cursor == nil {
		return time.Time{}, false, nil
	}
	return *m.cursor, true, nil
}

func (m *memoryCursors) WriteCursor(_ context.Context, cursor time.Time) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, cursor)
	m.cursor = &cursor
	return nil
}

type memoryRuns struct {
	runs []model.Run
}

func (m *memoryRuns) RecordRun(_ context.Context, run model.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func TestRun_SingleShotSuccess(t *testing.T) {
	scanner := &fakeScanner{replies: []scanReply{{result: model.ScanResult{Pages: 2, Unsubscribed: 1}}}}
	cursors := &memoryCursors{}
	runs := &memoryRuns{}
	fake := clock.Fake(epoch)

	p := New(Config{Scanner: scanner, Cursors: cursors, Runs: runs, Clock: fake})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(scanner.calls) != 1 || scanner.calls[0] != nil {
		t.Fatalf("scanner calls = %v, want one call without cursor", scanner.calls)
	}
	if len(cursors.writes) != 1 || !cursors.writes[0].Equal(epoch) {
		t.Errorf("cursor writes = %v, want [%v]", cursors.writes, epoch)
	}
	if len(fake.Waits()) != 0 {
		t.Errorf("single shot must not sleep, waits = %v", fake.Waits())
	}
	if len(runs.runs) != 1 || runs.runs[0].Unsubscribed != 1 || !runs.runs[0].Succeeded() {
		t.Errorf("runs = %+v", runs.runs)
	}
	if c := p.Cursor(); c == nil || !c.Equal(epoch) {
		t.Errorf("in-memory cursor = %v, want %v", c, epoch)
	}
}

func TestRun_SingleShotFailureKeepsCursor(t *testing.T) {
	previous := epoch.Add(-time.Hour)
	scanErr := &source.TransportError{Method: "GET", Path: "/notifications", Err: errors.New("connection reset")}
	scanner := &fakeScanner{replies: []scanReply{{err: scanErr}}}
	cursors := &memoryCursors{cursor: &previous}
	runs := &memoryRuns{}

	p := New(Config{Scanner: scanner, Cursors: cursors, Runs: runs, Clock: clock.Fake(epoch)})
	err := p.Run(context.Background())
	if !source.IsTransport(err) {
		t.Fatalf("Run error = %v, want the scan's transport error", err)
	}

	if len(cursors.writes) != 0 {
		t.Errorf("cursor written after failure: %v", cursors.writes)
	}
	if !scanner.calls[0].Equal(previous) {
		t.Errorf("scan since = %v, want %v", scanner.calls[0], previous)
	}
	if len(runs.runs) != 1 || runs.runs[0].Succeeded() {
		t.Errorf("failed run not recorded: %+v", runs.runs)
	}
}

func TestRun_IntervalLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := &fakeScanner{onScan: func(call int) {
		if call == 3 {
			cancel()
		}
	}}
	scanner.replies = []scanReply{
		{result: model.ScanResult{Pages: 1}},
		{err: errors.New("HTTP 502")},
		{result: model.ScanResult{Pages: 1}},
	}
	cursors := &memoryCursors{}
	fake := clock.Fake(epoch)
	interval := 60 * time.Second

	p := New(Config{Scanner: scanner, Cursors: cursors, Clock: fake, Interval: interval})
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(scanner.calls) != 3 {
		t.Fatalf("scans = %d, want 3", len(scanner.calls))
	}
	if scanner.calls[0] != nil {
		t.Errorf("first scan since = %v, want nil", scanner.calls[0])
	}
	// The failed second cycle must not move the cursor.
	for i, want := range []time.Time{epoch, epoch} {
		if got := scanner.calls[i+1]; got == nil || !got.Equal(want) {
			t.Errorf("scan %d since = %v, want %v", i+2, got, want)
		}
	}

	waits := fake.Waits()
	if len(waits) != 2 || waits[0] != interval || waits[1] != interval {
		t.Errorf("waits = %v, want two sleeps of %v", waits, interval)
	}

	// The third cycle succeeded before noticing cancellation.
	if len(cursors.writes) != 2 || !cursors.writes[1].Equal(epoch.Add(2*interval)) {
		t.Errorf("cursor writes = %v", cursors.writes)
	}
}

func TestRun_CursorNeverRegresses(t *testing.T) {
	future := epoch.Add(24 * time.Hour)
	cursors := &memoryCursors{cursor: &future}

	p := New(Config{Scanner: &fakeScanner{}, Cursors: cursors, Clock: clock.Fake(epoch)})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cursors.writes) != 1 || !cursors.writes[0].Equal(future) {
		t.Errorf("cursor writes = %v, want [%v]", cursors.writes, future)
	}
}

func TestCycle_WriteFailureKeepsInMemoryCursor(t *testing.T) {
	cursors := &memoryCursors{writeErr: errors.New("disk full")}
	scanner := &fakeScanner{}
	fake := clock.Fake(epoch)

	p := New(Config{Scanner: scanner, Cursors: cursors, Clock: fake})
	if err := p.Cycle(context.Background()); err == nil {
		t.Fatal("expected cursor write error")
	}
	if p.Cursor() != nil {
		t.Errorf("in-memory cursor advanced to %v", p.Cursor())
	}

	fake.Advance(time.Minute)
	cursors.writeErr = nil
	if err := p.Cycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if scanner.calls[1] != nil {
		t.Errorf("second scan since = %v, want nil", scanner.calls[1])
	}
	if got := p.Cursor(); got == nil || !got.Equal(epoch.Add(time.Minute)) {
		t.Errorf("cursor = %v", got)
	}
}

func TestRun_ReadFailure(t *testing.T) {
	scanner := &fakeScanner{}
	p := New(Config{
		Scanner: scanner,
		Cursors: &memoryCursors{readErr: errors.New("permission denied")},
		Clock:   clock.Fake(epoch),
	})

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(scanner.calls) != 0 {
		t.Error("no scan should run without a readable cursor")
	}
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := &fakeScanner{}
	p := New(Config{Scanner: scanner, Cursors: &memoryCursors{}, Interval: time.Hour, Clock: clock.Fake(epoch)})
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(scanner.calls) != 1 {
		t.Errorf("scans = %d, want 1", len(scanner.calls))
	}
}

func TestRun_PageFailureLeavesStateFileUntouched(t *testing.T) {
	tests := []struct {
		name    string
		breakIt func(gh *testutil.FakeGitHub)
		wantErr func(error) bool
	}{
		{"server error", func(gh *testutil.FakeGitHub) { gh.FailPage(2, http.StatusBadGateway) }, source.IsTransport},
		{"undecodable page", func(gh *testutil.FakeGitHub) { gh.SetRawPage(2, `{"message":"x"}`) }, source.IsProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh := testutil.NewFakeGitHub(t)
			gh.SetPages(
				[]model.Notification{testutil.SubscribedNotification("1", "a/x")},
				[]model.Notification{testutil.SubscribedNotification("2", "a/y")},
			)
			tt.breakIt(gh)

			cursors, fs := testutil.NewMemoryFileStore(t, "next-since")
			if err := afero.WriteFile(fs, "next-since", []byte("1700000000.5\n"), 0o644); err != nil {
				t.Fatal(err)
			}

			client := gh.Client(t)
			p := New(Config{
				Scanner: scanner.New(scanner.Config{
					API:          client,
					Resolver:     subscription.NewResolver(client, nil),
					Unsubscriber: subscription.NewExecutor(client, nil),
				}),
				Cursors: cursors,
				Clock:   clock.Fake(epoch),
			})

			if err := p.Run(context.Background()); !tt.wantErr(err) {
				t.Fatalf("Run error = %v", err)
			}

			data, err := afero.ReadFile(fs, "next-since")
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "1700000000.5\n" {
				t.Errorf("state file = %q, want it unchanged", data)
			}
			if since := gh.Requests()[0].Query.Get("since"); since != "2023-11-14T22:13:20Z" {
				t.Errorf("since = %q", since)
			}
		})
	}
}
