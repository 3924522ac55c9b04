package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/permit-scout/internal/leads"
)

type fakeScanner struct {
	calls   atomic.Int32
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeScanner) TriggerAll(context.Context) ([]*leads.ScanRecord, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return []*leads.ScanRecord{{Source: leads.SourceBidNet, Status: leads.ScanSuccess, Found: 4, New: 1}}, f.err
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New(&fakeScanner{}, nil, "every now and then")
	if err := s.Start(context.Background(), false); err == nil {
		t.Fatalf("expected invalid spec error")
	}
}

func TestStartRunsImmediately(t *testing.T) {
	scanner := &fakeScanner{started: make(chan struct{}, 1)}
	s := New(scanner, nil, "@every 1h")

	if err := s.Start(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-scanner.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected an immediate scan cycle")
	}

	s.Stop()
	if got := scanner.calls.Load(); got != 1 {
		t.Fatalf("expected 1 cycle, got %d", got)
	}
}

func TestRunLogsOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	scanner := &fakeScanner{err: errors.New("sam-gov: pipeline down")}
	s := New(scanner, zap.New(core), "@hourly")

	s.run(context.Background())

	recorded := logs.FilterMessage("scan recorded").All()
	if len(recorded) != 1 || recorded[0].ContextMap()["source"] != "bidnet" {
		t.Fatalf("unexpected scan records logged: %v", recorded)
	}
	if logs.FilterMessage("scan cycle finished with errors").Len() != 1 {
		t.Fatalf("expected the cycle error to be logged")
	}
}

func TestRunSkipsOverlappingCycles(t *testing.T) {
	scanner := &fakeScanner{started: make(chan struct{}), release: make(chan struct{})}
	s := New(scanner, nil, "@hourly")

	done := make(chan struct{})
	go func() {
		s.run(context.Background())
		close(done)
	}()
	<-scanner.started

	s.run(context.Background())
	close(scanner.release)
	<-done

	if got := scanner.calls.Load(); got != 1 {
		t.Fatalf("expected the overlapping tick to be skipped, got %d calls", got)
	}
}

func TestRunSkipsWhenCancelled(t *testing.T) {
	scanner := &fakeScanner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	New(scanner, nil, "@hourly").run(ctx)
	if scanner.calls.Load() != 0 {
		t.Fatalf("expected no scan after cancellation")
	}
}
