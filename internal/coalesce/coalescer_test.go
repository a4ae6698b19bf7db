package coalesce

import (
	"testing"
	"time"

	"github.com/dokzlo13/relayctl/internal/clock"
	"github.com/dokzlo13/relayctl/internal/property"
)

type dueCall struct {
	id  property.ID
	gen uint64
}

// harness owns a coalescer and drains its timer callbacks the way the
// controller loop does.
type harness struct {
	t      *testing.T
	clk    *clock.Fake
	c      *Coalescer
	due    []dueCall
	writes []PendingWrite
}

func newHarness(t *testing.T, window, backoff time.Duration) *harness {
	h := &harness{t: t, clk: clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
	h.c = New(window, backoff, h.clk, func(id property.ID, gen uint64) {
		h.due = append(h.due, dueCall{id, gen})
	})
	return h
}

// advance moves time and feeds closed windows back into the coalescer.
func (h *harness) advance(d time.Duration) {
	h.clk.Advance(d)
	calls := h.due
	h.due = nil
	for _, call := range calls {
		if w, ok := h.c.Due(call.id, call.gen); ok {
			h.writes = append(h.writes, w)
		}
	}
}

func TestProposeBurstYieldsOneWrite(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)

	values := []float64{5100, 5200, 5300, 5400, 5500}
	for _, v := range values {
		h.c.Propose(property.Temperature, v)
		h.advance(5 * time.Millisecond)
	}
	if len(h.writes) != 0 {
		t.Fatalf("write sent before the window closed: %+v", h.writes)
	}

	h.advance(40 * time.Millisecond)
	if len(h.writes) != 1 {
		t.Fatalf("got %d writes, want exactly 1", len(h.writes))
	}
	if w := h.writes[0]; w.Value != 5500 || w.Property != property.Temperature || w.Attempt != 1 {
		t.Errorf("unexpected write %+v, want last value 5500 attempt 1", w)
	}
	if h.c.Pending(property.Temperature) {
		t.Error("nothing should be pending after the flush")
	}
}

func TestPropertiesAreIndependent(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)

	h.c.Propose(property.Temperature, 4000)
	h.advance(20 * time.Millisecond)
	h.c.Propose(property.Brightness, 0.4)
	h.advance(20 * time.Millisecond)

	if len(h.writes) != 1 || h.writes[0].Property != property.Temperature {
		t.Fatalf("after 40ms want only temperature written, got %+v", h.writes)
	}
	h.advance(20 * time.Millisecond)
	if len(h.writes) != 2 || h.writes[1].Property != property.Brightness {
		t.Fatalf("after 60ms want brightness written, got %+v", h.writes)
	}
}

func TestFlushSendsImmediatelyWhenSpacingAllows(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)

	h.c.Propose(property.Gamma, 1.1)
	w, ok := h.c.Flush(property.Gamma)
	if !ok || w.Value != 1.1 {
		t.Fatalf("Flush() = %+v, %v; want 1.1, true", w, ok)
	}

	// The window timer was cancelled by the flush.
	h.advance(100 * time.Millisecond)
	if len(h.writes) != 0 {
		t.Errorf("cancelled window still produced writes: %+v", h.writes)
	}
}

func TestFlushRespectsMinimumSpacing(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)

	h.c.Propose(property.Gamma, 1.1)
	h.advance(40 * time.Millisecond)
	if len(h.writes) != 1 {
		t.Fatalf("want first write after the window, got %d", len(h.writes))
	}

	h.advance(10 * time.Millisecond)
	h.c.Propose(property.Gamma, 1.2)
	if _, ok := h.c.Flush(property.Gamma); ok {
		t.Fatal("Flush 10ms after a write must wait for the spacing")
	}

	h.advance(29 * time.Millisecond)
	if len(h.writes) != 1 {
		t.Fatalf("second write too early: %+v", h.writes)
	}
	h.advance(1 * time.Millisecond)
	if len(h.writes) != 2 || h.writes[1].Value != 1.2 {
		t.Fatalf("want second write at exactly the spacing, got %+v", h.writes)
	}
}

func TestFlushWithoutPendingIsNoop(t *testing.T) {
	h := newHarness(t, 0, 0)
	if _, ok := h.c.Flush(property.Brightness); ok {
		t.Error("Flush with nothing proposed should return false")
	}
}

func TestBypassSupersedesWindow(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)

	h.c.Propose(property.Temperature, 3000)
	w := h.c.Bypass(property.Temperature, 6500)
	if w.Value != 6500 || w.Attempt != 1 {
		t.Fatalf("Bypass() = %+v, want 6500 attempt 1", w)
	}

	h.advance(100 * time.Millisecond)
	if len(h.writes) != 0 {
		t.Errorf("superseded proposal was still written: %+v", h.writes)
	}
}

func TestRetryOnceWithBackoff(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 250*time.Millisecond)

	first := h.c.Bypass(property.Brightness, 0.6)
	if !h.c.Retry(first) {
		t.Fatal("first failure should schedule a retry")
	}

	h.advance(249 * time.Millisecond)
	if len(h.writes) != 0 {
		t.Fatal("retry fired before the backoff")
	}
	h.advance(1 * time.Millisecond)
	if len(h.writes) != 1 {
		t.Fatalf("want retry after backoff, got %+v", h.writes)
	}
	second := h.writes[0]
	if second.Value != 0.6 || second.Attempt != 2 {
		t.Errorf("retry = %+v, want same value attempt 2", second)
	}

	if h.c.Retry(second) {
		t.Error("a retry must not be retried again")
	}
}

func TestRetrySupersededByNewProposal(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 250*time.Millisecond)

	first := h.c.Bypass(property.Brightness, 0.6)
	h.c.Propose(property.Brightness, 0.7)

	if h.c.Retry(first) {
		t.Fatal("retry must not be scheduled once a newer value is waiting")
	}
	h.advance(40 * time.Millisecond)
	if len(h.writes) != 1 || h.writes[0].Value != 0.7 {
		t.Fatalf("want the newer value written, got %+v", h.writes)
	}
}

func TestRetryReplacedByProposalKeepsNewValue(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 250*time.Millisecond)

	first := h.c.Bypass(property.Gamma, 0.9)
	h.c.Retry(first)
	h.c.Propose(property.Gamma, 1.3)

	h.advance(250 * time.Millisecond)
	if len(h.writes) != 1 {
		t.Fatalf("want one write, got %+v", h.writes)
	}
	if w := h.writes[0]; w.Value != 1.3 || w.Attempt != 1 {
		t.Errorf("write = %+v, want newer value as a first attempt", w)
	}
}

func TestLatest(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)

	w1 := h.c.Bypass(property.Temperature, 4000)
	if !h.c.Latest(property.Temperature, w1.Seq) {
		t.Error("only write handed out should be latest")
	}
	h.c.Propose(property.Temperature, 4100)
	if h.c.Latest(property.Temperature, w1.Seq) {
		t.Error("a waiting proposal makes the earlier write stale")
	}
	h.advance(40 * time.Millisecond)
	if h.c.Latest(property.Temperature, w1.Seq) {
		t.Error("a newer write makes the earlier write stale")
	}
	if !h.c.Latest(property.Temperature, h.writes[0].Seq) {
		t.Error("newest write should be latest")
	}
}

func TestFlushAll(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)
	h.c.Propose(property.Temperature, 4000)
	h.c.Propose(property.Inverted, 1)

	out := h.c.FlushAll()
	if len(out) != 2 {
		t.Fatalf("FlushAll() returned %d writes, want 2", len(out))
	}
	if out[0].Property != property.Temperature || out[1].Property != property.Inverted {
		t.Errorf("FlushAll() order = %+v", out)
	}
	if h.clk.Pending() != 0 {
		t.Errorf("timers still armed after FlushAll: %d", h.clk.Pending())
	}
}

func TestStaleGenerationIgnored(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)
	h.c.Propose(property.Gamma, 1.2)
	if _, ok := h.c.Due(property.Gamma, 999); ok {
		t.Error("Due with a stale generation must not flush")
	}
	if !h.c.Pending(property.Gamma) {
		t.Error("value should still be pending")
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond, 0)
	h.c.Propose(property.Brightness, 0.5)
	if !h.c.Cancel(property.Brightness) {
		t.Fatal("Cancel() = false with a waiting value")
	}
	h.advance(100 * time.Millisecond)
	if len(h.writes) != 0 {
		t.Errorf("cancelled value was written: %+v", h.writes)
	}
	if h.c.Cancel(property.Brightness) {
		t.Error("second Cancel() should report nothing waiting")
	}
}
