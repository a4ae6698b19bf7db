package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/controller"
	"github.com/dokzlo13/relayctl/internal/ledger"
	"github.com/dokzlo13/relayctl/internal/property"
	"github.com/dokzlo13/relayctl/internal/remote/remotetest"
)

func testConfig() *config.Config {
	cfg := config.Default()
	disabled := false
	cfg.Fade.Enabled = &disabled
	cfg.Remote.MinRetryBackoff = config.Duration(time.Millisecond)
	cfg.Remote.MaxRetryBackoff = config.Duration(10 * time.Millisecond)
	return cfg
}

func waitConnected(t *testing.T, a *App) controller.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		snap, err := a.Controller().Snapshot(ctx)
		cancel()
		if err == nil && snap.Connected {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("controller never saw the link connect")
	return controller.Snapshot{}
}

func TestAppMirrorsDaemonState(t *testing.T) {
	link := remotetest.New()
	link.SetValue(property.Temperature, 4200)
	link.SetValue(property.Gamma, 1.3)

	a, err := New(testConfig(), Options{Link: link})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	snap := waitConnected(t, a)
	if snap.Value(property.Temperature) != 4200 || snap.Value(property.Gamma) != 1.3 {
		t.Errorf("snapshot = %v K, gamma %v; want 4200 K, gamma 1.3",
			snap.Value(property.Temperature), snap.Value(property.Gamma))
	}
}

func TestAppFlushesPendingWriteOnStop(t *testing.T) {
	link := remotetest.New()
	cfg := testConfig()
	// Nothing is sent before shutdown.
	cfg.Sync.Window = config.Duration(time.Hour)
	cfg.Sync.Quiescence = config.Duration(time.Hour)

	a, err := New(cfg, Options{Link: link})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitConnected(t, a)

	if !a.Controller().Post(controller.Scroll{Property: property.Temperature, Ticks: 2}) {
		t.Fatal("Post() refused the scroll")
	}
	// Make sure the scroll was handled before stopping.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	snap, err := a.Controller().Snapshot(ctx)
	cancel()
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Value(property.Temperature); got != 6700 {
		t.Fatalf("optimistic value = %v, want 6700", got)
	}
	if n := len(link.WritesFor(property.Temperature)); n != 0 {
		t.Fatalf("%d writes before shutdown, want 0", n)
	}

	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}

	writes := link.WritesFor(property.Temperature)
	if len(writes) != 1 || writes[0].Value != 6700 {
		t.Fatalf("writes = %+v, want one write of 6700", writes)
	}
	if link.Value(property.Temperature) != 6700 {
		t.Errorf("daemon value = %v, want 6700", link.Value(property.Temperature))
	}
}

func TestAppJournalsWrites(t *testing.T) {
	link := remotetest.New()
	cfg := testConfig()
	cfg.Sync.Window = config.Duration(5 * time.Millisecond)

	a, err := New(cfg, Options{Link: link})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer a.Stop()
	waitConnected(t, a)

	a.Controller().Post(controller.Reset{Property: property.Brightness})

	journal := a.services.Journal.Ledger
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		counts, err := journal.Counts()
		if err != nil {
			t.Fatal(err)
		}
		if counts[ledger.EventWriteConfirmed] == 1 && counts[ledger.EventWriteDispatched] == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("journal never recorded the confirmed write")
}

func TestAppShutsDownWhenHidden(t *testing.T) {
	cfg := testConfig()
	enabled := true
	cfg.Fade.Enabled = &enabled
	cfg.Fade.Timeout = config.Duration(10 * time.Millisecond)
	cfg.Fade.Duration = config.Duration(20 * time.Millisecond)
	cfg.Fade.Tick = config.Duration(5 * time.Millisecond)

	a, err := New(cfg, Options{Link: remotetest.New()})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer a.Stop()

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("app did not shut down after fading out")
	}
	if !errors.Is(a.Cause(), ErrHidden) {
		t.Errorf("Cause() = %v, want ErrHidden", a.Cause())
	}
}

func TestAppWithoutJournal(t *testing.T) {
	cfg := testConfig()
	disabled := false
	cfg.Journal.Enabled = &disabled

	a, err := New(cfg, Options{Link: remotetest.New()})
	if err != nil {
		t.Fatal(err)
	}
	if a.services.Journal != nil {
		t.Error("journal service created although disabled")
	}
	if err := a.Stop(); err != nil {
		t.Errorf("Stop() before Start() error = %v", err)
	}
}
