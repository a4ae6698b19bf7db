package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/relayctl/internal/config"
	"github.com/dokzlo13/relayctl/internal/controller"
	"github.com/dokzlo13/relayctl/internal/property"
)

type recordingSender struct {
	mu     sync.Mutex
	events []controller.Event
}

func (p *recordingSender) Send(_ context.Context, ev controller.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *recordingSender) last() (controller.ConfigChanged, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return controller.ConfigChanged{}, 0
	}
	cc, _ := p.events[len(p.events)-1].(controller.ConfigChanged)
	return cc, len(p.events)
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReloadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayctl.yaml")
	writeConfig(t, path, `
fade:
  enabled: false
properties:
  temperature:
    default: 4000
  gamma:
    hidden: true
`)

	// The command line pinned the temperature default.
	overrides := func(cfg *config.Config) {
		v := 5000.0
		cfg.Properties.Temperature.Default = &v
	}
	sender := &recordingSender{}
	s := NewReloadService(path, overrides, sender)

	if !s.Reload(context.Background()) {
		t.Fatal("Reload() = false")
	}
	cc, n := sender.last()
	if n != 1 {
		t.Fatalf("%d events sent, want 1", n)
	}
	if cc.FadeEnabled {
		t.Error("fade should be disabled")
	}
	if cc.Defaults.Values[property.Temperature] != 5000 {
		t.Errorf("temperature default = %v, want override 5000", cc.Defaults.Values[property.Temperature])
	}
	if cc.Defaults.Enabled[property.Gamma] {
		t.Error("gamma should be hidden")
	}
}

func TestReloadKeepsSettingsOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayctl.yaml")
	writeConfig(t, path, "sync: [not a map\n")

	sender := &recordingSender{}
	if NewReloadService(path, nil, sender).Reload(context.Background()) {
		t.Error("Reload() of an invalid file = true")
	}
	if _, n := sender.last(); n != 0 {
		t.Errorf("%d events sent, want 0", n)
	}
}

func TestReloadWatchesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relayctl.yaml")
	writeConfig(t, path, "fade:\n  enabled: true\n")

	sender := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewReloadService(path, nil, sender).Start(ctx)

	// Unrelated files in the same directory are ignored.
	writeConfig(t, filepath.Join(dir, "other.yaml"), "x: 1\n")
	writeConfig(t, path, "fade:\n  enabled: false\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cc, n := sender.last(); n > 0 && !cc.FadeEnabled {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("config change was not picked up")
}

func TestReloadWithoutPath(t *testing.T) {
	sender := &recordingSender{}
	NewReloadService("", nil, sender).Start(context.Background())
	if _, n := sender.last(); n != 0 {
		t.Errorf("%d events sent, want 0", n)
	}
}

func TestReloadWaitsForFullInbox(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayctl.yaml")
	writeConfig(t, path, "properties:\n  gamma:\n    hidden: true\n")

	cfg := controller.DefaultConfig()
	cfg.InboxSize = 1
	cfg.Fade.Enabled = false
	ctrl := controller.New(cfg, nil)
	if !ctrl.Post(controller.Interact{}) {
		t.Fatal("first Post() = false")
	}
	if ctrl.Post(controller.Interact{}) {
		t.Fatal("inbox should be full")
	}

	applied := make(chan bool, 1)
	go func() {
		applied <- NewReloadService(path, nil, ctrl).Reload(context.Background())
	}()

	select {
	case <-applied:
		t.Fatal("Reload() returned while the inbox was full")
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	select {
	case ok := <-applied:
		if !ok {
			t.Fatal("Reload() = false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Reload() still blocked after the controller started")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := ctrl.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !snap.Records[property.Gamma].Enabled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("reloaded configuration was never applied")
}
