package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dokzlo13/relayctl/internal/controller"
)

// snapshotMsg delivers controller state to the model.
type snapshotMsg controller.Snapshot

// Bridge forwards controller snapshots to the program. Publish never blocks:
// only the newest snapshot is kept until the program takes it.
type Bridge struct {
	mu     sync.Mutex
	latest controller.Snapshot
	have   bool
	ready  chan struct{}
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{ready: make(chan struct{}, 1)}
}

// Publish stores snap, replacing any snapshot not yet forwarded. It is meant
// to be registered with controller.OnSnapshot.
func (b *Bridge) Publish(snap controller.Snapshot) {
	b.mu.Lock()
	b.latest = snap
	b.have = true
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Run forwards snapshots to send until ctx is cancelled. send may block.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.ready:
		}

		snap, ok := b.take()
		if ok {
			send(snapshotMsg(snap))
		}
	}
}

func (b *Bridge) take() (controller.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.have {
		return controller.Snapshot{}, false
	}
	b.have = false
	return b.latest, true
}
