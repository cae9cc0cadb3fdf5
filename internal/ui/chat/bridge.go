// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lmchat/internal/app"
)

// Bridge carries controller events into a running program. Observe never
// blocks, so the controller may emit from inside Update or from the
// goroutine streaming a reply. Events keep their order.
type Bridge struct {
	mu    sync.Mutex
	queue []app.Event
	wake  chan struct{}
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

// Observe queues e. It is an app.Observer.
func (b *Bridge) Observe(e app.Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued events as EventMsg through send until ctx is done.
// Pass tea.Program.Send.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}

		for _, e := range b.drain() {
			send(EventMsg{Event: e})
		}
	}
}

func (b *Bridge) drain() []app.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.queue
	b.queue = nil
	return events
}
