// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"sync"
	"time"
)

// PendingMessage is the assistant reply while it streams in.
// One goroutine appends; any goroutine may read.
type PendingMessage struct {
	mu sync.RWMutex

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	content   strings.Builder
	deltas    int
	model     string
	startTime time.Time
	finalized bool
}

// NewPendingMessage starts timing a reply from model.
func NewPendingMessage(model string) *PendingMessage {
	return &PendingMessage{
		model:     model,
		startTime: time.Now(),
	}
}

// Append adds a delta. Appends after Finalize are dropped.
func (p *PendingMessage) Append(delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized || delta == "" {
		return
	}
	p.content.WriteString(delta)
	p.deltas++
}

// Content returns the text received so far.
func (p *PendingMessage) Content() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.content.String()
}

// Deltas returns the number of deltas received so far.
func (p *PendingMessage) Deltas() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deltas
}

// Model returns the model the reply comes from.
func (p *PendingMessage) Model() string {
	return p.model
}

// Elapsed returns the time since the request started.
func (p *PendingMessage) Elapsed() time.Duration {
	return time.Since(p.startTime)
}

// Finalize freezes the reply into an assistant Message with its Metric.
func (p *PendingMessage) Finalize() *Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalized = true
	return NewAssistantMessage(p.content.String(), &Metric{
		Elapsed: time.Since(p.startTime),
		Deltas:  p.deltas,
		Model:   p.model,
	})
}
