// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/lmchat/internal/app"
	"github.com/jeranaias/lmchat/internal/config"
)

// =============================================================================
// CONTROLLER MESSAGES
// =============================================================================

// EventMsg carries one controller event into the update loop.
type EventMsg struct {
	Event app.Event
}

// connectDoneMsg reports the end of a connect attempt. The outcome itself
// arrives as events.
type connectDoneMsg struct {
	err error
}

// sendDoneMsg reports that Send returned.
type sendDoneMsg struct {
	err error
}

// =============================================================================
// UI MESSAGES
// =============================================================================

// renderTickMsg re-renders a streaming reply that the limiter held back.
type renderTickMsg struct{}

// statusMsg shows a result line produced outside the controller, such as
// a clipboard copy or an export.
type statusMsg struct {
	text string
	err  error
}

// ConfigReloadedMsg delivers a configuration file change.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}
