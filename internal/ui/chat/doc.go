// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat view of lmchat.

The chat package is a Bubble Tea front end over app.Controller. The
controller owns every conversation, the connection and the reply in
flight; this package only holds view state and renders the controller's
snapshot.

# Key Components

## Model (model.go, update.go)

The Model struct is the Bubble Tea model of the screen:
  - Viewport over the active conversation
  - Single-line input, switched to an image path prompt by ctrl+o
  - Spinner and elapsed time while a reply streams
  - Live reload of theme, sidebar width and render rate

## Bridge (bridge.go)

The controller calls its observer synchronously, sometimes from inside
Update. Bridge queues those events without blocking and a goroutine feeds
them to the program as EventMsg values:

	bridge := chat.NewBridge()
	ctrl := cli.NewController(cfg, bridge.Observe)
	p := tea.NewProgram(chat.New(chat.Options{Controller: ctrl, Config: cfg}))
	go bridge.Run(ctx, p.Send)

## Rendering (view.go, transcript.go, sidebar.go)

Replies are rendered as markdown. Finalized replies are cached by message
ID; the reply being streamed is re-rendered at most ui.max_fps times per
second.

## Commands (commands.go)

Slash commands typed into the input:
  - /new, /delete, /rename NAME
  - /model [ID], /models
  - /image PATH, /clear-image
  - /copy [N], /export [md|json|yaml]
  - /connect [URL], /disconnect
  - /help, /quit
*/
package chat
