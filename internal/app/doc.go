// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app holds the Controller, the single owner of application state.
//
// Front ends never touch the transcript or the client directly. They call
// Controller actions (Connect, SelectModel, Send, ...) and render from
// Snapshot plus the events delivered to their Observer.
//
// # Usage
//
//	ctrl := app.NewController(app.Options{Observer: func(e app.Event) {
//	    if d, ok := e.(app.DeltaEvent); ok {
//	        fmt.Print(d.Delta)
//	    }
//	}})
//	if err := ctrl.Connect(ctx, "http://localhost:1234"); err != nil {
//	    return err
//	}
//	reply, err := ctrl.Send(ctx, "Hello!")
package app
