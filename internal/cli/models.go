// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model listing and eject commands for the lmchat CLI.
//
// Commands:
//   lmchat models [--json]    List the server's models
//   lmchat eject <model>      Unload a model from the server

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jeranaias/lmchat/internal/config"
	"github.com/jeranaias/lmchat/internal/lmstudio"
)

// commandTimeout bounds the non-streaming model commands.
const commandTimeout = 30 * time.Second

func newClient(cfg *config.Config) *lmstudio.Client {
	return lmstudio.NewClient(&lmstudio.ClientConfig{
		BaseURL: cfg.Server.URL,
		Timeout: commandTimeout,
	})
}

// HandleModels handles the "models" command.
func HandleModels(args Args) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	closeLog, err := SetupLogging(cfg, args)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return ListModels(ctx, newClient(cfg), cfg.Chat.Model, args.JSON, os.Stdout)
}

// ListModels prints the ids the server offers. preferred is marked.
func ListModels(ctx context.Context, client *lmstudio.Client, preferred string, asJSON bool, out io.Writer) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(out, struct {
			Server string               `json:"server"`
			Models []lmstudio.ModelInfo `json:"models"`
		}{client.BaseURL(), models})
	}

	fmt.Fprintf(out, "%s %s\n", TitleStyle.Render("Models at"), client.BaseURL())
	for _, m := range models {
		marker := "  "
		name := m.ID
		if m.ID == preferred {
			marker = "* "
			name = HighlightStyle.Render(m.ID)
		}
		if m.OwnedBy != "" {
			fmt.Fprintf(out, "%s%s %s\n", marker, name, DimStyle.Render("("+m.OwnedBy+")"))
		} else {
			fmt.Fprintf(out, "%s%s\n", marker, name)
		}
	}
	return nil
}

// HandleEject handles the "eject" command.
func HandleEject(args Args) error {
	if args.Target == "" {
		return ErrMissingArgument("model", "lmchat eject llama-3-8b-instruct")
	}
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	closeLog, err := SetupLogging(cfg, args)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := newClient(cfg).EjectModel(ctx, args.Target); err != nil {
		return err
	}
	fmt.Printf("%s Ejected %s\n", SuccessStyle.Render("[OK]"), args.Target)
	return nil
}
