package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bull/docchat/internal/source"
	"github.com/bull/docchat/internal/tui"
)

var chatFlags struct {
	watch   bool
	repo    string
	logFile string
}

var chatCmd = &cobra.Command{
	Use:   "chat [paths...]",
	Short: "Chat with your documents in the terminal",
	Long: `Opens an interactive chat. Paths (files, directories or globs) are processed on
start; use /ingest inside the chat to process other documents.

With --watch, changes to the given paths re-process the documents.
With --repo owner/repo[/path][@ref], documents are fetched from GitHub first.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVarP(&chatFlags.watch, "watch", "w", false, "re-process documents when the given paths change")
	chatCmd.Flags().StringVar(&chatFlags.repo, "repo", "", "GitHub location to index, owner/repo[/path][@ref]")
	chatCmd.Flags().StringVar(&chatFlags.logFile, "log-file", "", "write logs to this file (discarded by default)")
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatFlags.watch && len(args) == 0 {
		return errors.New("--watch needs at least one path")
	}
	if chatFlags.watch && chatFlags.repo != "" {
		return errors.New("--watch cannot be combined with --repo")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if chatFlags.logFile != "" {
		f, err := os.OpenFile(chatFlags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	a, err := newApp(ctx, logOut)
	if err != nil {
		return err
	}
	defer a.close()

	opts := tui.Options{Context: ctx, Load: a.loadPaths}

	if chatFlags.repo != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Fetching %s...\n", chatFlags.repo)
		sources, err := a.loadRepo(ctx, chatFlags.repo)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			local, err := a.loadPaths(args)
			if err != nil {
				return err
			}
			sources = append(sources, local...)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processing %d documents...\n", len(sources))
		if _, err := a.session.Ingest(ctx, sources); err != nil {
			return fmt.Errorf("process documents: %w", err)
		}
	} else {
		opts.Paths = args
	}

	if chatFlags.watch {
		w, err := source.NewWatcher(a.registry.Supports, 0, a.logger)
		if err != nil {
			return err
		}
		defer w.Close()
		for _, p := range args {
			if strings.ContainsAny(p, "*?[") {
				p = filepath.Dir(p)
			}
			if err := w.Add(p); err != nil {
				return err
			}
		}
		opts.Changes = w.Watch(ctx)
	}

	_, err = tea.NewProgram(tui.New(a.session, opts), tea.WithAltScreen()).Run()
	return err
}
