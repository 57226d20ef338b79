package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/qa"
)

var askFlags struct {
	questions []string
	repo      string
	sources   bool
}

var askCmd = &cobra.Command{
	Use:   "ask [paths...] -q question [-q follow-up...]",
	Short: "Answer questions about documents without the interactive UI",
	Long: `Processes the given documents, then asks each --question in order as one
conversation, so follow-ups can refer to earlier answers.`,
	Example: `  docchat ask report.pdf -q "What was revenue in 2023?" -q "And in 2022?"
  docchat ask --repo cloudwego/cloudwego.github.io/content/en/docs/eino -q "What is a Graph?"`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringArrayVarP(&askFlags.questions, "question", "q", nil, "question to ask (repeatable)")
	askCmd.Flags().StringVar(&askFlags.repo, "repo", "", "GitHub location to index, owner/repo[/path][@ref]")
	askCmd.Flags().BoolVar(&askFlags.sources, "sources", false, "print the passages each answer used")
	_ = askCmd.MarkFlagRequired("question")
}

func runAsk(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && askFlags.repo == "" {
		return errors.New("give at least one path or --repo")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	var sources []extract.Source
	if len(args) > 0 {
		if sources, err = a.loadPaths(args); err != nil {
			return err
		}
	}
	if askFlags.repo != "" {
		remote, err := a.loadRepo(ctx, askFlags.repo)
		if err != nil {
			return err
		}
		sources = append(sources, remote...)
	}

	res, err := a.session.Ingest(ctx, sources)
	if err != nil {
		return fmt.Errorf("process documents: %w", err)
	}
	a.logger.Info("Documents ready", "documents", len(res.Documents), "chunks", res.Chunks)

	out := cmd.OutOrStdout()
	for _, q := range askFlags.questions {
		ans, err := a.session.Ask(ctx, q)
		if err != nil {
			return fmt.Errorf("ask %q: %w", q, err)
		}
		printAnswer(out, q, ans, askFlags.sources)
	}
	return nil
}

func printAnswer(w io.Writer, question string, ans *qa.Answer, withSources bool) {
	fmt.Fprintf(w, "You: %s\nBot: %s\n", question, ans.Text)
	if withSources {
		for i, r := range ans.Sources {
			fmt.Fprintf(w, "  [%d] %s (chunk %d, score %.3f)\n", i+1, r.Chunk.Source, r.Chunk.Index, r.Score)
		}
	}
	fmt.Fprintln(w)
}
