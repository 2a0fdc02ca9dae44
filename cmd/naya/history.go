package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/naya/history"
	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ history 命令
// =============================================================================

// errHistoryDisabled history.backend 为 none
var errHistoryDisabled = errors.New("chat history is disabled (history.backend = none)")

const previewRunes = 60

func runHistory(ctx context.Context, args []string) error {
	if len(args) < 1 {
		printHistoryUsage(os.Stdout)
		return errors.New("missing history subcommand")
	}

	sub := args[0]
	fs := flag.NewFlagSet("history "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	limit := fs.Int("limit", 0, "Number of messages to show (default: history.limit)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := history.NewStore(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	if store == nil {
		return errHistoryDisabled
	}
	defer store.Close()

	n := *limit
	if n <= 0 {
		n = cfg.History.Limit
	}
	return historyCommand(ctx, sub, store, n, os.Stdout)
}

func historyCommand(ctx context.Context, sub string, store history.Store, limit int, out io.Writer) error {
	switch sub {
	case "list":
		records, err := store.History(ctx, limit)
		if err != nil {
			return fmt.Errorf("load chat history: %w", err)
		}
		return printRecords(out, history.BackendName(store), records)
	case "clear":
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("clear chat history: %w", err)
		}
		fmt.Fprintln(out, "Chat history cleared.")
		return nil
	default:
		printHistoryUsage(out)
		return fmt.Errorf("unknown history subcommand: %s", sub)
	}
}

// printRecords 以表格输出，内容截断为单行预览
func printRecords(w io.Writer, backend string, records []history.Record) error {
	if len(records) == 0 {
		fmt.Fprintf(w, "No chat history (%s).\n", backend)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tROLE\tTOKENS\tCONTENT")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Role, r.TokenCount, preview(r.Content))
	}
	return tw.Flush()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes-1]) + "…"
}

func printHistoryUsage(w io.Writer) {
	fmt.Fprintln(w, `Chat History Commands

Usage:
  naya history <subcommand> [options]

Subcommands:
  list      Show the most recent messages
  clear     Delete all persisted messages

Options:
  --config <path>   Path to configuration file (YAML)
  --limit <n>       Number of messages to list (default: history.limit)`)
}
