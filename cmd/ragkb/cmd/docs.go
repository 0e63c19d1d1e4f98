package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragkb/internal/domain"
)

func newDocsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage documents in the store",
		Long: `Adds, lists and removes documents directly in the document store.

These commands are only useful with a persistent store (store.type: sqlite).`,
	}
	cmd.AddCommand(newDocsAddCmd(a))
	cmd.AddCommand(newDocsListCmd(a))
	cmd.AddCommand(newDocsRemoveCmd(a))
	cmd.AddCommand(newDocsClearCmd(a))
	return cmd
}

// openStoreOnly opens the document store without building an index.
func (a *app) openStoreOnly(ctx context.Context) error {
	if a.cfg.Store.Type != "sqlite" {
		a.logger.Warn("memory store does not persist between runs", zap.String("store", a.cfg.Store.Type))
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = st
	return nil
}

func newDocsAddCmd(a *app) *cobra.Command {
	var (
		title string
		id    string
	)

	cmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Add a document from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
				if title == "" {
					title = filepath.Base(args[0])
				}
			}
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			text := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
			if text == "" {
				return fmt.Errorf("%w: document text is empty", domain.ErrInvalidArgument)
			}

			if err := a.openStoreOnly(ctx); err != nil {
				return err
			}
			doc, err := a.store.Add(ctx, domain.Document{ID: id, Title: title, Text: text})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (default: file name)")
	cmd.Flags().StringVar(&id, "id", "", "Document ID; an existing document with this ID is replaced")
	return cmd
}

func newDocsListCmd(a *app) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.openStoreOnly(ctx); err != nil {
				return err
			}
			docs, err := a.store.GetAll(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut || !isTerminal(out) {
				return writeJSON(out, docs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tRUNES\tCREATED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Title, len([]rune(d.Text)), d.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newDocsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Remove documents by ID",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.openStoreOnly(ctx); err != nil {
				return err
			}
			for _, id := range args {
				if err := a.store.Remove(ctx, id); err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
			}
			return nil
		},
	}
}

func newDocsClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every document from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.openStoreOnly(ctx); err != nil {
				return err
			}
			return a.store.Clear(ctx)
		},
	}
}
