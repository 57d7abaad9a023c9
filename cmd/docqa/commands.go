package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docqa-go/pkg/log"

	"github.com/spf13/cobra"
)

func newIngestCommand(opts *rootOptions) *cobra.Command {
	var question string
	var topK int
	cmd := &cobra.Command{
		Use:   "ingest <pdf>",
		Short: "Index a PDF, replacing the current document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("读取文件失败: %w", err)
			}
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			out := cmd.OutOrStdout()
			fileName := filepath.Base(args[0])
			if a.Config.Ingest.Mode == "async" {
				doc, err := a.Documents.Submit(cmd.Context(), a.Session, fileName, data)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "queued %s (id %d)\n", doc.FileName, doc.ID)
				return nil
			}

			outcome, err := a.Documents.Ingest(cmd.Context(), a.Session, fileName, data)
			if err != nil {
				return err
			}
			for _, w := range outcome.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			printDocument(out, &outcome.Document)
			if question == "" {
				return nil
			}
			return ask(cmd, a, question, topK)
		},
	}
	cmd.Flags().StringVar(&question, "ask", "", "Question to ask once the document is indexed")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of segments to retrieve")
	return cmd
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the current document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()
			return ask(cmd, a, strings.Join(args, " "), topK)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of segments to retrieve")
	return cmd
}

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the segments most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			results, err := a.Search.Search(cmd.Context(), a.Session, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			printSources(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of segments to retrieve")
	return cmd
}

func newClearCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the index of the current document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			warnings, err := a.Documents.Clear(cmd.Context(), a.Session)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List processed documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			docs, err := a.Documents.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := range docs {
				printDocument(out, &docs[i])
			}
			return nil
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show questions asked about the current document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer log.Sync()

			records, err := a.History.History(cmd.Context(), a.Session)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "[%s] Q: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Question)
				fmt.Fprintf(out, "A: %s\n\n", r.Answer)
			}
			return nil
		},
	}
}
