package main

import (
	"fmt"
	"io"
	"strings"

	"docqa-go/internal/app"
	"docqa-go/internal/model"

	"github.com/spf13/cobra"
)

func ask(cmd *cobra.Command, a *app.App, question string, topK int) error {
	answer, err := a.Chat.Ask(cmd.Context(), a.Session, question, topK)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)
	if answer.LowConfidence {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: best match scored %.3f, the answer may not come from the document\n", answer.TopScore)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	printSources(out, answer.Sources)
	return nil
}

func printDocument(out io.Writer, doc *model.DocumentDTO) {
	fmt.Fprintf(out, "#%d %s [%s] pages=%d segments=%d", doc.ID, doc.FileName, doc.Status, doc.PageCount, doc.SegmentCount)
	if doc.Location != "" {
		fmt.Fprintf(out, " %s", doc.Location)
	}
	if doc.ErrorMsg != "" {
		fmt.Fprintf(out, " error=%q", doc.ErrorMsg)
	}
	fmt.Fprintln(out)
}

// printSources 每个分块只打印第一行的前 80 个字符。
func printSources(out io.Writer, results []model.ScoredSegment) {
	for i, r := range results {
		text := strings.TrimSpace(r.Text)
		if n := strings.IndexByte(text, '\n'); n >= 0 {
			text = text[:n]
		}
		if runes := []rune(text); len(runes) > 80 {
			text = string(runes[:80]) + "..."
		}
		fmt.Fprintf(out, "%2d. [page %d, score %.3f] %s\n", i+1, r.Page, r.Score, text)
	}
}
