package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/client"
	"github.com/Caia-Tech/caia-ocr/internal/controller"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
	"github.com/spf13/cobra"
)

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return client.New(server, timeout)
}

func processCMD() *cobra.Command {
	var query string
	var outPath string
	var process = &cobra.Command{
		Use:   "process <file.pdf>",
		Short: "Upload a PDF and OCR every page in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := processFile(cmd.Context(), newClient(cmd), args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := writeResults(outPath, results); err != nil {
					return err
				}
			}
			if query != "" {
				printSearch(cmd.OutOrStdout(), controller.Search(results, query))
			}
			return nil
		},
	}
	process.Flags().StringVarP(&query, "query", "q", "", "search the recognized text")
	process.Flags().StringVarP(&outPath, "out", "o", "", "write all page results to a JSON file")
	return process
}

func searchCMD() *cobra.Command {
	var search = &cobra.Command{
		Use:   "search <session-id> <query>",
		Short: "Search the cached pages of an uploaded document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := newClient(cmd).Results(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSearch(cmd.OutOrStdout(), controller.Search(results, args[1]))
			return nil
		},
	}
	return search
}

// processFile uploads path and runs OCR on every page, printing progress to out
func processFile(ctx context.Context, c *client.Client, path string, out io.Writer) ([]document.PageResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	upload, err := c.UploadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	fmt.Fprintf(out, "Uploaded %s: session %s, %d pages\n", path, upload.SessionID, upload.PageCount)

	start := time.Now()
	results, err := controller.Run(ctx, upload.PageCount, c.Pages(upload.FilePath), func(percent int) {
		fmt.Fprintf(out, "Processing... %d%%\n", percent)
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Processed %d pages in %s\n", len(results), time.Since(start).Round(time.Millisecond))
	return results, nil
}

func writeResults(path string, results []document.PageResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func printSearch(out io.Writer, outcome controller.SearchOutcome) {
	if len(outcome.Matches) == 0 {
		fmt.Fprintf(out, "No matches for %q\n", outcome.Query)
		return
	}
	fmt.Fprintf(out, "%d pages match %q (showing page %d)\n", len(outcome.Matches), outcome.Query, outcome.ActivePage)
	for _, m := range outcome.Matches {
		fmt.Fprintf(out, "  Page %d: %s...\n", m.Page, controller.Snippet(m.Text))
	}
}
