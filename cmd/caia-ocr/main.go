package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:          "caia-ocr",
		Short:        "Upload PDFs, OCR every page and search the text",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("server", getenv("CAIA_OCR_SERVER", "http://localhost:3000"), "OCR server base URL")
	root.PersistentFlags().Duration("timeout", 5*time.Minute, "per-request timeout (0 = none)")

	root.AddCommand(processCMD(), searchCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
