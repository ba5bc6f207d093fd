package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load reference documents into the retrieval collection",
	Long:  `Splits every .txt file of a directory into overlapping chunks, embeds them and stores them in the configured collection.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Retrieval.DocsDir
		}

		cfg.Retrieval.Enabled = true
		rag, err := openRetrieval(cfg, logger)
		if err != nil {
			return fmt.Errorf("open retrieval collection: %w", err)
		}
		if rag == nil {
			return errors.New("retrieval collection unavailable")
		}

		n, err := rag.IngestDir(cmd.Context(), dir)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", dir, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks from %s into %q (%d total)\n",
			n, dir, cfg.Retrieval.Collection, rag.Count())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("dir", "", "Directory of .txt documents (defaults to retrieval.docs_dir)")
}
