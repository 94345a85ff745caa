package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/docqa/pkg/uploads"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf> [file.pdf ...]",
	Short: "Replace the index with the given PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make([]uploads.File, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, uploads.File{Name: filepath.Base(path), Data: data})
		}

		_, svc, _, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		rep, err := svc.UploadPDFs(cmd.Context(), files)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderReport(rep))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
