package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/docqa/pkg/uploads"
	"github.com/Protocol-Lattice/docqa/pkg/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Rebuild the index whenever PDFs in a directory change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, svc, logger, err := setup(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		w := &watch.Watcher{
			Dir:      args[0],
			Debounce: watchDebounce,
			Logger:   logger,
			Rebuild: func(ctx context.Context, files []uploads.File) error {
				_, err := svc.UploadPDFs(ctx, files)
				return err
			},
		}
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", time.Second, "Quiet period before rebuilding")
	rootCmd.AddCommand(watchCmd)
}
