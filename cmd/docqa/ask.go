package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question against the current index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, _, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		res := svc.AskQuestion(cmd.Context(), strings.Join(args, " "))
		if !res.Success {
			return errors.New(res.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderAnswer(res, showSources))
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&showSources, "sources", true, "Print the documents the answer drew on")
	rootCmd.AddCommand(askCmd)
}
