package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the knowledge sources of the configured backend",
	RunE:  runSources,
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.router.Sources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(names) == 0 {
		fmt.Println("No knowledge sources found.")
		return nil
	}
	fmt.Printf("Knowledge sources (%s):\n", cfg.Retrieval.Backend)
	for _, n := range names {
		marker := " "
		if n == cfg.Retrieval.DefaultSource {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, n)
	}
	return nil
}
