package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nidhogg/agri-assist/internal/workflow"
)

var (
	askProvider string
	askModel    string
	askTopK     int
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer one query in-process and print the JSON result",
	Long: `Answer a query without a running server.

Planning questions run their whole workflow before the answer is printed.
Example:
  agri ask "What is the paddy price in Bargarh mandi today?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askProvider, "provider", "", "Preferred generation provider id")
	askCmd.Flags().StringVar(&askModel, "model", "", "Model for the preferred provider")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "Passages to retrieve (default from config)")
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	query := strings.TrimSpace(strings.Join(args, " "))
	ans, err := a.workflows.Answer(ctx, query, workflow.RunOptions{
		TopK:     askTopK,
		Provider: askProvider,
		Model:    askModel,
	})
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ans)
}
