package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ragent/internal/ui"
)

var retrieveTopK int

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Query the knowledge index directly",
	Long: `retrieve indexes the knowledge directory, embeds the query and prints
the most similar documents with their scores. Useful for checking what
the agent would see as context for a given task.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRetrieve(cmd, strings.Join(args, " "))
	},
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveTopK, "top-k", 0, "documents to return (default from config)")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, query string) error {
	logger := newLogger()
	console := ui.NewConsole(os.Stdout)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	topK := cfg.TopK
	if retrieveTopK > 0 {
		topK = retrieveTopK
	}

	retriever, err := buildRetriever(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if retriever.Size() == 0 {
		console.Info("no documents indexed under %s", cfg.KnowledgeDir)
		return nil
	}

	docs, err := retriever.Retrieve(cmd.Context(), query, topK)
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	console.Title("RETRIEVAL")
	for _, doc := range docs {
		console.Info("%.4f  %s", doc.Score, doc.Name)
		console.Delta(doc.Content)
		console.Newline()
		console.Newline()
	}
	return nil
}
