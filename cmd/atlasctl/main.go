package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"atlas-rag/internal/di"
	"atlas-rag/internal/infra"
	"atlas-rag/internal/infra/config"
	"atlas-rag/internal/infra/logger"
	"atlas-rag/internal/usecase"
)

func main() {
	root := &cobra.Command{
		Use:           "atlasctl",
		Short:         "Manage the Atlas retrieval index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(indexCmd(), deleteCmd(), searchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withComponents loads config, connects to the database and hands the wired
// components to fn.
func withComponents(ctx context.Context, fn func(*di.ApplicationComponents) error) error {
	cfg := config.Load()
	log := logger.New()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := infra.NewPostgresDB(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer pool.Close()

	return fn(di.NewApplicationComponents(cfg, pool, log))
}

func indexCmd() *cobra.Command {
	var documentID string
	var summary string

	cmd := &cobra.Command{
		Use:   "index <files...>",
		Short: "Split and index text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(c *di.ApplicationComponents) error {
				for _, path := range args {
					text, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}
					id := documentID
					if id == "" || len(args) > 1 {
						id = uuid.New().String()
					}
					out, err := c.IndexUsecase.Execute(cmd.Context(), usecase.IndexDocumentInput{
						DocumentID: id,
						Filename:   filepath.Base(path),
						Text:       string(text),
						Summary:    summary,
					})
					if err != nil {
						return fmt.Errorf("failed to index %s: %w", path, err)
					}
					fmt.Printf("%s\t%s\t%d passages\n", id, filepath.Base(path), out.PassageCount)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&documentID, "document-id", "", "document id (default: generated)")
	cmd.Flags().StringVar(&summary, "summary", "", "document-level summary text")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove all passages of a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(c *di.ApplicationComponents) error {
				deleted, err := c.IndexUsecase.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d passages\n", deleted)
				return nil
			})
		},
	}
}

func searchCmd() *cobra.Command {
	var topK int
	var documentIDs []string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run the retrieval pipeline against the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(c *di.ApplicationComponents) error {
				out, err := c.RetrieveUsecase.Execute(cmd.Context(), usecase.RetrieveContextInput{
					Query:       args[0],
					TopK:        topK,
					DocumentIDs: documentIDs,
				})
				if err != nil {
					return err
				}
				for i, ctx := range out.Contexts {
					fmt.Printf("--- %d (document %s, score %.4f, indices %v)\n%s\n",
						i+1, ctx.Anchor.DocumentID, ctx.Score, ctx.Indices, ctx.Content)
				}
				if len(out.Contexts) == 0 {
					fmt.Println("no results")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of results (default: configured)")
	cmd.Flags().StringSliceVar(&documentIDs, "document-id", nil, "restrict to document ids")
	return cmd
}
