package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sola-scriptura-retrieval/internal/app"
	"github.com/sola-scriptura-retrieval/internal/config"
	"github.com/sola-scriptura-retrieval/internal/corpus"
	"github.com/sola-scriptura-retrieval/internal/index"
	"github.com/sola-scriptura-retrieval/pkg/db"
	"github.com/sola-scriptura-retrieval/pkg/embeddings"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loadConfig reads the service configuration and applies the --cache override
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("cache"); path != "" {
		cfg.CorpusCachePath = path
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func fetchCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Populate the local corpus cache from the configured source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			loader, err := app.NewLoader(cfg, logger, nil)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			var c *corpus.Corpus
			if force {
				c, err = loader.Refresh(ctx)
			} else {
				c, err = loader.Load(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records, %d dimensions (%s)\n",
				cfg.CorpusCachePath, c.Len(), c.Dim(), loader.State())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "refetch even if a valid cache exists")
	return cmd
}

func inspectCmd() *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Validate a corpus file and print its size and a sample",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := corpusPath(cmd, args)
			if err != nil {
				return err
			}
			c, err := readCorpus(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "records:    %d\n", c.Len())
			fmt.Fprintf(out, "dimensions: %d\n", c.Dim())
			for i := 0; i < min(sample, c.Len()); i++ {
				rec, _ := c.At(i)
				fmt.Fprintf(out, "  [%d] %s: %s\n", i, rec.Reference, truncate(rec.Text, 72))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 3, "number of records to print")
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		k      int
		vector string
	)
	cmd := &cobra.Command{
		Use:   "search [question]",
		Short: "Query the cached corpus offline, by question or raw vector",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := readCorpus(cfg.CorpusCachePath)
			if err != nil {
				return err
			}
			ix, err := index.Build(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			var q []float32
			switch {
			case vector != "":
				q, err = parseVector(vector)
			case len(args) == 1:
				var svc *embeddings.EmbeddingsService
				svc, err = embeddings.NewFromConfig(ctx, app.EmbeddingsConfig(cfg))
				if err == nil {
					defer svc.Close()
					q, err = svc.EmbedQuery(ctx, args[0])
				}
			default:
				return fmt.Errorf("either a question or --vector is required")
			}
			if err != nil {
				return err
			}

			neighbors, err := ix.Search(ctx, q, k)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDISTANCE\tREFERENCE\tTEXT")
			for _, n := range neighbors {
				rec, _ := c.At(n.ID)
				fmt.Fprintf(w, "%d\t%.6f\t%s\t%s\n", n.ID, n.Distance, rec.Reference, truncate(rec.Text, 60))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of results")
	cmd.Flags().StringVar(&vector, "vector", "", "comma separated query vector instead of a question")
	return cmd
}

func exportPGCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export-pg",
		Short: "Write a corpus file from the verses table of a pgvector database",
		Long: "Reads every verse with a non-null embedding from PostgreSQL (POSTGRES_URI) " +
			"in canonical order and writes it atomically as a corpus JSON file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				output = cfg.CorpusCachePath
			}

			logger, err := app.NewLogger(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			pgDB, err := db.OpenPostgres(ctx, os.Getenv("POSTGRES_URI"))
			if err != nil {
				return err
			}
			defer pgDB.Close()

			var count int
			err = corpus.WriteFile(output, func(w io.Writer) error {
				enc := corpus.NewEncoder(w)
				n, err := db.EachEmbeddedVerse(ctx, pgDB, func(v db.EmbeddedVerse) error {
					return enc.Encode(corpus.Record{
						Reference: v.Reference(),
						Text:      v.Text,
						Embedding: v.Embedding.Slice(),
					})
				})
				count = n
				if err != nil {
					return err
				}
				return enc.Close()
			})
			if err != nil {
				return fmt.Errorf("export corpus: %w", err)
			}
			logger.Info("Exported corpus", zap.String("output", output), zap.Int("records", count))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (defaults to the cache path)")
	return cmd
}

func corpusPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.CorpusCachePath, nil
}

func readCorpus(path string) (*corpus.Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return corpus.Decode(f)
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(strings.Trim(s, "[] "), ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
