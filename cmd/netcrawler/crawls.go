package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"netcrawler/internal/codec"
	"netcrawler/internal/repository/sqlite"
)

var (
	crawlsLimit  int
	showFormat   string
	importFormat string
)

var crawlsCmd = &cobra.Command{
	Use:   "crawls",
	Short: "List, show and import stored crawls",
	RunE:  runCrawlsList,
}

var crawlsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored crawls, newest first",
	RunE:  runCrawlsList,
}

var crawlsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Export a stored crawl",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := codec.ExporterFor(showFormat)
		if err != nil {
			return err
		}
		return withRepository(func(repo *sqlite.Repository) error {
			graph, err := repo.GetCrawl(context.Background(), args[0])
			if err != nil {
				return err
			}
			if graph == nil {
				return fmt.Errorf("crawl %s not found", args[0])
			}
			return exporter.Export(graph, os.Stdout)
		})
	},
}

var crawlsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Store a crawl exported as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := importFormat
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(args[0]), ".")
		}
		importer, err := codec.ImporterFor(format)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		graph, err := importer.Parse(f)
		if err != nil {
			return fmt.Errorf("import %s: %w", args[0], err)
		}
		if graph.ID == "" {
			graph.ID = uuid.NewString()
		}

		return withRepository(func(repo *sqlite.Repository) error {
			if err := repo.SaveCrawl(context.Background(), graph); err != nil {
				return err
			}
			stats := graph.Stats()
			fmt.Printf("Imported crawl %s from %s (%d nodes, %d edges)\n", graph.ID, graph.Seed, stats.Nodes, stats.Edges)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(crawlsCmd)
	crawlsCmd.AddCommand(crawlsListCmd, crawlsShowCmd, crawlsImportCmd)

	crawlsCmd.PersistentFlags().IntVarP(&crawlsLimit, "limit", "n", 20, "maximum crawls to list")
	crawlsShowCmd.Flags().StringVarP(&showFormat, "format", "f", "json", "output format: json, yaml, ansible")
	crawlsImportCmd.Flags().StringVarP(&importFormat, "format", "f", "", "input format: json, yaml (default: from extension)")
}

func runCrawlsList(cmd *cobra.Command, args []string) error {
	return withRepository(func(repo *sqlite.Repository) error {
		crawls, err := repo.ListCrawls(context.Background(), crawlsLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSEED\tDEPTH\tSTARTED\tNODES\tEDGES\tFAILED\tDENIED\tSTATUS")
		for _, c := range crawls {
			status := "complete"
			switch {
			case c.Cancelled:
				status = "cancelled"
			case c.FinishedAt == nil:
				status = "incomplete"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%s\n", c.ID, c.Seed, c.MaxDepth,
				c.StartedAt.Local().Format("2006-01-02 15:04:05"),
				c.Stats.Nodes, c.Stats.Edges, c.Stats.Failed, c.Stats.Denied, status)
		}
		return tw.Flush()
	})
}

// withRepository opens the configured database for fn
func withRepository(fn func(*sqlite.Repository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()
	return fn(repo)
}
