package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"netcrawler/internal/codec"
	"netcrawler/internal/crawler"
	"netcrawler/internal/domain"
	"netcrawler/internal/service"
)

var (
	seedHost    string
	seedAddress string
	seedOS      string
	crawlFormat string
	crawlOutput string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the topology outward from a seed device",
	Long: `Connect to the seed device, read its neighbor table and walk outward
breadth first up to --depth hops. The graph is saved to the database and
written to stdout (or --output) in the chosen format.

Interrupting a crawl stops it at the next node; the partial graph is still
saved and written.`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&seedHost, "seed-host", "", "seed device hostname (required)")
	crawlCmd.Flags().StringVar(&seedAddress, "seed-address", "", "seed device management address (required)")
	crawlCmd.Flags().StringVar(&seedOS, "os", "", "seed OS family (default: crawl.default_os)")
	crawlCmd.Flags().StringVarP(&crawlFormat, "format", "f", "json", "output format: json, yaml, ansible")
	crawlCmd.Flags().StringVarP(&crawlOutput, "output", "o", "", "output file (default: stdout)")
	crawlCmd.MarkFlagRequired("seed-host")
	crawlCmd.MarkFlagRequired("seed-address")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	exporter, err := codec.ExporterFor(crawlFormat)
	if err != nil {
		return err
	}

	var family domain.OSFamily
	if seedOS != "" {
		if family = domain.ParseOSFamily(seedOS); family == domain.OSUnknown {
			return fmt.Errorf("unknown OS family %q", seedOS)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app) error {
		// Stream rather than Subscribe so no progress line is lost on
		// large crawls. Keep logging after an interrupt until drained.
		progress, stopProgress := a.eventBus.Stream(context.WithoutCancel(ctx))
		logged := make(chan struct{})
		go func() {
			defer close(logged)
			logProgress(progress)
		}()

		graph, err := a.svc.Run(ctx, service.CrawlRequest{
			Hostname: seedHost,
			Address:  seedAddress,
			OSFamily: family,
			MaxDepth: a.cfg.Crawl.MaxDepth,
		})
		stopProgress()
		<-logged
		if err != nil {
			if graph == nil {
				return err
			}
			// The crawl finished but could not be saved; still emit it
			log.Printf("Crawl: %v", err)
		}

		stats := graph.Stats()
		status := "complete"
		if graph.Cancelled {
			status = "cancelled"
		}
		fmt.Fprintf(os.Stderr, "Crawl %s %s: %d nodes (%d expanded, %d connected, %d failed, %d denied), %d edges\n",
			graph.ID, status, stats.Nodes, stats.Expanded, stats.Connected, stats.Failed, stats.Denied, stats.Edges)

		return writeExport(exporter, graph, crawlOutput)
	})
}

// writeExport writes graph to path, or stdout when path is empty
func writeExport(exporter codec.Exporter, graph *domain.TopologyGraph, path string) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return exporter.Export(graph, w)
}

// logProgress prints per-node crawl events until events is closed
func logProgress(events <-chan service.Event) {
	for ev := range events {
		node, ok := ev.Payload.(crawler.NodeEvent)
		if !ok {
			continue
		}
		switch string(ev.Type) {
		case crawler.EventNodeExpanded:
			if node.Protocol != "" {
				log.Printf("Crawl: expanded %s via %s (depth %d, %d neighbors)", node.Hostname, node.Protocol, node.Depth, node.Neighbors)
			} else {
				log.Printf("Crawl: expanded %s (depth %d, %d neighbors)", node.Hostname, node.Depth, node.Neighbors)
			}
		case crawler.EventNodeDenied:
			log.Printf("Crawl: denied %s: %s", node.Hostname, node.Reason)
		case crawler.EventNodeFailed:
			log.Printf("Crawl: failed %s: %s", node.Hostname, node.Error)
		}
	}
}
