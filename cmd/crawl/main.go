package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"docrag/internal/crawler"
)

func main() {
	outDir := flag.String("out", "corpus", "output directory")
	maxFiles := flag.Int("max-files", 0, "stop after saving this many files (0 = no limit)")
	delay := flag.Duration("delay", 200*time.Millisecond, "pause between requests")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <start-url>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	startURL := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := crawler.New(*outDir, *maxFiles, crawler.WithDelay(*delay))

	start := time.Now()
	stats, err := c.Crawl(ctx, startURL)
	if err != nil && err != context.Canceled {
		log.Fatalf("Crawl failed: %v", err)
	}
	if err == context.Canceled {
		fmt.Println("Interrupted.")
	}
	fmt.Printf("Crawl finished in %v: %d fetched, %d saved, %d already present.\n",
		time.Since(start).Round(time.Millisecond), stats.Fetched, stats.Saved, stats.Skipped)
}
