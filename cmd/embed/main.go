package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"docrag/internal/config"
	"docrag/internal/embedding"
	"docrag/internal/store"
)

func main() {
	batchSize := flag.Int("batch-size", 0, "texts per embedding request (default from config)")
	concurrency := flag.Int("concurrency", 0, "parallel embedding requests (default from config)")
	flag.Parse()

	cfg, _, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *batchSize == 0 {
		*batchSize = cfg.Embedding.BatchSize
	}
	if *concurrency == 0 {
		*concurrency = cfg.Embedding.Concurrency
	}

	apiKey := config.APIKey(cfg.Store.DataDir, cfg.Embedding.APIKeyEnv, cfg.Embedding.Provider)
	if apiKey == "" {
		log.Fatalf("No API key for embedding provider %q (set %s)", cfg.Embedding.Provider, cfg.Embedding.APIKeyEnv)
	}
	provider, err := embedding.NewProvider(cfg.Embedding.Provider, apiKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	pending := st.PendingChunks(provider.Model())
	if len(pending) == 0 {
		fmt.Printf("All %d chunks already embedded with %s. Nothing to do.\n", st.ChunkCount(), provider.Model())
		return
	}
	fmt.Printf("Embedding %d of %d chunks with %s...\n", len(pending), st.ChunkCount(), provider.Model())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	batcher := embedding.NewBatcher(provider, *batchSize, *concurrency, cfg.Embedding.MaxRetries)

	start := time.Now()
	err = batcher.Run(ctx, pending,
		func(chunkID string, vec []float32) error {
			return st.SetEmbedding(chunkID, vec, provider.Model())
		},
		func(total, done int) {
			fmt.Printf("\rProgress: %d / %d", done, total)
		})
	fmt.Println()

	// Embeddings written before an interrupt or failure are kept, so the
	// next run resumes where this one stopped.
	if saveErr := st.Save(); saveErr != nil {
		log.Fatalf("Failed to save store: %v", saveErr)
	}
	if err != nil {
		log.Fatalf("Embedding stopped: %v", err)
	}
	fmt.Printf("Embedded %d chunks in %v.\n", len(pending), time.Since(start).Round(time.Second))
}
