package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"docrag/internal/chunker"
	"docrag/internal/config"
	"docrag/internal/store"
)

func main() {
	maxTokens := flag.Int("max-tokens", 0, "tokens per chunk (default from config)")
	overlap := flag.Int("overlap", -1, "overlapping tokens between adjacent chunks (default from config)")
	flag.Parse()

	cfg, _, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *maxTokens == 0 {
		*maxTokens = cfg.Chunker.MaxTokens
	}
	if *overlap < 0 {
		*overlap = cfg.Chunker.Overlap
	}

	tok, err := chunker.NewTokenizer(cfg.Chunker.Encoding)
	if err != nil {
		log.Fatalf("Failed to load tokenizer %s: %v", cfg.Chunker.Encoding, err)
	}
	splitter, err := chunker.NewSplitter(tok, *maxTokens, *overlap)
	if err != nil {
		log.Fatalf("Invalid chunker settings: %v", err)
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	docs := st.Documents()
	if len(docs) == 0 {
		log.Fatal("Store has no documents. Run the indexer first.")
	}

	start := time.Now()
	total := 0
	for i := range docs {
		chunks := splitter.Split(&docs[i])
		if err := st.ReplaceDocumentChunks(docs[i].ID, chunks); err != nil {
			log.Fatalf("Failed to store chunks for %s: %v", docs[i].FileName, err)
		}
		total += len(chunks)
		fmt.Printf("Chunked %s into %d chunks\n", docs[i].FileName, len(chunks))
	}

	if err := st.Save(); err != nil {
		log.Fatalf("Failed to save store: %v", err)
	}
	fmt.Printf("Chunked %d documents into %d chunks in %v. Store has %d chunks.\n",
		len(docs), total, time.Since(start).Round(time.Millisecond), st.ChunkCount())
}
