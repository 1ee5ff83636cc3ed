package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"docrag/internal/config"
	"docrag/internal/extractor"
	"docrag/internal/store"
)

func main() {
	replace := flag.Bool("replace", false, "wipe the store before indexing")
	deletePath := flag.String("delete", "", "remove the document indexed from this path (and its chunks) instead of indexing")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	cfg, _, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *deletePath != "" {
		deleteDocument(cfg.Store.DataDir, *deletePath)
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <directory>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	dir := flag.Arg(0)

	var st *store.Store
	if *replace {
		st, err = store.Replace(cfg.Store.DataDir)
	} else {
		st, err = store.Open(cfg.Store.DataDir)
	}
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	start := time.Now()
	indexed, skipped, failed := 0, 0, 0

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		doc, err := extractor.ExtractFile(path)
		if errors.Is(err, extractor.ErrUnsupported) {
			if *verbose {
				log.Printf("Skipping %s (unsupported type)", path)
			}
			skipped++
			return nil
		}
		if err != nil {
			log.Printf("Failed to extract %s: %v", path, err)
			failed++
			return nil
		}

		if err := st.UpsertDocument(doc); err != nil {
			log.Printf("Failed to index %s: %v", path, err)
			failed++
			return nil
		}
		indexed++
		fmt.Printf("Indexed %s (%d characters)\n", path, doc.ContentLength)
		return nil
	})
	if err != nil {
		log.Fatalf("Walk failed: %v", err)
	}

	if err := st.Save(); err != nil {
		log.Fatalf("Failed to save store: %v", err)
	}
	fmt.Printf("Indexed %d documents (%d skipped, %d failed) in %v. Store has %d documents.\n",
		indexed, skipped, failed, time.Since(start).Round(time.Millisecond), st.DocumentCount())
}

// deleteDocument removes one document and its chunks from the store. The ID
// is derived from the path the same way indexing derives it, so the path
// given here must match the one used at index time.
func deleteDocument(dataDir, path string) {
	st, err := store.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	docID := extractor.DocumentID(path)
	before := st.ChunkCount()
	if err := st.DeleteDocument(docID); err != nil {
		log.Fatalf("Failed to delete %s: %v", path, err)
	}
	if err := st.Save(); err != nil {
		log.Fatalf("Failed to save store: %v", err)
	}
	fmt.Printf("Deleted document %s (%s) and %d chunks. Store has %d documents.\n",
		docID, path, before-st.ChunkCount(), st.DocumentCount())
}
