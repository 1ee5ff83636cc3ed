package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"unicode/utf8"

	"docrag/internal/config"
	"docrag/internal/extractor"
	"docrag/internal/llm"
)

// truncateToRune cuts s to at most max bytes, backing up so the cut never
// splits a multi-byte UTF-8 rune.
func truncateToRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func main() {
	model := flag.String("model", "", "chat model (default from config)")
	language := flag.String("language", "English", "summary language")
	temperature := flag.Float64("temperature", -1, "sampling temperature (default from config)")
	contextWindow := flag.Int("context-window", 120000, "max characters of document text sent to the model")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.pdf>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	pdfPath := flag.Arg(0)

	cfg, _, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *model == "" {
		*model = cfg.LLM.Model
	}
	if *temperature < 0 {
		*temperature = float64(cfg.LLM.Temperature)
	}

	doc, err := extractor.ExtractPDF(pdfPath)
	if err != nil {
		log.Fatalf("Failed to extract %s: %v", pdfPath, err)
	}
	text := doc.Content
	if len(text) > *contextWindow {
		if *verbose {
			log.Printf("Truncating document from %d to %d characters", len(text), *contextWindow)
		}
		text = truncateToRune(text, *contextWindow)
	}
	fmt.Printf("Loaded %s (%d characters).\n", doc.FileName, len(text))

	apiKey := config.APIKey(cfg.Store.DataDir, cfg.LLM.APIKeyEnv, "openai")
	client := llm.New(apiKey, *model, cfg.LLM.BaseURL, *temperature)

	ctx := context.Background()
	if err := client.WarmUp(ctx); err != nil {
		log.Fatalf("Model warm-up failed: %v", err)
	}

	fmt.Println("Generating summary...")
	summary, err := client.Summarize(ctx, text, *language)
	if err != nil {
		log.Fatalf("Summary failed: %v", err)
	}
	fmt.Printf("\n%s\n\n", summary)

	systemPrompt := fmt.Sprintf(
		"You answer questions about the following document. Base your answers only on its content.\n\n%s", text)
	history := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}

	fmt.Println("Ask questions about the document. Type 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" {
			break
		}

		reply, err := client.Chat(ctx, history, input)
		if err != nil {
			log.Printf("Chat error: %v", err)
			continue
		}
		fmt.Printf("Bot: %s\n", reply)

		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: input},
			llm.Message{Role: llm.RoleAssistant, Content: reply},
		)
	}
}
