package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"docrag/internal/config"
	"docrag/internal/llm"
)

func main() {
	model := flag.String("model", "", "chat model (default from config)")
	temperature := flag.Float64("temperature", -1, "sampling temperature (default from config)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	cfg, cfgPath, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *verbose {
		log.Printf("Using config %s", cfgPath)
	}
	if *model == "" {
		*model = cfg.LLM.Model
	}
	if *temperature < 0 {
		*temperature = float64(cfg.LLM.Temperature)
	}

	apiKey := config.APIKey(cfg.Store.DataDir, cfg.LLM.APIKeyEnv, "openai")
	client := llm.New(apiKey, *model, cfg.LLM.BaseURL, *temperature)

	ctx := context.Background()
	if *verbose {
		log.Printf("Warming up %s at %s", client.Model(), cfg.LLM.BaseURL)
	}
	if err := client.WarmUp(ctx); err != nil {
		log.Fatalf("Model warm-up failed: %v", err)
	}

	fmt.Printf("Chatting with %s. Type 'exit' to quit.\n", client.Model())

	var history []llm.Message
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
