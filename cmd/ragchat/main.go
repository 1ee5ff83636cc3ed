package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docrag/internal/chat"
	"docrag/internal/config"
	"docrag/internal/embedding"
	"docrag/internal/llm"
	"docrag/internal/retriever"
	"docrag/internal/store"
)

func main() {
	systemPrompt := flag.String("system-prompt", "You are a helpful assistant. Answer questions using the provided documents. If the documents do not contain the answer, say so.", "system prompt")
	welcome := flag.String("welcome", "Ask me anything about your documents. Type 'exit' to quit.", "welcome message")
	userPrefix := flag.String("user-prefix", "You: ", "prompt prefix for user input")
	botPrefix := flag.String("bot-prefix", "Bot: ", "prefix for model replies")
	topK := flag.Int("top-k", 0, "retrieved chunks per question (default from config)")
	sessionID := flag.String("session", "", "resume an existing chat session")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	cfg, _, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *topK == 0 {
		*topK = cfg.Retrieval.TopK
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	if st.ChunkCount() == 0 {
		log.Fatal("Store has no chunks. Run the indexer, chunker, and embedder first.")
	}

	embedKey := config.APIKey(cfg.Store.DataDir, cfg.Embedding.APIKeyEnv, cfg.Embedding.Provider)
	embedder, err := embedding.NewProvider(cfg.Embedding.Provider, embedKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	ret, err := retriever.New(st.Chunks(), st, embedder, retriever.Options{
		Mode:    cfg.Retrieval.Mode,
		Scoring: cfg.Retrieval.Scoring,
		TopK:    *topK,
		Dedup:   cfg.Retrieval.Dedup,
	})
	if err != nil {
		log.Fatalf("Failed to create retriever: %v", err)
	}

	llmKey := config.APIKey(cfg.Store.DataDir, cfg.LLM.APIKeyEnv, "openai")
	client := llm.New(llmKey, cfg.LLM.Model, cfg.LLM.BaseURL, float64(cfg.LLM.Temperature))

	sessions, err := chat.NewSessionStore(filepath.Join(cfg.Store.DataDir, "sessions"))
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}

	var history []llm.Message
	if *sessionID == "" {
		sess, err := sessions.Create("", client.Model())
		if err != nil {
			log.Fatalf("Failed to create session: %v", err)
		}
		*sessionID = sess.ID
	} else {
		msgs, err := sessions.LoadMessages(*sessionID)
		if err != nil {
			log.Fatalf("Failed to resume session: %v", err)
		}
		for _, m := range msgs {
			history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		}
		if *verbose {
			log.Printf("Resumed session %s with %d messages", *sessionID, len(msgs))
		}
	}
	history = append([]llm.Message{{Role: llm.RoleSystem, Content: *systemPrompt}}, history...)

	ctx := context.Background()
	if err := client.WarmUp(ctx); err != nil {
		log.Fatalf("Model warm-up failed: %v", err)
	}

	fmt.Println(*welcome)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(*userPrefix)
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

		results, err := ret.Search(ctx, input)
		if err != nil {
			log.Printf("Retrieval error: %v", err)
			continue
		}
		if *verbose {
			for _, r := range results {
				log.Printf("Retrieved %s (score %.4f) from %s", r.ChunkID, r.Score, r.FileName)
			}
		}

		prompt := llm.BuildRAGPrompt(input, results)
		reply, err := client.Chat(ctx, history, prompt)
		if err != nil {
			log.Printf("Chat error: %v", err)
			continue
		}
		fmt.Printf("%s%s\n", *botPrefix, reply)

		// History keeps the bare question so the transcript stays readable;
		// only the current turn carries the retrieved passages.
		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: input},
			llm.Message{Role: llm.RoleAssistant, Content: reply},
		)

		var sources []string
		for _, r := range results {
			sources = append(sources, r.ChunkID)
		}
		now := time.Now()
		if err := sessions.AppendMessage(*sessionID, chat.Message{Role: "user", Content: input, Timestamp: now}); err != nil {
			log.Printf("Failed to persist message: %v", err)
		}
		if err := sessions.AppendMessage(*sessionID, chat.Message{Role: "assistant", Content: reply, Sources: sources, Timestamp: now}); err != nil {
			log.Printf("Failed to persist message: %v", err)
		}
	}
	fmt.Printf("Session saved as %s\n", *sessionID)
}
