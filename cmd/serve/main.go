package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"docrag/internal/config"
	"docrag/internal/embedding"
	"docrag/internal/llm"
	"docrag/internal/retriever"
	"docrag/internal/store"

	"github.com/gorilla/websocket"
)

// Server exposes the retrieval pipeline over HTTP.
type Server struct {
	cfg      *config.AppConfig
	store    *store.Store
	embedder embedding.Provider
	client   *llm.Client
}

func main() {
	port := flag.String("port", "8080", "listen port")
	flag.Parse()

	cfg, cfgPath, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Using config %s", cfgPath)

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	embedKey := config.APIKey(cfg.Store.DataDir, cfg.Embedding.APIKeyEnv, cfg.Embedding.Provider)
	embedder, err := embedding.NewProvider(cfg.Embedding.Provider, embedKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}

	llmKey := config.APIKey(cfg.Store.DataDir, cfg.LLM.APIKeyEnv, "openai")
	srv := &Server{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		client:   llm.New(llmKey, cfg.LLM.Model, cfg.LLM.BaseURL, float64(cfg.LLM.Temperature)),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", srv.handleQuery)
	mux.HandleFunc("/api/stats", srv.handleStats)
	mux.HandleFunc("/api/settings", srv.handleSettings)
	mux.HandleFunc("/ws/chat", srv.handleChatWS)

	log.Printf("Listening on :%s", *port)
	if err := http.ListenAndServe(":"+*port, corsMiddleware(mux)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonResp(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ========== Retrieval helper ==========

func (s *Server) newRetriever(topK int) (*retriever.Retriever, error) {
	if topK <= 0 {
		topK = s.cfg.Retrieval.TopK
	}
	return retriever.New(s.store.Chunks(), s.store, s.embedder, retriever.Options{
		Mode:    s.cfg.Retrieval.Mode,
		Scoring: s.cfg.Retrieval.Scoring,
		TopK:    topK,
		Dedup:   s.cfg.Retrieval.Dedup,
	})
}

// ========== Endpoints ==========

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		jsonErr(w, "question is required", http.StatusBadRequest)
		return
	}

	ret, err := s.newRetriever(req.TopK)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}
	results, err := ret.Search(r.Context(), req.Question)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prompt := llm.BuildRAGPrompt(req.Question, results)
	answer, err := s.client.Chat(r.Context(), nil, prompt)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadGateway)
		return
	}

	jsonResp(w, map[string]interface{}{
		"question": req.Question,
		"answer":   answer,
		"sources":  results,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	pending := len(s.store.PendingChunks(s.embedder.Model()))
	jsonResp(w, map[string]interface{}{
		"documents":       s.store.DocumentCount(),
		"chunks":          s.store.ChunkCount(),
		"pending_chunks":  pending,
		"embedding_model": s.embedder.Model(),
		"chat_model":      s.client.Model(),
		"retrieval_mode":  s.cfg.Retrieval.Mode,
	})
}

// ========== Settings ==========

// handleSettings manages the provider API keys stored encrypted under the
// data dir. GET returns masked keys; POST saves one. Masked values are
// never written back, so a GET-then-POST round trip cannot corrupt a key.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	dataDir := s.cfg.Store.DataDir

	switch r.Method {
	case http.MethodGet:
		keys := config.LoadKeys(dataDir)
		masked := make(map[string]string, len(keys))
		for provider, key := range keys {
			masked[provider] = maskKey(key)
		}
		jsonResp(w, masked)

	case http.MethodPost:
		var req struct {
			Provider string `json:"provider"`
			APIKey   string `json:"api_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.Provider == "" || req.APIKey == "" {
			jsonErr(w, "provider and api_key are required", http.StatusBadRequest)
			return
		}
		if strings.Contains(req.APIKey, "...") {
			jsonErr(w, "refusing to save a masked key", http.StatusBadRequest)
			return
		}

		keys := config.LoadKeys(dataDir)
		keys[req.Provider] = req.APIKey
		if err := config.SaveKeys(dataDir, keys); err != nil {
			jsonErr(w, err.Error(), http.StatusInternalServerError)
			return
		}
		jsonResp(w, map[string]string{"status": "saved", "provider": req.Provider})

	default:
		jsonErr(w, "GET or POST required", http.StatusMethodNotAllowed)
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// ========== Websocket chat ==========

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is a single websocket message to the client. Type is "delta"
// while tokens stream, then "sources" and finally "done".
type wsFrame struct {
	Type    string             `json:"type"`
	Content string             `json:"content,omitempty"`
	Sources []retriever.Result `json:"sources,omitempty"`
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var history []llm.Message
	for {
		var req struct {
			Question string `json:"question"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Question == "" {
			conn.WriteJSON(wsFrame{Type: "error", Content: "question is required"})
			continue
		}

		ret, err := s.newRetriever(0)
		if err != nil {
			conn.WriteJSON(wsFrame{Type: "error", Content: err.Error()})
			continue
		}
		results, err := ret.Search(r.Context(), req.Question)
		if err != nil {
			conn.WriteJSON(wsFrame{Type: "error", Content: err.Error()})
			continue
		}

		prompt := llm.BuildRAGPrompt(req.Question, results)
		reply, err := s.client.ChatStream(r.Context(), history, prompt, func(delta string) error {
			return conn.WriteJSON(wsFrame{Type: "delta", Content: delta})
		})
		if err != nil {
			conn.WriteJSON(wsFrame{Type: "error", Content: fmt.Sprintf("generation failed: %v", err)})
			continue
		}

		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: req.Question},
			llm.Message{Role: llm.RoleAssistant, Content: reply},
		)

		conn.WriteJSON(wsFrame{Type: "sources", Sources: results})
		conn.WriteJSON(wsFrame{Type: "done"})
	}
}
