package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docrag/internal/retriever"
)

// fakeChatServer mimics an OpenAI-compatible /chat/completions endpoint.
func fakeChatServer(t *testing.T, reply string, gotReq *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

// ========== Chat ==========

func TestChatSendsHistoryAndReturnsReply(t *testing.T) {
	var gotReq map[string]interface{}
	srv := fakeChatServer(t, "The capital is Paris.", &gotReq)
	defer srv.Close()

	c := New("test-key", "test-model", srv.URL, 0.7)
	history := []Message{
		{Role: RoleUser, Content: "Hello"},
		{Role: RoleAssistant, Content: "Hi there"},
	}
	reply, err := c.Chat(context.Background(), history, "What is the capital of France?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "The capital is Paris." {
		t.Errorf("reply = %q", reply)
	}

	msgs, ok := gotReq["messages"].([]interface{})
	if !ok || len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3 (history + new)", len(msgs))
	}
	last := msgs[2].(map[string]interface{})
	if last["role"] != "user" || last["content"] != "What is the capital of France?" {
		t.Errorf("last message = %v", last)
	}
	if gotReq["model"] != "test-model" {
		t.Errorf("model = %v", gotReq["model"])
	}
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "model not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("key", "missing-model", srv.URL, 0)
	if _, err := c.Chat(context.Background(), nil, "hi"); err == nil {
		t.Error("expected error from 404 response")
	}
}

func TestWarmUp(t *testing.T) {
	var gotReq map[string]interface{}
	srv := fakeChatServer(t, "ok", &gotReq)
	defer srv.Close()

	c := New("key", "m", srv.URL, 0)
	if err := c.WarmUp(context.Background()); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if gotReq["max_tokens"] != float64(1) {
		t.Errorf("warm-up max_tokens = %v, want 1", gotReq["max_tokens"])
	}
}

// ========== Summarize ==========

func TestSummarizePrompt(t *testing.T) {
	var gotReq map[string]interface{}
	srv := fakeChatServer(t, "A summary.", &gotReq)
	defer srv.Close()

	c := New("key", "m", srv.URL, 0)
	out, err := c.Summarize(context.Background(), "Long document text.", "Spanish")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "A summary." {
		t.Errorf("out = %q", out)
	}
	msgs := gotReq["messages"].([]interface{})
	content := msgs[0].(map[string]interface{})["content"].(string)
	if !strings.Contains(content, "Summarize the following text in Spanish") {
		t.Errorf("prompt missing language instruction: %q", content)
	}
	if !strings.Contains(content, "Long document text.") {
		t.Error("prompt missing source text")
	}
}

// ========== Prompt building ==========

func TestBuildRAGPrompt(t *testing.T) {
	results := []retriever.Result{
		{FileName: "report.pdf", Title: "Annual Report", Text: "Revenue grew 12%."},
		{FileName: "notes.txt", Text: "Margins were flat."},
	}
	prompt := BuildRAGPrompt("How did revenue change?", results)

	if !strings.HasPrefix(prompt, "Answer the question based on the following information:") {
		t.Error("prompt missing preamble")
	}
	if !strings.Contains(prompt, "Document 1 (report.pdf) - Annual Report:\nRevenue grew 12%.") {
		t.Errorf("first passage malformed:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Document 2 (notes.txt):\nMargins were flat.") {
		t.Errorf("untitled passage malformed:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Here is the question again: How did revenue change?") {
		t.Error("question not restated after the passages")
	}
	if !strings.HasSuffix(prompt, "If no question is asked, just keep the conversation going.") {
		t.Error("closing instruction missing")
	}
}

func TestBuildRAGPromptNoResults(t *testing.T) {
	prompt := BuildRAGPrompt("anything?", nil)
	if !strings.Contains(prompt, "Here is the question again: anything?\n") {
		t.Error("question missing even with no passages")
	}
}

// ========== Response cleanup ==========

func TestCleanResponse(t *testing.T) {
	in := "First line.  \n\n\nSecond line.\t\n   \nThird."
	want := "First line.\nSecond line.\nThird."
	if got := CleanResponse(in); got != want {
		t.Errorf("CleanResponse = %q, want %q", got, want)
	}
}

func TestCleanResponseEmpty(t *testing.T) {
	if got := CleanResponse("\n\n  \n"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
