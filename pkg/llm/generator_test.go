package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeLLM поднимает OpenAI-совместимый endpoint, отвечающий
// заданным content.
func fakeLLM(t *testing.T, content string, status int) *Generator {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Errorf("missing bearer token, got %q", auth)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v, want system + user", req.Messages)
		}

		w.WriteHeader(status)
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	g, err := NewGenerator(Config{Provider: ProviderOllama, BaseURL: srv.URL, Model: "llama3"})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

func TestGenerateSQL(t *testing.T) {
	g := fakeLLM(t, `{"sql": "SELECT COUNT(*) FROM users", "explanation": "counts users", "confidence": "high", "tables_affected": ["users"]}`, http.StatusOK)

	s, err := g.GenerateSQL(context.Background(), "how many users", "Table: users\n", "sqlite")
	if err != nil {
		t.Fatalf("GenerateSQL: %v", err)
	}
	if s.SQL != "SELECT COUNT(*) FROM users" {
		t.Errorf("sql = %q", s.SQL)
	}
	if s.Confidence != "high" {
		t.Errorf("confidence = %q, want high", s.Confidence)
	}
	if len(s.TablesAffected) != 1 || s.TablesAffected[0] != "users" {
		t.Errorf("tables = %v, want [users]", s.TablesAffected)
	}
}

func TestGenerateSQLStripsCodeFence(t *testing.T) {
	g := fakeLLM(t, "```json\n{\"sql\": \"SELECT 1\", \"explanation\": \"x\", \"confidence\": \"low\"}\n```", http.StatusOK)

	s, err := g.GenerateSQL(context.Background(), "q", "", "postgres")
	if err != nil {
		t.Fatalf("GenerateSQL: %v", err)
	}
	if s.SQL != "SELECT 1" {
		t.Errorf("sql = %q, want SELECT 1", s.SQL)
	}
}

func TestGenerateSQLInvalidJSON(t *testing.T) {
	g := fakeLLM(t, "sorry, I can't help with that", http.StatusOK)

	if _, err := g.GenerateSQL(context.Background(), "q", "", "mysql"); err == nil {
		t.Error("err = nil, want parse error")
	}
}

func TestGenerateSQLEmptySQL(t *testing.T) {
	g := fakeLLM(t, `{"sql": "", "explanation": "nothing"}`, http.StatusOK)

	if _, err := g.GenerateSQL(context.Background(), "q", "", "mysql"); err == nil {
		t.Error("err = nil, want error on empty sql")
	}
}

func TestNewGeneratorValidation(t *testing.T) {
	if _, err := NewGenerator(Config{Provider: ProviderOpenAI}); err == nil {
		t.Error("openai without key: err = nil, want error")
	}
	if _, err := NewGenerator(Config{Provider: "anthropic"}); err == nil {
		t.Error("unknown provider: err = nil, want error")
	}
	g, err := NewGenerator(Config{Provider: ProviderOllama})
	if err != nil {
		t.Fatalf("ollama defaults: %v", err)
	}
	if g.cfg.Model != "llama3" {
		t.Errorf("default model = %q, want llama3", g.cfg.Model)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"sql": "SELECT 1"}`, `{"sql": "SELECT 1"}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
