// Package llm генерирует SQL из вопроса на естественном языке через
// OpenAI-совместимый chat completions API (OpenAI или локальная
// Ollama).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Провайдеры
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config - настройки генератора.
type Config struct {
	Provider string // "openai" или "ollama"
	APIKey   string
	BaseURL  string // для ollama: http://localhost:11434
	Model    string
	Timeout  time.Duration
}

// Suggestion - сгенерированный запрос с пояснением.
type Suggestion struct {
	SQL            string   `json:"sql"`
	Explanation    string   `json:"explanation"`
	Confidence     string   `json:"confidence"`
	TablesAffected []string `json:"tables_affected,omitempty"`
}

// Generator - клиент chat completions API.
type Generator struct {
	cfg    Config
	client *http.Client
	base   string
}

// NewGenerator создает генератор. Для Ollama достаточно BaseURL,
// ключ не проверяется.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	var base string
	switch cfg.Provider {
	case ProviderOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
		base = strings.TrimSuffix(cfg.BaseURL, "/") + "/v1"
		if cfg.Model == "" {
			cfg.Model = "llama3"
		}
		if cfg.APIKey == "" {
			// API требует непустой ключ, Ollama его игнорирует
			cfg.APIKey = "ollama"
		}
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		base = "https://api.openai.com/v1"
		if cfg.BaseURL != "" {
			base = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		if cfg.Model == "" {
			cfg.Model = "gpt-4o"
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}

	return &Generator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		base:   base,
	}, nil
}

const systemPromptTemplate = `You are a SQL expert. Generate safe, read-only %s queries based on the user's question and the provided database schema.

RULES:
1. Return ONLY a JSON object with keys: "sql", "explanation", "confidence", "tables_affected".
2. "sql": The SQL query. MUST be a SELECT statement. NO DROP, DELETE, INSERT, UPDATE.
3. "explanation": A brief explanation of what the query does.
4. "confidence": "high", "medium", or "low".
5. "tables_affected": List of table names used.
6. Do not include markdown formatting (like ` + "```json" + `) in the response, just the raw JSON string.

SCHEMA:
%s`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateSQL отправляет вопрос и описание схемы модели и разбирает
// ответ. Markdown обертка вокруг JSON срезается: модели игнорируют
// инструкцию чаще, чем хотелось бы.
func (g *Generator) GenerateSQL(ctx context.Context, question, schemaSummary, dbType string) (*Suggestion, error) {
	reqBody := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, dbType, schemaSummary)},
			{Role: "user", Content: question},
		},
		Temperature: 0.1,
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.base+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("llm returned invalid response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("llm error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	content := stripCodeFence(parsed.Choices[0].Message.Content)

	var suggestion Suggestion
	if err := json.Unmarshal([]byte(content), &suggestion); err != nil {
		log.Error().Str("content", content).Msg("failed to parse llm response as json")
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}
	if suggestion.SQL == "" {
		return nil, fmt.Errorf("llm response contains no sql")
	}

	log.Info().
		Str("provider", g.cfg.Provider).
		Str("model", g.cfg.Model).
		Str("confidence", suggestion.Confidence).
		Msg("sql generated")

	return &suggestion, nil
}

// stripCodeFence срезает обертку ```json ... ``` если модель ее
// добавила вопреки промпту.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
