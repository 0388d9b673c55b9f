package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruslano69/dbcopilot/internal/infra"
)

// newTestServer wires a full router over a fresh dev stack with
// storage under t.TempDir(). llmContent, when non-empty, is served by
// a fake OpenAI-compatible endpoint.
func newTestServer(t *testing.T, llmContent string) (*httptest.Server, *infra.Infra) {
	t.Helper()

	cfg, err := infra.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	dir := t.TempDir()
	cfg.Storage.HistoryPath = filepath.Join(dir, "app.db")
	cfg.Storage.SchemaPath = cfg.Storage.HistoryPath

	if llmContent != "" {
		fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": llmContent}},
				},
			}
			json.NewEncoder(w).Encode(resp)
		}))
		t.Cleanup(fake.Close)
		cfg.LLM.BaseURL = fake.URL
	}

	inf, err := infra.Setup(cfg, true)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(inf.Close)

	srv := httptest.NewServer(NewRouter(cfg, inf))
	t.Cleanup(srv.Close)
	return srv, inf
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// connectTestDB подключает сервер к временной SQLite БД с данными.
func connectTestDB(t *testing.T, srv *httptest.Server) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "target.db")
	resp := postJSON(t, srv.URL+"/api/connect",
		map[string]string{"connection_string": "sqlite://" + path})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect status = %d", resp.StatusCode)
	}
	decode(t, resp)

	dump := `CREATE TABLE pets (id INTEGER PRIMARY KEY, name TEXT, kind TEXT);
INSERT INTO pets VALUES (1, 'rex', 'dog');
INSERT INTO pets VALUES (2, 'tom', 'cat');
INSERT INTO pets VALUES (3, 'nemo', 'fish');`
	resp2, err := http.Post(srv.URL+"/api/import", "application/sql", strings.NewReader(dump))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d", resp2.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	out := decode(t, resp)
	if out["status"] != "ok" {
		t.Errorf("status = %v, want ok", out["status"])
	}
	if out["connected"] != false {
		t.Errorf("connected = %v, want false", out["connected"])
	}
}

func TestConnectAndSchema(t *testing.T) {
	srv, _ := newTestServer(t, "")
	connectTestDB(t, srv)

	resp, err := http.Get(srv.URL + "/api/tables")
	if err != nil {
		t.Fatalf("GET tables: %v", err)
	}
	defer resp.Body.Close()

	out := decode(t, resp)
	tables, ok := out["tables"].([]any)
	if !ok || len(tables) != 1 {
		t.Fatalf("tables = %v, want one table", out["tables"])
	}
}

func TestConnectBadDSN(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := postJSON(t, srv.URL+"/api/connect",
		map[string]string{"connection_string": "oracle://nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	out := decode(t, resp)
	if out["success"] != false {
		t.Errorf("success = %v, want false", out["success"])
	}
}

func TestExecute(t *testing.T) {
	srv, _ := newTestServer(t, "")
	connectTestDB(t, srv)

	resp := postJSON(t, srv.URL+"/api/query/execute",
		map[string]string{"sql": "SELECT name FROM pets ORDER BY id"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decode(t, resp)
	if out["success"] != true {
		t.Fatalf("success = %v", out["success"])
	}
	if out["row_count"] != float64(3) {
		t.Errorf("row_count = %v, want 3", out["row_count"])
	}
	rows := out["rows"].([]any)
	first := rows[0].([]any)
	if first[0] != "rex" {
		t.Errorf("first row = %v, want rex", first)
	}
}

func TestExecuteBlocked(t *testing.T) {
	srv, _ := newTestServer(t, "")
	connectTestDB(t, srv)

	resp := postJSON(t, srv.URL+"/api/query/execute",
		map[string]string{"sql": "DELETE FROM pets"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	out := decode(t, resp)
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "Safety Warning") || !strings.Contains(msg, "DELETE") {
		t.Errorf("error = %q", msg)
	}

	// Блокировка попадает в журнал
	resp2, err := http.Get(srv.URL + "/api/query-history?limit=5")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp2.Body.Close()

	var records []map[string]any
	if err := json.NewDecoder(resp2.Body).Decode(&records); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(records) == 0 || records[0]["status"] != "blocked" {
		t.Errorf("history head = %v, want blocked record", records)
	}
}

func TestGenerate(t *testing.T) {
	srv, _ := newTestServer(t,
		`{"sql": "SELECT COUNT(*) FROM pets", "explanation": "counts pets", "confidence": "high"}`)
	connectTestDB(t, srv)

	resp := postJSON(t, srv.URL+"/api/query/generate",
		map[string]string{"question": "how many pets"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decode(t, resp)
	if out["sql"] != "SELECT COUNT(*) FROM pets" {
		t.Errorf("sql = %v", out["sql"])
	}
}

func TestGenerateWithoutSchema(t *testing.T) {
	srv, _ := newTestServer(t, `{"sql": "SELECT 1"}`)

	resp := postJSON(t, srv.URL+"/api/query/generate",
		map[string]string{"question": "anything"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestImportPartialFailure(t *testing.T) {
	srv, _ := newTestServer(t, "")
	connectTestDB(t, srv)

	dump := "INSERT INTO pets VALUES (4, 'iggy', 'iguana');\nINSERT INTO no_such (x) VALUES (1);"
	resp, err := http.Post(srv.URL+"/api/import", "application/sql", strings.NewReader(dump))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decode(t, resp)
	// Упавший statement не отменяет импорт: success true, детали
	// в warnings
	if out["success"] != true {
		t.Errorf("success = %v, want true", out["success"])
	}
	if out["executed"] != float64(1) || out["failed"] != float64(1) {
		t.Errorf("executed = %v, failed = %v, want 1 and 1", out["executed"], out["failed"])
	}
	warnings := out["warnings"].([]any)
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one entry", warnings)
	}

	// Успешная часть дампа применена
	resp2 := postJSON(t, srv.URL+"/api/query/execute",
		map[string]string{"sql": "SELECT name FROM pets WHERE id = 4"})
	out2 := decode(t, resp2)
	if out2["row_count"] != float64(1) {
		t.Errorf("row_count = %v, want iguana row applied", out2["row_count"])
	}
}

func TestExportCSV(t *testing.T) {
	srv, _ := newTestServer(t, "")
	connectTestDB(t, srv)

	resp, err := http.Get(srv.URL + "/api/export/pets?format=csv")
	if err != nil {
		t.Fatalf("GET export: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "pets.csv") {
		t.Errorf("content disposition = %q", cd)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Errorf("lines = %d, want header + 3 rows", len(lines))
	}
}

func TestExportBadTable(t *testing.T) {
	srv, _ := newTestServer(t, "")
	connectTestDB(t, srv)

	resp, err := http.Get(srv.URL + "/api/export/pets%3Bdrop")
	if err != nil {
		t.Fatalf("GET export: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHistoryEmpty(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/query-history")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want empty array", records)
	}
}
