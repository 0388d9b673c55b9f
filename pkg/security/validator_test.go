package security

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		sql         string
		wantAllowed bool
		wantReason  string
	}{
		// Разрешенные запросы
		{
			name:        "Simple SELECT",
			sql:         "SELECT * FROM users;",
			wantAllowed: true,
		},
		{
			name:        "SELECT with WHERE",
			sql:         "SELECT id, name FROM users WHERE age > 18",
			wantAllowed: true,
		},
		{
			name:        "WITH (CTE) query",
			sql:         "WITH cte AS (SELECT * FROM users) SELECT * FROM cte",
			wantAllowed: true,
		},
		{
			name:        "Lowercase select",
			sql:         "select * from users",
			wantAllowed: true,
		},
		{
			name:        "EXPLAIN",
			sql:         "EXPLAIN SELECT * FROM orders",
			wantAllowed: true,
		},
		{
			name:        "SHOW TABLES",
			sql:         "SHOW TABLES",
			wantAllowed: true,
		},
		{
			name:        "DESCRIBE",
			sql:         "DESCRIBE users",
			wantAllowed: true,
		},
		{
			// Граница слова: "drop" внутри идентификатора не срабатывает
			name:        "Identifier containing forbidden substring",
			sql:         "select * from dropdown_items",
			wantAllowed: true,
		},
		{
			name:        "Column named deleted_at",
			sql:         "SELECT deleted_at FROM users",
			wantAllowed: true,
		},
		{
			name:        "Multiline with mixed case",
			sql:         "SeLeCt *\n  FROM\n  users",
			wantAllowed: true,
		},

		// Пустые запросы
		{
			name:        "Empty string",
			sql:         "",
			wantAllowed: false,
			wantReason:  "empty query",
		},
		{
			name:        "Whitespace only",
			sql:         "   \n\t ",
			wantAllowed: false,
			wantReason:  "empty query",
		},

		// Запрещенные глаголы в начале
		{
			name:        "INSERT",
			sql:         "INSERT INTO users (name) VALUES ('test')",
			wantAllowed: false,
			wantReason:  "INSERT",
		},
		{
			name:        "UPDATE",
			sql:         "UPDATE users SET name = 'x'",
			wantAllowed: false,
			wantReason:  "UPDATE",
		},
		{
			name:        "DROP TABLE",
			sql:         "DROP TABLE users;",
			wantAllowed: false,
			wantReason:  "DROP",
		},

		// Запрещенные ключевые слова внутри запроса
		{
			name:        "Piggy-backed DROP",
			sql:         "SELECT * FROM users; DROP TABLE users",
			wantAllowed: false,
			wantReason:  "DROP",
		},
		{
			name:        "INTO OUTFILE exfiltration",
			sql:         "SELECT * FROM users INTO OUTFILE '/tmp/x'",
			wantAllowed: false,
			wantReason:  "INTO OUTFILE",
		},
		{
			name:        "INTO OUTFILE with extra whitespace",
			sql:         "SELECT * FROM users INTO\n\tOUTFILE '/tmp/x'",
			wantAllowed: false,
			wantReason:  "INTO OUTFILE",
		},
		{
			name:        "LOAD_FILE",
			sql:         "SELECT LOAD_FILE('/etc/passwd')",
			wantAllowed: false,
			wantReason:  "LOAD_FILE",
		},
		{
			name:        "GRANT",
			sql:         "GRANT ALL ON *.* TO 'x'@'%'",
			wantAllowed: false,
			wantReason:  "GRANT",
		},
		{
			name:        "Lowercase delete hidden mid-query",
			sql:         "select 1; delete from users",
			wantAllowed: false,
			wantReason:  "DELETE",
		},

		// Не входит в allow-list
		{
			name:        "VACUUM not in allow-list",
			sql:         "VACUUM",
			wantAllowed: false,
			wantReason:  "read-only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.sql)
			if v.Allowed != tt.wantAllowed {
				t.Fatalf("Validate(%q).Allowed = %v, want %v (reason: %s)",
					tt.sql, v.Allowed, tt.wantAllowed, v.Reason)
			}
			if !tt.wantAllowed && !strings.Contains(v.Reason, tt.wantReason) {
				t.Errorf("Validate(%q).Reason = %q, want substring %q",
					tt.sql, v.Reason, tt.wantReason)
			}
			if tt.wantAllowed && v.Reason != "" {
				t.Errorf("Validate(%q): allowed verdict has non-empty reason %q", tt.sql, v.Reason)
			}
		})
	}
}

// TestValidateDeterministic проверяет что повторный вызов дает тот же вердикт
func TestValidateDeterministic(t *testing.T) {
	inputs := []string{
		"SELECT * FROM users",
		"DROP TABLE users",
		"",
		"select * from dropdown_items",
	}

	for _, sql := range inputs {
		first := Validate(sql)
		second := Validate(sql)
		if first != second {
			t.Errorf("Validate(%q) not deterministic: %+v vs %+v", sql, first, second)
		}
	}
}
