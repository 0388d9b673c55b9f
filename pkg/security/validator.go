package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict - результат проверки SQL запроса.
//
// Allowed == true означает что запрос прошел все проверки и может быть
// передан на исполнение. Reason заполняется только при отказе.
type Verdict struct {
	Allowed bool
	Reason  string
}

// allowedVerbs - первое слово запроса должно быть одним из этих READ-ONLY глаголов
var allowedVerbs = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"EXPLAIN":  true,
	"SHOW":     true,
	"DESCRIBE": true,
}

// forbiddenPatterns - запрещенные ключевые слова.
//
// Ищутся по границам слов (\b), чтобы идентификаторы вида dropdown_id
// или deleted_at не давали ложных срабатываний. Ложный отказ
// допустим, ложный пропуск изменяющего запроса - нет.
var forbiddenPatterns = []*regexp.Regexp{
	// DDL
	regexp.MustCompile(`\bCREATE\b`),
	regexp.MustCompile(`\bALTER\b`),
	regexp.MustCompile(`\bDROP\b`),
	regexp.MustCompile(`\bTRUNCATE\b`),

	// DML
	regexp.MustCompile(`\bINSERT\b`),
	regexp.MustCompile(`\bUPDATE\b`),
	regexp.MustCompile(`\bDELETE\b`),
	regexp.MustCompile(`\bREPLACE\b`),

	// DCL
	regexp.MustCompile(`\bGRANT\b`),
	regexp.MustCompile(`\bREVOKE\b`),

	// Блокировки
	regexp.MustCompile(`\bLOCK\b`),
	regexp.MustCompile(`\bUNLOCK\b`),

	// Эксфильтрация через файловую систему (MySQL)
	regexp.MustCompile(`\bLOAD_FILE\b`),
	regexp.MustCompile(`\bINTO\s+OUTFILE\b`),
	regexp.MustCompile(`\bINTO\s+DUMPFILE\b`),

	// Prepared statements (могут скрывать произвольный SQL)
	regexp.MustCompile(`\bEXECUTE\b`),
	regexp.MustCompile(`\bPREPARE\b`),
	regexp.MustCompile(`\bDEALLOCATE\b`),
}

// Validate проверяет SQL запрос и решает, можно ли его исполнять.
//
// Проверки:
//  1. Запрос не пустой
//  2. Нет запрещенных ключевых слов (поиск по всему тексту)
//  3. Первое слово - разрешенный READ-ONLY глагол
//
// Проверки 2 и 3 независимы: любая из них достаточна для отказа.
// AST не строится - намеренно грубое сопоставление по нормализованному
// тексту (upper-case, схлопнутые пробелы), устойчивое к обфускации
// регистром и переносами строк.
//
// Чистая функция: без I/O, без состояния, безопасна из любой горутины.
func Validate(sql string) Verdict {
	if strings.TrimSpace(sql) == "" {
		return Verdict{Allowed: false, Reason: "empty query"}
	}

	// Нормализуем: upper-case + один пробел между токенами
	normalized := strings.Join(strings.Fields(strings.ToUpper(sql)), " ")

	for _, pattern := range forbiddenPatterns {
		if match := pattern.FindString(normalized); match != "" {
			return Verdict{
				Allowed: false,
				Reason:  fmt.Sprintf("query contains forbidden keyword: %s", match),
			}
		}
	}

	firstWord := strings.Fields(normalized)[0]
	if !allowedVerbs[firstWord] {
		return Verdict{
			Allowed: false,
			Reason: fmt.Sprintf(
				"query must start with a read-only statement (SELECT, WITH, EXPLAIN, SHOW, DESCRIBE), got: %s",
				firstWord),
		}
	}

	return Verdict{Allowed: true}
}
