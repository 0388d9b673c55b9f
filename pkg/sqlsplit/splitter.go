// Package sqlsplit разбивает текст с несколькими SQL командами на
// отдельные statements с учетом строковых литералов.
//
// Используется при bulk импорте .sql файлов: содержимое файла режется
// на команды, каждая исполняется отдельно.
package sqlsplit

import "strings"

// Split разбивает содержимое SQL файла на отдельные statements.
//
// Правила:
//   - ';' завершает statement только вне строкового литерала
//   - литералы открываются ' или ", закрываются тем же символом;
//     кавычка с предшествующим \ не меняет состояние
//   - пустые строки и строки-комментарии (начинающиеся с --) пропускаются
//   - завершающий ';' сохраняется в тексте statement
//   - строки одного statement склеиваются через один пробел
//   - хвост без завершающего ';' выдается как последний statement
//
// Известное упрощение: строка проверяется на префикс "--" ДО посимвольного
// сканирования, поэтому "--" внутри многострочного литерала воспринимается
// как комментарий. Незакрытый литерал в конце входа не ошибка - остаток
// выдается как есть, синтаксическую ошибку вернет БД при исполнении.
//
// Функция детерминированная и без состояния: повторный вызов на том же
// входе дает тот же результат. Ничего не исполняет.
func Split(content string) []string {
	var statements []string
	var current []string

	inString := false
	var stringChar byte

	for _, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimSpace(rawLine)

		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		i := 0
		for i < len(line) {
			ch := line[i]

			if (ch == '\'' || ch == '"') && (i == 0 || line[i-1] != '\\') {
				if !inString {
					inString = true
					stringChar = ch
				} else if ch == stringChar {
					inString = false
				}
			}

			if ch == ';' && !inString {
				current = append(current, line[:i+1])
				statements = append(statements, strings.Join(current, " "))
				current = nil

				line = strings.TrimSpace(line[i+1:])
				i = 0
				continue
			}

			i++
		}

		if line != "" {
			current = append(current, line)
		}
	}

	if len(current) > 0 {
		if remaining := strings.TrimSpace(strings.Join(current, " ")); remaining != "" {
			statements = append(statements, remaining)
		}
	}

	return statements
}
