package dbconn

import "database/sql"

// Cursor - открытый результат запроса с батчевым чтением.
//
// Курсор принадлежит ровно одному исполнению: не потокобезопасен,
// повторное чтение после исчерпания возвращает пустой батч.
type Cursor struct {
	rows      *sql.Rows
	columns   []string
	exhausted bool
}

// Columns возвращает имена колонок результата.
// Пустой срез означает что statement не возвращает строк.
func (c *Cursor) Columns() []string {
	return c.columns
}

// HasRows сообщает возвращает ли statement строки.
func (c *Cursor) HasRows() bool {
	return len(c.columns) > 0
}

// FetchMany читает до n строк из курсора.
//
// Пустой результат означает что курсор исчерпан. Каждая строка -
// []any в порядке колонок; драйверные []byte копируются в string,
// потому что database/sql переиспользует буферы между Next().
func (c *Cursor) FetchMany(n int) ([][]any, error) {
	if c.exhausted || n <= 0 {
		return nil, nil
	}

	batch := make([][]any, 0, n)

	for len(batch) < n {
		if !c.rows.Next() {
			c.exhausted = true
			if err := c.rows.Err(); err != nil {
				return nil, err
			}
			break
		}

		values := make([]any, len(c.columns))
		ptrs := make([]any, len(c.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := c.rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		batch = append(batch, values)
	}

	return batch, nil
}

// RowsAffected возвращает число затронутых строк для statement без
// результата. database/sql не сообщает rowcount через Query, поэтому
// всегда 0; для DML с подсчетом используется Connector.Exec.
func (c *Cursor) RowsAffected() int64 {
	return 0
}

// Close освобождает курсор. Повторный Close безопасен.
func (c *Cursor) Close() error {
	return c.rows.Close()
}
