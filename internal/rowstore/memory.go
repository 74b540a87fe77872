package rowstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory хранит таблицы в памяти процесса. Используется для разработки и тестов.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][][]string
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][][]string)}
}

// Seed заменяет содержимое таблицы указанными строками.
func (m *Memory) Seed(table string, rows ...[]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table] = copyRows(rows)
}

// Values возвращает копию всех строк таблицы.
func (m *Memory) Values(ctx context.Context, table string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return copyRows(m.tables[table]), nil
}

// AppendRow добавляет строку в конец таблицы.
func (m *Memory) AppendRow(ctx context.Context, table string, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table] = append(m.tables[table], append([]string(nil), values...))
	return nil
}

// WriteRow перезаписывает первые len(values) ячеек строки, остальные ячейки сохраняются.
func (m *Memory) WriteRow(ctx context.Context, table string, rowNumber int, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rowNumber < 1 {
		return fmt.Errorf("row %d: %w", rowNumber, ErrInvalidRow)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	for len(rows) < rowNumber {
		rows = append(rows, nil)
	}

	row := rows[rowNumber-1]
	if len(row) < len(values) {
		grown := make([]string, len(values))
		copy(grown, row)
		row = grown
	}
	copy(row, values)
	rows[rowNumber-1] = row

	m.tables[table] = rows
	return nil
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
