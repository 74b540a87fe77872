// Package rowstore реализует табличное хранилище строк с заголовком в первой строке.
// Строка 1 — заголовок, строки 2..N — записи, номера строк начинаются с 1.
package rowstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mmeshcher/impulsaweb/internal/lock"
	"github.com/mmeshcher/impulsaweb/internal/model"
	"github.com/mmeshcher/impulsaweb/internal/orderid"
)

// HeaderRow — номер строки заголовка.
const HeaderRow = 1

// Backend — физическое хранилище строк (Google Sheets, PostgreSQL, память).
type Backend interface {
	// Values возвращает все строки таблицы начиная с заголовка.
	Values(ctx context.Context, table string) ([][]string, error)
	// AppendRow добавляет строку в конец таблицы.
	AppendRow(ctx context.Context, table string, values []string) error
	// WriteRow перезаписывает колонки 1..len(values) строки rowNumber.
	WriteRow(ctx context.Context, table string, rowNumber int, values []string) error
}

// Locker сериализует чтение-запись по одному ключу.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Record — строка таблицы, разобранная по заголовку.
type Record struct {
	RowNumber int
	Fields    map[string]string
}

// Get возвращает значение колонки или пустую строку.
func (r *Record) Get(column string) string {
	if r == nil {
		return ""
	}
	return r.Fields[column]
}

// Table — результат чтения всей таблицы.
type Table struct {
	Headers []string
	Records []Record
}

// Has сообщает, есть ли колонка в заголовке.
func (t *Table) Has(column string) bool {
	return indexOf(t.Headers, column) >= 0
}

// UpsertResult описывает итог UpsertByKey.
type UpsertResult struct {
	RowNumber int
	Updated   bool
	// Dropped — поля, которых нет в заголовке и которые не были записаны.
	Dropped []string
}

// Store выполняет операции над таблицами поверх Backend.
type Store struct {
	backend Backend
	locker  Locker
}

// Option настраивает Store.
type Option func(*Store)

// WithLocker задаёт блокировку для UpsertByKey и UpdateByKey.
func WithLocker(l Locker) Option {
	return func(s *Store) {
		if l != nil {
			s.locker = l
		}
	}
}

// New создаёт хранилище. По умолчанию используется блокировка в памяти процесса.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		locker:  lock.NewLocal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadAll читает таблицу целиком. Меньше двух строк — пустой результат без ошибки.
func (s *Store) ReadAll(ctx context.Context, table string) (*Table, error) {
	values, err := s.values(ctx, table)
	if err != nil {
		return nil, err
	}
	return parse(values), nil
}

// Append добавляет строку как есть, без сопоставления с заголовком.
func (s *Store) Append(ctx context.Context, table string, values []string) error {
	if err := s.backend.AppendRow(ctx, table, values); err != nil {
		return ioError("append to "+table, err)
	}
	return nil
}

// AppendRecord раскладывает поля по порядку заголовка и добавляет строку.
// Возвращает поля, которых нет в заголовке.
func (s *Store) AppendRecord(ctx context.Context, table string, fields map[string]string) ([]string, error) {
	t, err := s.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(t.Headers) == 0 {
		return nil, fmt.Errorf("%w: missing headers in %s", ErrSchema, table)
	}

	row, dropped := project(t.Headers, fields)
	if err := s.Append(ctx, table, row); err != nil {
		return nil, err
	}
	return dropped, nil
}

// FindByColumn ищет первую запись, у которой значение колонки совпадает по ключу сравнения
// идентификаторов. Возвращает nil, nil, если запись не найдена.
func (s *Store) FindByColumn(ctx context.Context, table, column, value string) (*Record, error) {
	t, err := s.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	return find(t, table, column, value)
}

// UpdateRow перезаписывает колонки A..len(values) строки. Заголовок перезаписать нельзя.
func (s *Store) UpdateRow(ctx context.Context, table string, rowNumber int, values []string) error {
	if rowNumber <= HeaderRow {
		return fmt.Errorf("update %s row %d: %w", table, rowNumber, ErrInvalidRow)
	}
	if err := s.backend.WriteRow(ctx, table, rowNumber, values); err != nil {
		return ioError(fmt.Sprintf("update %s row %d", table, rowNumber), err)
	}
	return nil
}

// UpsertByKey обновляет первую строку с ключом keyValue или добавляет новую.
// Поля раскладываются по заголовку, отсутствующие колонки заполняются пустыми строками.
func (s *Store) UpsertByKey(ctx context.Context, table, keyColumn, keyValue string, fields map[string]string) (*UpsertResult, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(table, keyValue))
	if err != nil {
		return nil, fmt.Errorf("lock %s/%s: %w", table, keyValue, err)
	}
	defer unlock()

	t, err := s.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	existing, err := find(t, table, keyColumn, keyValue)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged[keyColumn] = keyValue

	row, dropped := project(t.Headers, merged)

	if existing != nil {
		if err := s.UpdateRow(ctx, table, existing.RowNumber, row); err != nil {
			return nil, err
		}
		return &UpsertResult{RowNumber: existing.RowNumber, Updated: true, Dropped: dropped}, nil
	}

	if err := s.Append(ctx, table, row); err != nil {
		return nil, err
	}
	return &UpsertResult{RowNumber: lastRowNumber(t) + 1, Updated: false, Dropped: dropped}, nil
}

// UpdateByKey дописывает patch в существующую строку с ключом keyValue.
// Колонки, которых нет в заголовке, приводят к ErrSchema.
func (s *Store) UpdateByKey(ctx context.Context, table, keyColumn, keyValue string, patch map[string]string) (*Record, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(table, keyValue))
	if err != nil {
		return nil, fmt.Errorf("lock %s/%s: %w", table, keyValue, err)
	}
	defer unlock()

	t, err := s.ReadAll(ctx, table)
	if err != nil {
		return nil, err
	}
	existing, err := find(t, table, keyColumn, keyValue)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%s %s=%s: %w", table, keyColumn, keyValue, ErrRowNotFound)
	}

	merged := make(map[string]string, len(existing.Fields)+len(patch))
	for k, v := range existing.Fields {
		merged[k] = v
	}
	for k, v := range patch {
		if !t.Has(k) {
			return nil, fmt.Errorf("%w: unknown column %q in %s", ErrSchema, k, table)
		}
		merged[k] = v
	}

	row, _ := project(t.Headers, merged)
	if err := s.UpdateRow(ctx, table, existing.RowNumber, row); err != nil {
		return nil, err
	}
	return &Record{RowNumber: existing.RowNumber, Fields: merged}, nil
}

// EnsureSchema создаёт заголовок в пустой таблице или дописывает в конец недостающие колонки.
// Существующие колонки не переставляются и не удаляются. Возвращает добавленные колонки.
func (s *Store) EnsureSchema(ctx context.Context, schema model.Schema) ([]string, error) {
	values, err := s.values(ctx, schema.Table)
	if err != nil {
		return nil, err
	}

	var headers []string
	if len(values) > 0 {
		headers = trimAll(values[0])
	}

	var missing []string
	for _, col := range schema.Columns {
		if indexOf(headers, col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	// Хвостовые пустые ячейки заголовка не считаются колонками.
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	next := append(headers, missing...)

	if err := s.backend.WriteRow(ctx, schema.Table, HeaderRow, next); err != nil {
		return nil, ioError("write header of "+schema.Table, err)
	}
	return missing, nil
}

func (s *Store) values(ctx context.Context, table string) ([][]string, error) {
	values, err := s.backend.Values(ctx, table)
	if err != nil {
		return nil, ioError("read "+table, err)
	}
	return values, nil
}

func ioError(op string, err error) error {
	if errors.Is(err, ErrIO) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIO, err)
}

func parse(values [][]string) *Table {
	t := &Table{}
	if len(values) == 0 {
		return t
	}

	t.Headers = trimAll(values[0])
	if len(values) < 2 {
		return t
	}

	for i, row := range values[1:] {
		if isBlank(row) {
			continue
		}

		fields := make(map[string]string, len(t.Headers))
		for col, name := range t.Headers {
			if name == "" {
				continue
			}
			if _, seen := fields[name]; seen {
				continue
			}
			if col < len(row) {
				fields[name] = row[col]
			} else {
				fields[name] = ""
			}
		}
		t.Records = append(t.Records, Record{RowNumber: i + 2, Fields: fields})
	}
	return t
}

func find(t *Table, table, column, value string) (*Record, error) {
	if len(t.Headers) == 0 {
		return nil, fmt.Errorf("%w: missing headers in %s", ErrSchema, table)
	}
	if !t.Has(column) {
		return nil, fmt.Errorf("%w: column %q not found in %s", ErrSchema, column, table)
	}

	want := orderid.Key(value)
	if want == "" {
		return nil, nil
	}
	for i := range t.Records {
		if orderid.Key(t.Records[i].Fields[column]) == want {
			rec := t.Records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// project раскладывает поля по порядку заголовка.
func project(headers []string, fields map[string]string) (row []string, dropped []string) {
	row = make([]string, len(headers))
	for i, name := range headers {
		if name == "" || indexOf(headers, name) != i {
			continue
		}
		row[i] = fields[name]
	}

	for k := range fields {
		if indexOf(headers, k) < 0 {
			dropped = append(dropped, k)
		}
	}
	sort.Strings(dropped)
	return row, dropped
}

func lastRowNumber(t *Table) int {
	if len(t.Records) == 0 {
		return HeaderRow
	}
	return t.Records[len(t.Records)-1].RowNumber
}

func lockKey(table, keyValue string) string {
	return table + ":" + orderid.Key(keyValue)
}

func indexOf(headers []string, column string) int {
	if column == "" {
		return -1
	}
	for i, h := range headers {
		if h == column {
			return i
		}
	}
	return -1
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
