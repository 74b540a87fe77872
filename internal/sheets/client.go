// Package sheets реализует хранилище строк поверх Google Sheets API v4.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const (
	// DefaultRange — диапазон колонок, читаемый с каждого листа.
	DefaultRange = "A:Z"

	requestTimeout = 10 * time.Second

	valueInputRaw     = "RAW"
	insertRows        = "INSERT_ROWS"
	unformattedValues = "UNFORMATTED_VALUE"
	serialNumberDates = "SERIAL_NUMBER"
)

// Config содержит параметры подключения к таблице.
type Config struct {
	SpreadsheetID       string
	ServiceAccountEmail string
	PrivateKey          string
	Range               string
}

// Client читает и пишет строки листов одной Google-таблицы.
type Client struct {
	values        *sheetsapi.SpreadsheetsValuesService
	spreadsheetID string
	columns       string
}

// New создаёт клиент с авторизацией сервисного аккаунта (JWT).
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if cfg.ServiceAccountEmail == "" || cfg.PrivateKey == "" {
		return nil, errors.New("service account email and private key are required")
	}

	conf := &jwt.Config{
		Email:      cfg.ServiceAccountEmail,
		PrivateKey: []byte(NormalizePrivateKey(cfg.PrivateKey)),
		Scopes:     []string{sheetsapi.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}

	httpClient := conf.Client(ctx)
	httpClient.Timeout = requestTimeout

	return NewWithOptions(ctx, cfg, option.WithHTTPClient(httpClient))
}

// NewWithOptions создаёт клиент с произвольными опциями транспорта.
func NewWithOptions(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	columns := cfg.Range
	if columns == "" {
		columns = DefaultRange
	}

	return &Client{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: cfg.SpreadsheetID,
		columns:       columns,
	}, nil
}

// Values возвращает все строки листа как строки ячеек.
func (c *Client) Values(ctx context.Context, table string) ([][]string, error) {
	resp, err := c.values.Get(c.spreadsheetID, sheetRange(table, c.columns)).
		ValueRenderOption(unformattedValues).
		DateTimeRenderOption(serialNumberDates).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get values of %s: %w", table, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = CellString(cell)
		}
		rows[i] = cells
	}
	return rows, nil
}

// AppendRow добавляет строку после последней заполненной строки листа.
func (c *Client) AppendRow(ctx context.Context, table string, values []string) error {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{toCells(values)}}

	_, err := c.values.Append(c.spreadsheetID, sheetRange(table, "A1"), vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", table, err)
	}
	return nil
}

// WriteRow перезаписывает колонки A..len(values) строки rowNumber.
func (c *Client) WriteRow(ctx context.Context, table string, rowNumber int, values []string) error {
	if rowNumber < 1 {
		return fmt.Errorf("invalid row number %d", rowNumber)
	}
	if len(values) == 0 {
		return nil
	}

	a1 := fmt.Sprintf("A%d:%s%d", rowNumber, ColumnLetter(len(values)), rowNumber)
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{toCells(values)}}

	_, err := c.values.Update(c.spreadsheetID, sheetRange(table, a1), vr).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s row %d: %w", table, rowNumber, err)
	}
	return nil
}

// NormalizePrivateKey убирает обрамляющие кавычки, раскрывает экранированные \n и переводит CRLF в LF.
func NormalizePrivateKey(key string) string {
	k := strings.TrimSpace(key)
	k = strings.Trim(k, `"'`)
	k = strings.ReplaceAll(k, `\r\n`, "\n")
	k = strings.ReplaceAll(k, `\n`, "\n")
	k = strings.ReplaceAll(k, "\r\n", "\n")
	return strings.TrimSpace(k) + "\n"
}

// CellString приводит значение ячейки из ответа API к строке.
func CellString(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case bool:
		if c {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		if c == math.Trunc(c) && math.Abs(c) < 1e15 {
			return strconv.FormatInt(int64(c), 10)
		}
		return strconv.FormatFloat(c, 'f', -1, 64)
	default:
		return fmt.Sprint(c)
	}
}

// ColumnLetter возвращает буквенное обозначение колонки: 1 → A, 27 → AA.
func ColumnLetter(n int) string {
	if n < 1 {
		return "A"
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func sheetRange(table, a1 string) string {
	return quoteSheet(table) + "!" + a1
}

func quoteSheet(name string) string {
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
