// Package repository содержит хранилище строк таблиц в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRowConflict возвращается, если строка с таким номером уже занята параллельной записью.
var ErrRowConflict = errors.New("row number already taken")

// PostgresRepository хранит строки листов в таблице sheet_rows.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgErr.Code == pgerrcode.UniqueViolation
	}
	return errors.Is(err, ErrRowConflict) || isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// Ping проверяет доступность базы данных.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Values возвращает строки листа по порядку номеров. Пропущенные номера отдаются пустыми строками.
func (r *PostgresRepository) Values(ctx context.Context, sheet string) ([][]string, error) {
	var result [][]string

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT row_number, cells
			 FROM sheet_rows
			 WHERE sheet = $1
			 ORDER BY row_number`,
			sheet,
		)
		if err != nil {
			return fmt.Errorf("select rows: %w", err)
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var (
				rowNumber int
				cells     []string
			)
			if err := rows.Scan(&rowNumber, &cells); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			for len(result) < rowNumber-1 {
				result = append(result, nil)
			}
			result = append(result, cells)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// AppendRow добавляет строку со следующим свободным номером.
// Номер выбирается под транзакционной advisory-блокировкой листа.
func (r *PostgresRepository) AppendRow(ctx context.Context, sheet string, values []string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sheet); err != nil {
			return fmt.Errorf("lock sheet: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO sheet_rows (sheet, row_number, cells)
			 SELECT $1, COALESCE(MAX(row_number), 0) + 1, $2
			 FROM sheet_rows
			 WHERE sheet = $1
			 ON CONFLICT (sheet, row_number) DO NOTHING`,
			sheet, nonNil(values),
		)
		if err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRowConflict
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// WriteRow перезаписывает первые len(values) ячеек строки, остальные ячейки сохраняются.
func (r *PostgresRepository) WriteRow(ctx context.Context, sheet string, rowNumber int, values []string) error {
	if rowNumber < 1 {
		return fmt.Errorf("invalid row number %d", rowNumber)
	}
	if len(values) == 0 {
		return nil
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO sheet_rows (sheet, row_number, cells)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (sheet, row_number) DO UPDATE
			 SET cells = EXCLUDED.cells || COALESCE(sheet_rows.cells[cardinality(EXCLUDED.cells) + 1:], '{}'),
			     updated_at = now()`,
			sheet, rowNumber, values,
		)
		if err != nil {
			return fmt.Errorf("write row %d: %w", rowNumber, err)
		}
		return nil
	})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
