package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/welovename555/smsdesk/internal/types/market"
	"github.com/welovename555/smsdesk/internal/types/order"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &SQLiteStorage{db: db}

	// проверяем, что БД жива
	if err := s.db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	// создаём таблицы
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
            scope TEXT PRIMARY KEY,
            api_key TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            activation_id TEXT NOT NULL,
            phone_number TEXT NOT NULL,
            service TEXT NOT NULL,
            service_name TEXT NOT NULL,
            country TEXT NOT NULL,
            country_name TEXT NOT NULL,
            cost TEXT NOT NULL,
            operator TEXT NOT NULL DEFAULT '',
            code TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS market_orders (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            order_id TEXT NOT NULL,
            product_name TEXT NOT NULL,
            qty INTEGER NOT NULL,
            credentials TEXT NOT NULL,
            total_cost REAL NOT NULL,
            created_at TIMESTAMP NOT NULL
        )`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) SaveCredential(ctx context.Context, scope, apiKey string) error {
	q := `
        INSERT INTO credentials (scope, api_key, updated_at) VALUES ($1,$2,$3)
        ON CONFLICT(scope) DO UPDATE SET api_key=excluded.api_key, updated_at=excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q, scope, apiKey, time.Now().UTC())
	return err
}

func (s *SQLiteStorage) LoadCredential(ctx context.Context, scope string) (string, error) {
	var key string
	q := `SELECT api_key FROM credentials WHERE scope=$1`
	if err := s.db.QueryRowContext(ctx, q, scope).Scan(&key); err != nil {
		return "", err
	}
	return key, nil
}

func (s *SQLiteStorage) AppendHistory(ctx context.Context, e *order.HistoryEntry) error {
	q := `
        INSERT INTO history
            (activation_id, phone_number, service, service_name, country, country_name,
             cost, operator, code, status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`
	return s.db.QueryRowContext(ctx, q,
		e.ActivationID, e.PhoneNumber, e.Service, e.ServiceName, e.Country, e.CountryName,
		e.Cost, e.Operator, e.Code, e.Status, e.Timestamp,
	).Scan(&e.ID)
}

// PatchHistory обновляет самую свежую запись с данным activation id.
// Отсутствие совпадения — не ошибка.
func (s *SQLiteStorage) PatchHistory(ctx context.Context, activationID string, patch order.HistoryPatch) error {
	set := ""
	args := []any{}
	n := 1
	if patch.Status != nil {
		set += fmt.Sprintf("status=$%d", n)
		args = append(args, *patch.Status)
		n++
	}
	if patch.Code != nil {
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("code=$%d", n)
		args = append(args, *patch.Code)
		n++
	}
	if set == "" {
		return nil
	}
	q := fmt.Sprintf(`
        UPDATE history SET %s
        WHERE id = (
            SELECT id FROM history WHERE activation_id=$%d
            ORDER BY created_at DESC, id DESC LIMIT 1
        )`, set, n)
	args = append(args, activationID)
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *SQLiteStorage) ListHistory(ctx context.Context) ([]order.HistoryEntry, error) {
	const q = `
        SELECT id, activation_id, phone_number, service, service_name, country, country_name,
               cost, operator, code, status, created_at
        FROM history
        ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.HistoryEntry
	for rows.Next() {
		var e order.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.ActivationID, &e.PhoneNumber, &e.Service, &e.ServiceName,
			&e.Country, &e.CountryName, &e.Cost, &e.Operator, &e.Code, &e.Status, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ClearHistory(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	return err
}

func (s *SQLiteStorage) CreateMarketOrder(ctx context.Context, o *market.Order) error {
	creds, err := json.Marshal(o.Credentials)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	q := `
        INSERT INTO market_orders (order_id, product_name, qty, credentials, total_cost, created_at)
        VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`
	return s.db.QueryRowContext(ctx, q,
		o.OrderID, o.ProductName, o.Qty, string(creds), o.TotalCost, o.CreatedAt,
	).Scan(&o.ID)
}

func (s *SQLiteStorage) ListMarketOrders(ctx context.Context) ([]market.Order, error) {
	const q = `
        SELECT id, order_id, product_name, qty, credentials, total_cost, created_at
        FROM market_orders
        ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Order
	for rows.Next() {
		var o market.Order
		var creds string
		if err := rows.Scan(&o.ID, &o.OrderID, &o.ProductName, &o.Qty, &creds, &o.TotalCost, &o.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(creds), &o.Credentials); err != nil {
			return nil, fmt.Errorf("unmarshal credentials: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) PruneMarketOrders(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM market_orders WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
