package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"bankdash/internal/core"
)

// Repository implements Store over database/sql for both backends.
type Repository struct {
	db *sql.DB
	d  dialect
}

var _ Store = (*Repository)(nil)

// Open selects the backend: Postgres when databaseURL is set, SQLite
// otherwise.
func Open(databaseURL, sqlitePath string) (*Repository, error) {
	if databaseURL != "" {
		return OpenPostgres(databaseURL)
	}
	return OpenSQLite(sqlitePath)
}

func OpenSQLite(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// modernc's driver serializes writes; a second writer connection
	// would only contend on the file lock.
	db.SetMaxOpenConns(1)

	if err := runSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, d: sqliteDialect}, nil
}

func OpenPostgres(databaseURL string) (*Repository, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runPostgresMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, d: postgresDialect}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Backend returns the active dialect name, for logging.
func (r *Repository) Backend() string { return r.d.name }

const insertTransactionSQL = `
	INSERT INTO transactions
		(transaction_date, description, amount, balance, category, source, notes, csv_hash, imported_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (transaction_date, description, amount) DO NOTHING`

// InsertTransactions inserts a batch, skipping rows that violate the
// (date, description, amount) uniqueness invariant. Each row is its own
// attempt: a conflict affects zero rows and never disturbs siblings.
func (r *Repository) InsertTransactions(ctx context.Context, txns []core.Transaction) (int, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.d.rebind(insertTransactionSQL))
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted, skipped := 0, 0
	for _, t := range txns {
		res, err := stmt.ExecContext(ctx,
			t.Date,
			t.Description,
			t.Amount.InexactFloat64(),
			nullFloat(t.Balance),
			t.Category,
			t.Source,
			t.Notes,
			t.CSVHash,
			now,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("insert transaction (%s, %q): %w", t.Date, t.Description, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			skipped++
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit insert batch: %w", err)
	}

	slog.InfoContext(ctx, "Transaction batch stored", "inserted", inserted, "skipped", skipped)
	return inserted, skipped, nil
}

const selectTransactionSQL = `
	SELECT id, transaction_date, description, amount, balance, category, source, notes, csv_hash, imported_at
	FROM transactions`

func (r *Repository) ListTransactions(ctx context.Context, limit, offset int) ([]core.Transaction, error) {
	query := selectTransactionSQL + " ORDER BY transaction_date DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *Repository) SearchTransactions(ctx context.Context, f core.SearchFilter) ([]core.Transaction, error) {
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}

	query := selectTransactionSQL + " WHERE 1=1"
	var args []any

	if f.Term != "" {
		query += fmt.Sprintf(" AND (description %s ? OR notes %s ?)", r.d.likeOp, r.d.likeOp)
		pattern := "%" + f.Term + "%"
		args = append(args, pattern, pattern)
	}
	if f.Range.Start != "" {
		query += " AND transaction_date >= ?"
		args = append(args, f.Range.Start)
	}
	if f.Range.End != "" {
		query += " AND transaction_date <= ?"
		args = append(args, f.Range.End)
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.Source != "" {
		query += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.MinAmount.Valid {
		query += " AND amount >= ?"
		args = append(args, f.MinAmount.Decimal.InexactFloat64())
	}
	if f.MaxAmount.Valid {
		query += " AND amount <= ?"
		args = append(args, f.MaxAmount.Decimal.InexactFloat64())
	}
	query += " ORDER BY transaction_date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// UpdateTransaction applies the allow-listed partial update. Updating
// zero fields is a no-op; an unknown id is core.ErrNotFound.
func (r *Repository) UpdateTransaction(ctx context.Context, id int64, fields core.UpdateFields) error {
	if fields.IsZero() {
		return nil
	}

	var sets []string
	var args []any
	set := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	set("category", fields.Category)
	set("source", fields.Source)
	set("notes", fields.Notes)
	set("description", fields.Description)
	args = append(args, id)

	query := "UPDATE transactions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := r.db.ExecContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) Categories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "category")
}

func (r *Repository) Sources(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "source")
}

func (r *Repository) distinct(ctx context.Context, column string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM transactions WHERE %s IS NOT NULL AND %s <> '' ORDER BY %s",
		column, column, column, column)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var txns []core.Transaction
	for rows.Next() {
		var (
			t          core.Transaction
			amount     float64
			balance    sql.NullFloat64
			category   sql.NullString
			source     sql.NullString
			notes      sql.NullString
			csvHash    sql.NullString
			importedAt sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &amount, &balance,
			&category, &source, &notes, &csvHash, &importedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount = decimal.NewFromFloat(amount)
		if balance.Valid {
			t.Balance = decimal.NullDecimal{Decimal: decimal.NewFromFloat(balance.Float64), Valid: true}
		}
		t.Category = category.String
		t.Source = source.String
		t.Notes = notes.String
		t.CSVHash = csvHash.String
		t.ImportedAt = parseStoredTime(importedAt)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func nullFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

func parseStoredTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
