// Package importer turns raw bank statement CSV exports into normalized
// transactions. Statements often carry leading metadata lines before the
// header, inconsistent date formats, and accounting-style amounts like
// "(500.00)"; parsing is per-row fail-soft: a bad row is skipped and
// counted, never aborting the batch.
package importer

import (
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"

	"bankdash/internal/classify"
	"bankdash/internal/core"
)

// columnAliases maps lowercased, trimmed header cells to canonical field
// names. Unmapped columns are ignored.
var columnAliases = map[string]string{
	"date":             "transaction_date",
	"transaction date": "transaction_date",
	"transactiondate":  "transaction_date",
	"description":      "description",
	"amount":           "amount",
	"balance":          "balance",
	"transactiontype":  "transaction_type",
	"categories":       "original_category",
}

// headerKeywords identify the header row inside statement preamble.
var headerKeywords = []string{
	"transactiondate", "transaction date", "date", "amount", "description",
}

// dateFormats are tried in order; the first successful parse wins.
// Ambiguous values like 01/02/2024 therefore resolve as month/day.
var dateFormats = []string{
	"01/02/2006",
	"2006-01-02",
	"01-02-2006",
	"02/01/2006",
	"2006/01/02",
	"01/02/06",
	"02-01-2006",
}

// SchemaError reports required columns absent after header mapping. It
// fails the whole parse; there is no partial success for a bad schema.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "csv missing required columns: " + strings.Join(e.Missing, ", ")
}

// Batch is the result of parsing one statement file. Hash is a digest of
// the raw input bytes, attached identically to every record for
// provenance; it plays no part in per-row deduplication.
type Batch struct {
	Transactions []core.Transaction
	Hash         string
	RowsSkipped  int
}

// ParseFile parses the statement at path.
func ParseFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open statement: %w", err)
	}
	defer f.Close()

	batch, err := Parse(f)
	if err != nil {
		return Batch{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return batch, nil
}

// Parse reads a raw statement and returns normalized transaction
// candidates (no IDs yet) ready for batch insertion.
func Parse(r io.Reader) (Batch, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, fmt.Errorf("read statement: %w", err)
	}

	sum := md5.Sum(raw)
	batch := Batch{Hash: hex.EncodeToString(sum[:])}

	text := strings.TrimPrefix(string(raw), "\ufeff")
	lines := strings.Split(text, "\n")
	headerIdx := findHeaderRow(lines)

	cr := csv.NewReader(strings.NewReader(strings.Join(lines[headerIdx:], "\n")))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return Batch{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return batch, nil
	}

	cols := mapColumns(records[0])
	if missing := missingRequired(cols); len(missing) > 0 {
		return Batch{}, &SchemaError{Missing: missing}
	}

	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		txn, err := normalizeRow(rec, cols)
		if err != nil {
			slog.Warn("Skipping statement row", "row", headerIdx+i+2, "error", err)
			batch.RowsSkipped++
			continue
		}
		txn.CSVHash = batch.Hash
		batch.Transactions = append(batch.Transactions, txn)
	}

	return batch, nil
}

// findHeaderRow returns the index of the first line containing a header
// keyword, or 0 when no line qualifies.
func findHeaderRow(lines []string) int {
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return 0
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, cell := range header {
		key := strings.ToLower(strings.TrimSpace(cell))
		if name, ok := columnAliases[key]; ok {
			if _, taken := cols[name]; !taken {
				cols[name] = i
			}
		}
	}
	return cols
}

func missingRequired(cols map[string]int) []string {
	var missing []string
	for _, name := range []string{"transaction_date", "description", "amount"} {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cell(rec []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

func normalizeRow(rec []string, cols map[string]int) (core.Transaction, error) {
	date, err := parseDate(cell(rec, cols, "transaction_date"))
	if err != nil {
		return core.Transaction{}, err
	}

	amount, err := parseAmount(cell(rec, cols, "amount"))
	if err != nil {
		return core.Transaction{}, err
	}

	var balance decimal.NullDecimal
	if raw := strings.TrimSpace(cell(rec, cols, "balance")); raw != "" {
		b, err := parseAmount(raw)
		if err != nil {
			return core.Transaction{}, err
		}
		balance = decimal.NullDecimal{Decimal: b, Valid: true}
	}

	description := strings.TrimSpace(cell(rec, cols, "description"))
	category, source := classify.Classify(description, amount)

	return core.Transaction{
		Date:        date,
		Description: description,
		Amount:      amount,
		Balance:     balance,
		Category:    category,
		Source:      source,
	}, nil
}

// parseDate normalizes a statement date to YYYY-MM-DD. The fixed format
// list is tried in order before falling back to a general parser.
func parseDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("date value is missing")
	}

	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(core.ISODate), nil
		}
	}

	t, err := dateparse.ParseAny(value)
	if err != nil {
		return "", fmt.Errorf("unable to parse date %q", value)
	}
	return t.Format(core.ISODate), nil
}

var amountCleaner = strings.NewReplacer("$", "", ",", "", " ", "")

// parseAmount handles currency symbols, thousands separators, and the
// parenthesized negative form. A missing value is 0.0, not an error;
// an unparseable value is an error. The asymmetry is deliberate.
func parseAmount(value string) (decimal.Decimal, error) {
	s := amountCleaner.Replace(strings.TrimSpace(value))
	if s == "" {
		return decimal.Zero, nil
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unable to parse amount %q", value)
	}
	return d, nil
}
