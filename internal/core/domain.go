package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The dashboard's JSON consumers treat amounts as plain numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"

	// ISODate is the canonical date layout for transaction dates.
	ISODate = "2006-01-02"
)

type (
	// Transaction is one financial ledger entry. Positive amounts are
	// deposits, negative amounts are withdrawals. The triple
	// (Date, Description, Amount) is unique across the store.
	Transaction struct {
		ID          int64               `json:"id"`
		Date        string              `json:"transaction_date"`
		Description string              `json:"description"`
		Amount      decimal.Decimal     `json:"amount"`
		Balance     decimal.NullDecimal `json:"balance"`
		Category    string              `json:"category,omitempty"`
		Source      string              `json:"source,omitempty"`
		Notes       string              `json:"notes,omitempty"`
		CSVHash     string              `json:"csv_hash,omitempty"`
		ImportedAt  time.Time           `json:"imported_at"`
	}

	// PersonMapping is a keyword owned by a person, used to attribute
	// deposits. (PersonName, Keyword) is unique; a person may own many
	// keywords.
	PersonMapping struct {
		ID         int64     `json:"id"`
		PersonName string    `json:"person_name"`
		Keyword    string    `json:"keyword"`
		CreatedAt  time.Time `json:"created_at"`
	}

	// User is an authenticated principal resolved from the identity
	// provider's subject claim.
	User struct {
		ID             int64     `json:"id"`
		AuthProviderID string    `json:"auth_provider_id"`
		Email          string    `json:"email"`
		FullName       string    `json:"full_name,omitempty"`
		Role           string    `json:"role"`
		CreatedAt      time.Time `json:"created_at"`
		LastLoginAt    time.Time `json:"last_login_at"`
	}
)

var (
	ErrConflict        = errors.New("record already exists")
	ErrNotFound        = errors.New("record not found")
	ErrEmptyPersonName = errors.New("person_name cannot be empty")
	ErrEmptyKeyword    = errors.New("keyword cannot be empty")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// Validate checks the fields required by the store's uniqueness invariant.
func (t Transaction) Validate() error {
	if !IsISODate(t.Date) {
		return ErrInvalidDate
	}
	if strings.TrimSpace(t.Description) == "" {
		return errors.New("empty description")
	}
	return nil
}

// IsDeposit reports whether the amount is a strict inflow.
func (t Transaction) IsDeposit() bool {
	return t.Amount.IsPositive()
}

func (pm PersonMapping) Validate() error {
	if strings.TrimSpace(pm.PersonName) == "" {
		return ErrEmptyPersonName
	}
	if strings.TrimSpace(pm.Keyword) == "" {
		return ErrEmptyKeyword
	}
	return nil
}

// IsISODate reports whether s is a calendar date in YYYY-MM-DD form.
func IsISODate(s string) bool {
	_, err := time.Parse(ISODate, s)
	return err == nil
}
