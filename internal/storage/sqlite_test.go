package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"bankdash/internal/core"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func tx(date, description string, amount float64) core.Transaction {
	return core.Transaction{
		Date:        date,
		Description: description,
		Amount:      decimal.NewFromFloat(amount),
	}
}

func mustInsert(t *testing.T, repo *Repository, txns ...core.Transaction) {
	t.Helper()
	if _, _, err := repo.InsertTransactions(context.Background(), txns); err != nil {
		t.Fatalf("InsertTransactions failed: %v", err)
	}
}

func TestInsertTransactions_Dedup(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	batch := []core.Transaction{
		tx("2024-01-05", "PAYROLL ACME CORP", 2500.00),
		tx("2024-01-07", "GROCERY MART - STORE 12", -84.20),
		tx("2024-01-09", "ATM WITHDRAWAL", -100.00),
	}

	inserted, skipped, err := repo.InsertTransactions(ctx, batch)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if inserted != 3 || skipped != 0 {
		t.Errorf("first insert: got inserted=%d skipped=%d, want 3/0", inserted, skipped)
	}

	// The same batch again is fully deduplicated.
	inserted, skipped, err = repo.InsertTransactions(ctx, batch)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted != 0 || skipped != 3 {
		t.Errorf("second insert: got inserted=%d skipped=%d, want 0/3", inserted, skipped)
	}

	t.Run("same description different amount is a new row", func(t *testing.T) {
		inserted, skipped, err := repo.InsertTransactions(ctx, []core.Transaction{
			tx("2024-01-05", "PAYROLL ACME CORP", 2600.00),
		})
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if inserted != 1 || skipped != 0 {
			t.Errorf("got inserted=%d skipped=%d, want 1/0", inserted, skipped)
		}
	})

	t.Run("duplicate inside one batch keeps first", func(t *testing.T) {
		inserted, skipped, err := repo.InsertTransactions(ctx, []core.Transaction{
			tx("2024-02-01", "COFFEE SHOP", -4.50),
			tx("2024-02-01", "COFFEE SHOP", -4.50),
		})
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if inserted != 1 || skipped != 1 {
			t.Errorf("got inserted=%d skipped=%d, want 1/1", inserted, skipped)
		}
	})
}

func TestListTransactions_Ordering(t *testing.T) {
	repo := openTestRepo(t)
	mustInsert(t, repo,
		tx("2024-01-01", "OLDEST", 10),
		tx("2024-03-01", "NEWEST", 30),
		tx("2024-02-01", "MIDDLE", 20),
	)

	txns, err := repo.ListTransactions(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txns))
	}
	if txns[0].Description != "NEWEST" || txns[2].Description != "OLDEST" {
		t.Errorf("wrong order: %q, %q, %q", txns[0].Description, txns[1].Description, txns[2].Description)
	}

	limited, err := repo.ListTransactions(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("ListTransactions with limit failed: %v", err)
	}
	if len(limited) != 2 || limited[0].Description != "MIDDLE" {
		t.Errorf("limit/offset: got %d rows starting with %q", len(limited), limited[0].Description)
	}
}

func TestSearchTransactions(t *testing.T) {
	repo := openTestRepo(t)
	mustInsert(t, repo,
		core.Transaction{Date: "2024-01-05", Description: "PAYROLL ACME", Amount: decimal.NewFromInt(2500), Category: "Income", Source: "Acme"},
		core.Transaction{Date: "2024-01-10", Description: "GROCERY MART", Amount: decimal.NewFromFloat(-50.25), Category: "Groceries", Source: "Grocery Mart"},
		core.Transaction{Date: "2024-02-10", Description: "GROCERY MART", Amount: decimal.NewFromFloat(-61.80), Category: "Groceries", Source: "Grocery Mart"},
	)

	t.Run("term matches description case-insensitively", func(t *testing.T) {
		txns, err := repo.SearchTransactions(context.Background(), core.SearchFilter{Term: "grocery"})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(txns) != 2 {
			t.Errorf("got %d results, want 2", len(txns))
		}
	})

	t.Run("date range bounds are inclusive", func(t *testing.T) {
		txns, err := repo.SearchTransactions(context.Background(), core.SearchFilter{
			Range: core.DateRange{Start: "2024-01-10", End: "2024-02-10"},
		})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(txns) != 2 {
			t.Errorf("got %d results, want 2", len(txns))
		}
	})

	t.Run("amount bounds", func(t *testing.T) {
		txns, err := repo.SearchTransactions(context.Background(), core.SearchFilter{
			MinAmount: decimal.NewNullDecimal(decimal.NewFromInt(0)),
		})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(txns) != 1 || txns[0].Description != "PAYROLL ACME" {
			t.Errorf("unexpected results: %+v", txns)
		}
	})

	t.Run("category and source filters", func(t *testing.T) {
		txns, err := repo.SearchTransactions(context.Background(), core.SearchFilter{
			Category: "Groceries",
			Source:   "Grocery Mart",
		})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(txns) != 2 {
			t.Errorf("got %d results, want 2", len(txns))
		}
	})

	t.Run("malformed date is rejected", func(t *testing.T) {
		_, err := repo.SearchTransactions(context.Background(), core.SearchFilter{
			Range: core.DateRange{Start: "01/05/2024"},
		})
		if !errors.Is(err, core.ErrInvalidDate) {
			t.Errorf("got %v, want ErrInvalidDate", err)
		}
	})
}

func TestUpdateTransaction(t *testing.T) {
	repo := openTestRepo(t)
	mustInsert(t, repo, tx("2024-01-05", "MYSTERY CHARGE", -12.00))

	txns, err := repo.ListTransactions(context.Background(), 1, 0)
	if err != nil || len(txns) != 1 {
		t.Fatalf("seed lookup failed: %v (%d rows)", err, len(txns))
	}
	id := txns[0].ID

	t.Run("partial update touches only named fields", func(t *testing.T) {
		category := "Fees"
		notes := "monthly service fee"
		err := repo.UpdateTransaction(context.Background(), id, core.UpdateFields{
			Category: &category,
			Notes:    &notes,
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}

		got, err := repo.ListTransactions(context.Background(), 1, 0)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if got[0].Category != "Fees" || got[0].Notes != "monthly service fee" {
			t.Errorf("update not applied: %+v", got[0])
		}
		if got[0].Description != "MYSTERY CHARGE" {
			t.Errorf("description changed unexpectedly: %q", got[0].Description)
		}
	})

	t.Run("zero fields is a no-op", func(t *testing.T) {
		if err := repo.UpdateTransaction(context.Background(), id, core.UpdateFields{}); err != nil {
			t.Errorf("no-op update returned error: %v", err)
		}
	})

	t.Run("unknown id is ErrNotFound", func(t *testing.T) {
		category := "Fees"
		err := repo.UpdateTransaction(context.Background(), 99999, core.UpdateFields{Category: &category})
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestStatistics(t *testing.T) {
	repo := openTestRepo(t)

	t.Run("empty store yields zeros and null dates", func(t *testing.T) {
		stats, err := repo.Statistics(context.Background(), core.DateRange{})
		if err != nil {
			t.Fatalf("Statistics failed: %v", err)
		}
		if stats.TotalTransactions != 0 || stats.TotalDeposits != 0 || stats.NetChange != 0 {
			t.Errorf("expected zero totals, got %+v", stats)
		}
		if stats.EarliestDate != nil || stats.LatestDate != nil {
			t.Errorf("expected nil date bounds, got %v / %v", stats.EarliestDate, stats.LatestDate)
		}
	})

	mustInsert(t, repo,
		core.Transaction{Date: "2024-01-05", Description: "PAYROLL A", Amount: decimal.NewFromInt(1000), Category: "Income", Source: "Acme"},
		core.Transaction{Date: "2024-01-20", Description: "RENT", Amount: decimal.NewFromInt(-600), Category: "Other Expense", Source: "Rent"},
		core.Transaction{Date: "2024-02-05", Description: "PAYROLL B", Amount: decimal.NewFromInt(500), Category: "Income", Source: "Beta"},
	)

	stats, err := repo.Statistics(context.Background(), core.DateRange{})
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", stats.TotalTransactions)
	}
	if stats.TotalDeposits != 1500 {
		t.Errorf("TotalDeposits = %v, want 1500", stats.TotalDeposits)
	}
	if stats.TotalWithdrawals != -600 {
		t.Errorf("TotalWithdrawals = %v, want -600", stats.TotalWithdrawals)
	}
	if stats.NetChange != 900 {
		t.Errorf("NetChange = %v, want 900", stats.NetChange)
	}
	if stats.EarliestDate == nil || *stats.EarliestDate != "2024-01-05" {
		t.Errorf("EarliestDate = %v, want 2024-01-05", stats.EarliestDate)
	}
	if stats.LatestDate == nil || *stats.LatestDate != "2024-02-05" {
		t.Errorf("LatestDate = %v, want 2024-02-05", stats.LatestDate)
	}

	t.Run("deposits by source sorted by total descending", func(t *testing.T) {
		if len(stats.DepositsBySource) != 2 {
			t.Fatalf("got %d source rows, want 2", len(stats.DepositsBySource))
		}
		if stats.DepositsBySource[0].Source != "Acme" || stats.DepositsBySource[0].Total != 1000 {
			t.Errorf("first source row = %+v", stats.DepositsBySource[0])
		}
	})

	t.Run("monthly breakdown newest first", func(t *testing.T) {
		if len(stats.MonthlyBreakdown) != 2 {
			t.Fatalf("got %d month rows, want 2", len(stats.MonthlyBreakdown))
		}
		first := stats.MonthlyBreakdown[0]
		if first.Month != "2024-02" || first.Net != 500 {
			t.Errorf("first month row = %+v", first)
		}
		second := stats.MonthlyBreakdown[1]
		if second.Month != "2024-01" || second.Deposits != 1000 || second.Withdrawals != -600 {
			t.Errorf("second month row = %+v", second)
		}
	})

	t.Run("date range narrows the window", func(t *testing.T) {
		ranged, err := repo.Statistics(context.Background(), core.DateRange{Start: "2024-02-01"})
		if err != nil {
			t.Fatalf("Statistics failed: %v", err)
		}
		if ranged.TotalTransactions != 1 || ranged.TotalDeposits != 500 {
			t.Errorf("ranged stats = %+v", ranged)
		}
	})
}

func TestRecurringTransactions(t *testing.T) {
	repo := openTestRepo(t)
	mustInsert(t, repo,
		tx("2024-01-01", "NETFLIX", -15.99),
		tx("2024-02-01", "NETFLIX", -15.99),
		tx("2024-03-02", "NETFLIX", -16.99),
		tx("2024-01-15", "ONE OFF PURCHASE", -200.00),
		tx("2024-01-20", "GYM", -30.00),
		tx("2024-02-20", "GYM", -30.01),
	)

	patterns, err := repo.RecurringTransactions(context.Background(), 3)
	if err != nil {
		t.Fatalf("RecurringTransactions failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Description != "NETFLIX" || p.Occurrences != 3 {
		t.Errorf("pattern = %+v", p)
	}
	if p.MinAmount != -16.99 || p.MaxAmount != -15.99 {
		t.Errorf("amount spread = [%v, %v]", p.MinAmount, p.MaxAmount)
	}

	t.Run("lower threshold admits more patterns", func(t *testing.T) {
		patterns, err := repo.RecurringTransactions(context.Background(), 2)
		if err != nil {
			t.Fatalf("RecurringTransactions failed: %v", err)
		}
		if len(patterns) != 2 {
			t.Errorf("got %d patterns, want 2", len(patterns))
		}
	})
}

func TestPersonMappings(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	pm, err := repo.AddPersonMapping(ctx, "  Alice  ", " acme ")
	if err != nil {
		t.Fatalf("AddPersonMapping failed: %v", err)
	}
	if pm.PersonName != "Alice" || pm.Keyword != "acme" {
		t.Errorf("mapping not trimmed: %+v", pm)
	}
	if pm.ID == 0 {
		t.Error("expected a non-zero id")
	}

	t.Run("duplicate pair is ErrConflict", func(t *testing.T) {
		_, err := repo.AddPersonMapping(ctx, "Alice", "acme")
		if !errors.Is(err, core.ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("empty person name rejected", func(t *testing.T) {
		_, err := repo.AddPersonMapping(ctx, "   ", "kw")
		if !errors.Is(err, core.ErrEmptyPersonName) {
			t.Errorf("got %v, want ErrEmptyPersonName", err)
		}
	})

	t.Run("empty keyword rejected", func(t *testing.T) {
		_, err := repo.AddPersonMapping(ctx, "Bob", "")
		if !errors.Is(err, core.ErrEmptyKeyword) {
			t.Errorf("got %v, want ErrEmptyKeyword", err)
		}
	})

	t.Run("delete then delete again", func(t *testing.T) {
		if err := repo.DeletePersonMapping(ctx, pm.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if err := repo.DeletePersonMapping(ctx, pm.ID); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestContributions(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, m := range [][2]string{{"Beta", "shared"}, {"Acme", "shared"}, {"Acme", "acme"}, {"Beta", "beta"}} {
		if _, err := repo.AddPersonMapping(ctx, m[0], m[1]); err != nil {
			t.Fatalf("AddPersonMapping(%v) failed: %v", m, err)
		}
	}
	mustInsert(t, repo,
		tx("2024-01-05", "DEPOSIT ACME PAYROLL", 1000),
		tx("2024-01-10", "DEPOSIT BETA BONUS", 200),
		tx("2024-01-15", "SHARED HOUSEHOLD TOPUP", 300),
		tx("2024-01-20", "SHARED WITHDRAWAL", -50),
		tx("2024-01-25", "UNATTRIBUTED DEPOSIT", 75),
	)

	t.Run("ambiguous match resolves to alphabetically first person", func(t *testing.T) {
		contribs, err := repo.Contributions(ctx, core.ContributionFilter{})
		if err != nil {
			t.Fatalf("Contributions failed: %v", err)
		}
		if len(contribs) != 3 {
			t.Fatalf("got %d contributions, want 3", len(contribs))
		}
		for _, c := range contribs {
			if c.Description == "SHARED HOUSEHOLD TOPUP" && c.PersonName != "Acme" {
				t.Errorf("tie resolved to %q, want Acme", c.PersonName)
			}
		}
	})

	t.Run("withdrawals and unmatched deposits excluded", func(t *testing.T) {
		contribs, err := repo.Contributions(ctx, core.ContributionFilter{})
		if err != nil {
			t.Fatalf("Contributions failed: %v", err)
		}
		for _, c := range contribs {
			if c.Description == "SHARED WITHDRAWAL" || c.Description == "UNATTRIBUTED DEPOSIT" {
				t.Errorf("unexpected contribution %q", c.Description)
			}
		}
	})

	t.Run("person filter", func(t *testing.T) {
		contribs, err := repo.Contributions(ctx, core.ContributionFilter{PersonName: "Beta"})
		if err != nil {
			t.Fatalf("Contributions failed: %v", err)
		}
		if len(contribs) != 2 {
			t.Errorf("got %d contributions for Beta, want 2", len(contribs))
		}
	})

	t.Run("statistics fan out shared deposits to both persons", func(t *testing.T) {
		stats, err := repo.ContributionStatistics(ctx, core.DateRange{})
		if err != nil {
			t.Fatalf("ContributionStatistics failed: %v", err)
		}
		if len(stats.ByPerson) != 2 {
			t.Fatalf("got %d person rows, want 2", len(stats.ByPerson))
		}
		// Acme: 1000 + 300; Beta: 200 + 300. Shared counts for both.
		if stats.ByPerson[0].PersonName != "Acme" || stats.ByPerson[0].Total != 1300 {
			t.Errorf("first person row = %+v", stats.ByPerson[0])
		}
		if stats.ByPerson[1].PersonName != "Beta" || stats.ByPerson[1].Total != 500 {
			t.Errorf("second person row = %+v", stats.ByPerson[1])
		}
		if len(stats.MonthlyByPerson) != 2 {
			t.Errorf("got %d monthly rows, want 2", len(stats.MonthlyByPerson))
		}
	})
}

func TestUsers(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, "auth|abc", "alice@example.com", "Alice Smith", "")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Role != core.RoleViewer {
		t.Errorf("default role = %q, want viewer", u.Role)
	}

	t.Run("duplicate subject is ErrConflict", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, "auth|abc", "other@example.com", "", "")
		if !errors.Is(err, core.ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("lookup by auth id and email", func(t *testing.T) {
		byID, err := repo.GetUserByAuthID(ctx, "auth|abc")
		if err != nil || byID.Email != "alice@example.com" {
			t.Errorf("GetUserByAuthID = %+v, %v", byID, err)
		}
		byEmail, err := repo.GetUserByEmail(ctx, "alice@example.com")
		if err != nil || byEmail.AuthProviderID != "auth|abc" {
			t.Errorf("GetUserByEmail = %+v, %v", byEmail, err)
		}
		if _, err := repo.GetUserByAuthID(ctx, "auth|missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("promote to admin", func(t *testing.T) {
		if err := repo.UpdateUserRole(ctx, "auth|abc", core.RoleAdmin); err != nil {
			t.Fatalf("UpdateUserRole failed: %v", err)
		}
		got, err := repo.GetUserByAuthID(ctx, "auth|abc")
		if err != nil || got.Role != core.RoleAdmin {
			t.Errorf("role after promotion = %q, %v", got.Role, err)
		}
	})

	t.Run("invalid role rejected", func(t *testing.T) {
		if err := repo.UpdateUserRole(ctx, "auth|abc", "superuser"); err == nil {
			t.Error("expected error for unknown role")
		}
	})

	t.Run("touch last login", func(t *testing.T) {
		if err := repo.TouchLastLogin(ctx, "auth|abc"); err != nil {
			t.Fatalf("TouchLastLogin failed: %v", err)
		}
		got, _ := repo.GetUserByAuthID(ctx, "auth|abc")
		if got.LastLoginAt.IsZero() {
			t.Error("LastLoginAt still zero after touch")
		}
	})

	t.Run("list users", func(t *testing.T) {
		users, err := repo.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(users) != 1 {
			t.Fatalf("expected 1 user, got %d", len(users))
		}
		if users[0].AuthProviderID != "auth|abc" {
			t.Errorf("unexpected user %q", users[0].AuthProviderID)
		}
	})
}
