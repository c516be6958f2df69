package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bankdash/internal/amqp"
	"bankdash/internal/auth"
	"bankdash/internal/core"
	"bankdash/internal/importer"
	"bankdash/internal/project"
)

func queryInt(r *http.Request, key string, defaultValue int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func queryDateRange(r *http.Request) core.DateRange {
	return core.DateRange{
		Start: strings.TrimSpace(r.URL.Query().Get("start_date")),
		End:   strings.TrimSpace(r.URL.Query().Get("end_date")),
	}
}

func queryDecimal(r *http.Request, key string) (decimal.NullDecimal, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", key, core.ErrInvalidAmount)
	}
	return decimal.NewNullDecimal(d), nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	txns, err := s.store.ListTransactions(r.Context(), limit, offset)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondList(w, txns)
}

func (s *Server) handleSearchTransactions(w http.ResponseWriter, r *http.Request) {
	filter := core.SearchFilter{
		Term:     strings.TrimSpace(r.URL.Query().Get("search")),
		Range:    queryDateRange(r),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Source:   strings.TrimSpace(r.URL.Query().Get("source")),
	}

	var err error
	if filter.MinAmount, err = queryDecimal(r, "min_amount"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.MaxAmount, err = queryDecimal(r, "max_amount"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txns, err := s.store.SearchTransactions(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondList(w, txns)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var fields core.UpdateFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.UpdateTransaction(r.Context(), id, fields); err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Transaction updated successfully")
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context(), queryDateRange(r))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondData(w, stats)
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	minOccurrences := queryInt(r, "min_occurrences", 3)

	patterns, err := s.store.RecurringTransactions(r.Context(), minOccurrences)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondList(w, patterns)
}

func (s *Server) handleRecurringSuggestions(w http.ResponseWriter, r *http.Request) {
	minOccurrences := queryInt(r, "min_occurrences", 3)

	txns, err := s.store.ListTransactions(r.Context(), 0, 0)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	deposits, withdrawals := project.AnalyzeRecurring(txns, minOccurrences)
	if deposits == nil {
		deposits = []project.RecurringFlow{}
	}
	if withdrawals == nil {
		withdrawals = []project.RecurringFlow{}
	}
	respondData(w, map[string]any{
		"recurring_deposits":    deposits,
		"recurring_withdrawals": withdrawals,
	})
}

type projectionRequest struct {
	CurrentBalance       *decimal.Decimal        `json:"current_balance"`
	Months               *int                    `json:"months"`
	RecurringDeposits    []project.RecurringFlow `json:"recurring_deposits"`
	RecurringWithdrawals []project.RecurringFlow `json:"recurring_withdrawals"`
}

func (s *Server) handleProjections(w http.ResponseWriter, r *http.Request) {
	var req projectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CurrentBalance == nil {
		respondError(w, http.StatusBadRequest, "current_balance is required")
		return
	}

	months := 12
	if req.Months != nil {
		months = *req.Months
	}
	if months < 1 || months > 120 {
		respondError(w, http.StatusBadRequest, "months must be between 1 and 120")
		return
	}

	result := project.Calculate(*req.CurrentBalance, months, req.RecurringDeposits, req.RecurringWithdrawals)
	respondData(w, result)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.Categories(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondList(w, categories)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.Sources(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondList(w, sources)
}

type importResult struct {
	Inserted    int `json:"inserted"`
	Skipped     int `json:"skipped"`
	RowsSkipped int `json:"rows_skipped"`
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CSVPath string `json:"csv_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CSVPath == "" {
		respondError(w, http.StatusBadRequest, "csv_path is required")
		return
	}

	if _, err := os.Stat(req.CSVPath); os.IsNotExist(err) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("CSV file not found: %s", req.CSVPath))
		return
	}

	batch, err := importer.ParseFile(req.CSVPath)
	if err != nil {
		var schemaErr *importer.SchemaError
		if errors.As(err, &schemaErr) {
			respondError(w, http.StatusUnprocessableEntity, schemaErr.Error())
			return
		}
		respondStoreError(w, r, err)
		return
	}

	inserted, skipped, err := s.store.InsertTransactions(r.Context(), batch.Transactions)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Import complete: %d new, %d duplicates", inserted, skipped),
		Data:    importResult{Inserted: inserted, Skipped: skipped, RowsSkipped: batch.RowsSkipped},
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "import queue not configured")
		return
	}

	var req struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if r.Body != nil {
		// Body is optional; a decode failure on an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	requestedBy := ""
	if id, ok := auth.FromContext(r.Context()); ok {
		requestedBy = id.Subject
	}

	msg := amqp.NewImportJobMessage("", requestedBy)
	msg.StartDate = req.StartDate
	msg.EndDate = req.EndDate

	if err := s.jobs.PublishImportJob(r.Context(), msg); err != nil {
		respondStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, envelope{
		Success: true,
		Message: "Import job queued",
		Data:    map[string]string{"job_id": msg.JobID},
	})
}

func (s *Server) handleListPersonMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.store.PersonMappings(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondList(w, mappings)
}

func (s *Server) handleAddPersonMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonName string `json:"person_name"`
		Keyword    string `json:"keyword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "person_name and keyword are required")
		return
	}

	mapping, err := s.store.AddPersonMapping(r.Context(), req.PersonName, req.Keyword)
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			respondError(w, http.StatusConflict, "this mapping already exists")
			return
		}
		respondStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Mapping added successfully",
		Data:    mapping,
	})
}

func (s *Server) handleDeletePersonMapping(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mapping id")
		return
	}

	if err := s.store.DeletePersonMapping(r.Context(), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			respondError(w, http.StatusNotFound, "mapping not found")
			return
		}
		respondStoreError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "Mapping deleted successfully")
}

func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request) {
	filter := core.ContributionFilter{
		PersonName: strings.TrimSpace(r.URL.Query().Get("person_name")),
		Range:      queryDateRange(r),
	}

	contributions, err := s.store.Contributions(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondList(w, contributions)
}

func (s *Server) handleContributionStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ContributionStatistics(r.Context(), queryDateRange(r))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondData(w, stats)
}
