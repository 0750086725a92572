// Package ingest loads the raw transaction, card, and user CSV exports,
// joins them into enriched domain transactions, and applies the
// data-quality filters: rows with an unusable amount or timestamp are
// dropped and counted, never passed downstream and never fatal.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oversight-labs/amlsentry/internal/domain"
)

// Stats reports what the loader did with the raw input.
type Stats struct {
	RowsRead            int
	MissingAmount       int
	MalformedTimestamps int
	CardsMatched        int
	UsersMatched        int
}

// Excluded returns the number of rows dropped for data-quality reasons.
func (s Stats) Excluded() int {
	return s.MissingAmount + s.MalformedTimestamps
}

// Loader reads the three raw CSV files and produces enriched transactions.
type Loader struct {
	transactionsPath string
	cardsPath        string
	usersPath        string
	logger           *slog.Logger
}

// NewLoader creates a Loader for the given file paths. cardsPath and
// usersPath may be empty; enrichment fields then stay absent.
func NewLoader(transactionsPath, cardsPath, usersPath string, logger *slog.Logger) *Loader {
	return &Loader{
		transactionsPath: transactionsPath,
		cardsPath:        cardsPath,
		usersPath:        usersPath,
		logger:           logger.With(slog.String("component", "ingest")),
	}
}

// Load reads and joins the raw files. Transactions are left-joined with
// cards on card_id and with users on client_id; unmatched rows simply keep
// their enrichment fields absent.
func (l *Loader) Load(ctx context.Context) ([]domain.Transaction, Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("ingest: load: %w", err)
	}

	f, err := os.Open(l.transactionsPath)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("ingest: open transactions: %w", err)
	}
	defer f.Close()

	var cards map[string]cardRow
	if l.cardsPath != "" {
		cf, err := os.Open(l.cardsPath)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("ingest: open cards: %w", err)
		}
		cards, err = readCards(cf)
		cf.Close()
		if err != nil {
			return nil, Stats{}, err
		}
	}

	var users map[string]userRow
	if l.usersPath != "" {
		uf, err := os.Open(l.usersPath)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("ingest: open users: %w", err)
		}
		users, err = readUsers(uf)
		uf.Close()
		if err != nil {
			return nil, Stats{}, err
		}
	}

	txns, stats, err := ReadTransactions(f, cards, users)
	if err != nil {
		return nil, stats, err
	}

	l.logger.Info("batch loaded",
		slog.Int("rows", stats.RowsRead),
		slog.Int("transactions", len(txns)),
		slog.Int("missing_amount", stats.MissingAmount),
		slog.Int("malformed_timestamps", stats.MalformedTimestamps),
	)

	return txns, stats, nil
}

// ReadTransactions parses the transactions CSV and joins the optional card
// and user lookups. The batch keeps input order; Transaction.Index records
// each surviving row's original position.
func ReadTransactions(r io.Reader, cards map[string]cardRow, users map[string]userRow) ([]domain.Transaction, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("ingest: read transactions header: %w", err)
	}
	cols := indexColumns(header)

	var (
		txns  []domain.Transaction
		stats Stats
	)

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("ingest: read transactions row %d: %w", stats.RowsRead+2, err)
		}
		index := stats.RowsRead
		stats.RowsRead++

		amount, ok := parseMoney(field(rec, cols, "amount"))
		if !ok {
			stats.MissingAmount++
			continue
		}

		ts, ok := parseTimestamp(field(rec, cols, "date"))
		if !ok {
			stats.MalformedTimestamps++
			continue
		}

		id, _ := strconv.ParseInt(field(rec, cols, "id"), 10, 64)

		t := domain.Transaction{
			ID:            id,
			EntityID:      field(rec, cols, "client_id"),
			CardID:        field(rec, cols, "card_id"),
			Timestamp:     ts,
			Amount:        amount,
			MerchantID:    field(rec, cols, "merchant_id"),
			MerchantCity:  field(rec, cols, "merchant_city"),
			MerchantState: field(rec, cols, "merchant_state"),
			MCC:           field(rec, cols, "mcc"),
			UseChip:       field(rec, cols, "use_chip"),
			Index:         index,
		}

		if errs := field(rec, cols, "errors"); errs != "" {
			t.Errors = &errs
		}

		if card, ok := cards[t.CardID]; ok {
			stats.CardsMatched++
			t.CardBrand = card.Brand
			t.CardType = card.Type
			t.CardOnDarkWeb = card.OnDarkWeb
			t.AccountOpenDate = card.AcctOpenDate
			t.CreditLimit = card.CreditLimit
		}
		if user, ok := users[t.EntityID]; ok {
			stats.UsersMatched++
			t.Address = user.Address
			t.YearlyIncome = user.YearlyIncome
			t.TotalDebt = user.TotalDebt
			t.PerCapitaIncome = user.PerCapitaIncome
			t.CreditScore = user.CreditScore
		}

		txns = append(txns, t)
	}

	return txns, stats, nil
}

// cardRow is the card enrichment joined on card_id.
type cardRow struct {
	Brand        string
	Type         string
	OnDarkWeb    *bool
	AcctOpenDate *time.Time
	CreditLimit  *float64
}

func readCards(r io.Reader) (map[string]cardRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: read cards header: %w", err)
	}
	cols := indexColumns(header)

	out := make(map[string]cardRow)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: read cards row: %w", err)
		}

		row := cardRow{
			Brand: field(rec, cols, "card_brand"),
			Type:  field(rec, cols, "card_type"),
		}
		if v := field(rec, cols, "card_on_dark_web"); v != "" {
			b := strings.EqualFold(v, "yes") || strings.EqualFold(v, "true")
			row.OnDarkWeb = &b
		}
		if ts, ok := parseOpenDate(field(rec, cols, "acct_open_date")); ok {
			row.AcctOpenDate = &ts
		}
		if limit, ok := parseMoney(field(rec, cols, "credit_limit")); ok {
			row.CreditLimit = &limit
		}

		out[field(rec, cols, "id")] = row
	}
	return out, nil
}

// userRow is the account-holder enrichment joined on client_id.
type userRow struct {
	Address         string
	YearlyIncome    *float64
	TotalDebt       *float64
	PerCapitaIncome *float64
	CreditScore     *int
}

func readUsers(r io.Reader) (map[string]userRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: read users header: %w", err)
	}
	cols := indexColumns(header)

	out := make(map[string]userRow)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: read users row: %w", err)
		}

		row := userRow{Address: field(rec, cols, "address")}
		if v, ok := parseMoney(field(rec, cols, "yearly_income")); ok {
			row.YearlyIncome = &v
		}
		if v, ok := parseMoney(field(rec, cols, "total_debt")); ok {
			row.TotalDebt = &v
		}
		if v, ok := parseMoney(field(rec, cols, "per_capita_income")); ok {
			row.PerCapitaIncome = &v
		}
		if v, err := strconv.Atoi(field(rec, cols, "credit_score")); err == nil {
			row.CreditScore = &v
		}

		out[field(rec, cols, "id")] = row
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Parsing helpers
// ---------------------------------------------------------------------------

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseMoney strips currency formatting ("$1,234.50") and parses the value.
func parseMoney(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

var openDateLayouts = []string{
	"01/2006",
	"2006-01-02",
	"2006-01",
}

func parseOpenDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range openDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
