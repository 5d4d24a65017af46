package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrSyncDisabled is returned when no spreadsheet credentials are configured.
var ErrSyncDisabled = errors.New("importer: spreadsheet sync is not configured")

// Source fetches a header row plus data rows from an external tabular source.
type Source interface {
	Fetch(ctx context.Context) (Table, error)
}

type SheetsConfig struct {
	ServiceAccountEmail string
	PrivateKey          string
	SpreadsheetID       string
	Range               string
}

// SheetsSource reads a fixed range from a Google spreadsheet with a service
// account. Calls go through a circuit breaker so a dead API does not stall
// every cron tick for the full timeout.
type SheetsSource struct {
	svc     *sheets.Service
	id      string
	rng     string
	breaker *gobreaker.CircuitBreaker
}

// NewSheetsSource returns ErrSyncDisabled when any credential is missing.
func NewSheetsSource(ctx context.Context, cfg SheetsConfig, log *slog.Logger) (*SheetsSource, error) {
	if cfg.ServiceAccountEmail == "" || cfg.PrivateKey == "" || cfg.SpreadsheetID == "" {
		return nil, ErrSyncDisabled
	}
	creds, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": cfg.ServiceAccountEmail,
		"private_key":  cfg.PrivateKey,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(creds),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("importer: sheets client: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "google-sheets",
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &SheetsSource{svc: svc, id: cfg.SpreadsheetID, rng: cfg.Range, breaker: cb}, nil
}

func (s *SheetsSource) Fetch(ctx context.Context) (Table, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		resp, err := s.svc.Spreadsheets.Values.Get(s.id, s.rng).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return resp.Values, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leads from spreadsheet: %w", err)
	}
	return cellsToTable(out.([][]interface{})), nil
}

func cellsToTable(values [][]interface{}) Table {
	t := make(Table, 0, len(values))
	for _, row := range values {
		cells := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		t = append(t, cells)
	}
	return t
}
