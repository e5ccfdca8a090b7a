package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"sheetsync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	valueInputRaw    = "RAW"
	insertDataRows   = "INSERT_ROWS"
	majorDimensionRo = "ROWS"
)

// SheetsStore is a RemoteStore backed by the Google Sheets values API.
// A store id is a spreadsheet id and a range is an A1 range.
type SheetsStore struct {
	service *sheets.Service
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// StoreOptions configures NewSheetsStore.
type StoreOptions struct {
	CredentialsFile string
	RequestsPerSec  float64
	Burst           int
}

// NewSheetsStore authenticates with a service account key and builds a store.
func NewSheetsStore(ctx context.Context, opts StoreOptions, logger *zerolog.Logger) (*SheetsStore, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return NewSheetsStoreWithService(srv, newLimiter(opts.RequestsPerSec, opts.Burst), logger), nil
}

// NewSheetsStoreWithService wraps an already configured service. A nil limiter
// disables throttling.
func NewSheetsStoreWithService(srv *sheets.Service, limiter *rate.Limiter, logger *zerolog.Logger) *SheetsStore {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sheets_store").Logger()
	}
	return &SheetsStore{service: srv, limiter: limiter, logger: l}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = models.DefaultSheetsRPS
	}
	if burst <= 0 {
		burst = models.DefaultSheetsBurst
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (s *SheetsStore) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// ReadRange returns the values stored in rangeA1.
func (s *SheetsStore) ReadRange(ctx context.Context, storeID, rangeA1 string) (*models.ReadResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.service.Spreadsheets.Values.Get(storeID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, classify("read range", err)
	}

	dim := resp.MajorDimension
	if dim == "" {
		dim = majorDimensionRo
	}
	s.logger.Debug().Str("store_id", storeID).Str("range", resp.Range).Int("rows", len(resp.Values)).Msg("range read")
	return &models.ReadResult{Range: resp.Range, Values: models.Matrix(resp.Values), MajorDimension: dim}, nil
}

// WriteRange overwrites rangeA1 with values. Values are stored as given,
// without formula or locale parsing.
func (s *SheetsStore) WriteRange(ctx context.Context, storeID, rangeA1 string, values models.Matrix) (*models.WriteSummary, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	vr := &sheets.ValueRange{Values: values}
	resp, err := s.service.Spreadsheets.Values.Update(storeID, rangeA1, vr).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("write range", err)
	}

	s.logger.Debug().Str("store_id", storeID).Str("range", resp.UpdatedRange).Int64("cells", resp.UpdatedCells).Msg("range written")
	return &models.WriteSummary{
		UpdatedRange:   resp.UpdatedRange,
		UpdatedRows:    resp.UpdatedRows,
		UpdatedColumns: resp.UpdatedColumns,
		UpdatedCells:   resp.UpdatedCells,
	}, nil
}

// AppendRange adds values as new rows after the table found at rangeA1.
func (s *SheetsStore) AppendRange(ctx context.Context, storeID, rangeA1 string, values models.Matrix) (*models.WriteSummary, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	vr := &sheets.ValueRange{Values: values}
	resp, err := s.service.Spreadsheets.Values.Append(storeID, rangeA1, vr).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertDataRows).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("append range", err)
	}

	summary := &models.WriteSummary{}
	if u := resp.Updates; u != nil {
		summary.UpdatedRange = u.UpdatedRange
		summary.UpdatedRows = u.UpdatedRows
		summary.UpdatedColumns = u.UpdatedColumns
		summary.UpdatedCells = u.UpdatedCells
	}
	s.logger.Debug().Str("store_id", storeID).Str("range", summary.UpdatedRange).Msg("rows appended")
	return summary, nil
}

// TestConnection проверяет доступ к таблице
func (s *SheetsStore) TestConnection(ctx context.Context, storeID string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.service.Spreadsheets.Get(storeID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return classify("connection test", err)
	}
	return nil
}

// ServiceAccountEmail возвращает email сервисного аккаунта
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}
