package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"sheetsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(ctx context.Context, t *testing.T) (*http.ServeMux, *SheetsStore) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	srv, err := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return mux, NewSheetsStoreWithService(srv, rate.NewLimiter(rate.Inf, 1), nil)
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": msg},
	})
}

func TestSheetsStore_ReadRange(t *testing.T) {
	ctx := context.Background()
	mux, s := setupMockServer(ctx, t)
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/Data!A1:B2", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Range:  "Data!A1:B2",
			Values: [][]interface{}{{"name", "qty"}, {"bolt", "4"}},
		})
	})

	res, err := s.ReadRange(ctx, "sheet-1", "Data!A1:B2")
	require.NoError(t, err)
	assert.Equal(t, "Data!A1:B2", res.Range)
	assert.Equal(t, "ROWS", res.MajorDimension)
	assert.Equal(t, models.Matrix{{"name", "qty"}, {"bolt", "4"}}, res.Values)
}

func TestSheetsStore_WriteRange(t *testing.T) {
	ctx := context.Background()
	mux, s := setupMockServer(ctx, t)
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/Data!A1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))

		var body sheets.ValueRange
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, [][]interface{}{{"=SUM(1,2)"}}, body.Values)

		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{
			UpdatedRange: "Data!A1", UpdatedRows: 1, UpdatedColumns: 1, UpdatedCells: 1,
		})
	})

	sum, err := s.WriteRange(ctx, "sheet-1", "Data!A1", models.Matrix{{"=SUM(1,2)"}})
	require.NoError(t, err)
	assert.Equal(t, &models.WriteSummary{UpdatedRange: "Data!A1", UpdatedRows: 1, UpdatedColumns: 1, UpdatedCells: 1}, sum)
}

func TestSheetsStore_AppendRange(t *testing.T) {
	ctx := context.Background()
	mux, s := setupMockServer(ctx, t)
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/Log!A:C:append", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Log!A7:C8", UpdatedRows: 2, UpdatedColumns: 3, UpdatedCells: 6},
		})
	})

	sum, err := s.AppendRange(ctx, "sheet-1", "Log!A:C", models.Matrix{{"a", "b", "c"}, {"d", "e", "f"}})
	require.NoError(t, err)
	assert.Equal(t, "Log!A7:C8", sum.UpdatedRange)
	assert.Equal(t, int64(6), sum.UpdatedCells)
}

func TestSheetsStore_AuthErrors(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		ctx := context.Background()
		mux, s := setupMockServer(ctx, t)
		mux.HandleFunc("/v4/spreadsheets/sheet-1/values/A1", func(w http.ResponseWriter, r *http.Request) {
			writeAPIError(w, code, "denied")
		})

		_, err := s.ReadRange(ctx, "sheet-1", "A1")
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrNotAuthenticated, "status %d", code)

		var gerr *googleapi.Error
		require.ErrorAs(t, err, &gerr)
		assert.Equal(t, code, gerr.Code)
	}
}

func TestSheetsStore_RemoteErrorIsNotAuth(t *testing.T) {
	ctx := context.Background()
	mux, s := setupMockServer(ctx, t)
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/Bad!!", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusBadRequest, "Unable to parse range")
	})
	mux.HandleFunc("/v4/spreadsheets/sheet-1/values/Busy", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusTooManyRequests, "quota")
	})

	_, err := s.WriteRange(ctx, "sheet-1", "Bad!!", models.Matrix{{"x"}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrNotAuthenticated))
	assert.Contains(t, err.Error(), "Unable to parse range")

	_, err = s.ReadRange(ctx, "sheet-1", "Busy")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestSheetsStore_CancelledContext(t *testing.T) {
	ctx := context.Background()
	_, s := setupMockServer(ctx, t)
	s.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	require.True(t, s.limiter.Allow())

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := s.ReadRange(cctx, "sheet-1", "A1")
	assert.Error(t, err)
}

func TestSheetsStore_TestConnection(t *testing.T) {
	ctx := context.Background()
	mux, s := setupMockServer(ctx, t)
	mux.HandleFunc("/v4/spreadsheets/sheet-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.Spreadsheet{SpreadsheetId: "sheet-1"})
	})

	assert.NoError(t, s.TestConnection(ctx, "sheet-1"))
	assert.Error(t, s.TestConnection(ctx, "missing"))
}

func TestServiceAccountEmail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email":"sync@project.iam.gserviceaccount.com"}`), 0o600))

	email, err := ServiceAccountEmail(path)
	require.NoError(t, err)
	assert.Equal(t, "sync@project.iam.gserviceaccount.com", email)

	_, err = ServiceAccountEmail(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestNewSheetsStore_BadCredentials(t *testing.T) {
	_, err := NewSheetsStore(context.Background(), StoreOptions{CredentialsFile: "/nonexistent/creds.json"}, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = NewSheetsStore(context.Background(), StoreOptions{CredentialsFile: path}, nil)
	assert.Error(t, err)
}
