package google

import (
	"errors"
	"fmt"
	"net/http"

	"sheetsync/internal/models"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// IsUnauthorized reports whether err means the credentials were rejected.
func IsUnauthorized(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden
	}
	var rerr *oauth2.RetrieveError
	return errors.As(err, &rerr)
}

// IsRateLimited reports whether the API throttled the request.
func IsRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests
	}
	return false
}

// classify wraps auth failures with models.ErrNotAuthenticated so the engine
// can tell them apart from ordinary remote errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsUnauthorized(err) {
		return fmt.Errorf("%s: %w: %w", op, models.ErrNotAuthenticated, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
