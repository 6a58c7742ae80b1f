package gdrive

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

func apiError(code int, reason string) *googleapi.Error {
	gerr := &googleapi.Error{Code: code}
	if reason != "" {
		gerr.Errors = []googleapi.ErrorItem{{Reason: reason}}
	}
	return gerr
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"unauthorized", apiError(401, ""), domain.ErrCloudAuth},
		{"forbidden plain", apiError(403, "insufficientPermissions"), domain.ErrCloudAuth},
		{"forbidden no reason", apiError(403, ""), domain.ErrCloudAuth},
		{"quota exceeded", apiError(403, "storageQuotaExceeded"), domain.ErrStorageQuota},
		{"rate limited", apiError(403, "rateLimitExceeded"), domain.ErrCloudBackoff},
		{"user rate limited", apiError(403, "userRateLimitExceeded"), domain.ErrCloudBackoff},
		{"not found", apiError(404, ""), domain.ErrRemoteNotFound},
		{"too many requests", apiError(429, ""), domain.ErrCloudBackoff},
		{"server error", apiError(500, ""), domain.ErrCloudBackoff},
		{"bad gateway", apiError(502, ""), domain.ErrCloudBackoff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.in), tt.want)
		})
	}
}

func TestMapErrorPassesThroughUnknown(t *testing.T) {
	assert.Nil(t, mapError(nil))

	plain := fmt.Errorf("connection reset")
	assert.Equal(t, plain, mapError(plain))

	// Client errors outside the mapped set stay as-is.
	teapot := apiError(418, "")
	assert.Equal(t, error(teapot), mapError(teapot))
}

func TestMapErrorUnwrapsWrappedAPIError(t *testing.T) {
	wrapped := fmt.Errorf("listing files: %w", apiError(401, ""))
	assert.ErrorIs(t, mapError(wrapped), domain.ErrCloudAuth)
}
