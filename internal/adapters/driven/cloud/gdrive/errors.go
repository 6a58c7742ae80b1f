package gdrive

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// mapError translates a Drive API failure onto the domain cloud
// sentinels. The HTTP status carries most of the signal; 403 needs the
// error reason to split quota exhaustion and rate limiting from real
// permission failures.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	switch gerr.Code {
	case http.StatusUnauthorized:
		return domain.ErrCloudAuth
	case http.StatusForbidden:
		switch reason(gerr) {
		case "storageQuotaExceeded":
			return domain.ErrStorageQuota
		case "rateLimitExceeded", "userRateLimitExceeded":
			return domain.ErrCloudBackoff
		default:
			return domain.ErrCloudAuth
		}
	case http.StatusNotFound:
		return domain.ErrRemoteNotFound
	case http.StatusTooManyRequests:
		return domain.ErrCloudBackoff
	}
	if gerr.Code >= 500 {
		return domain.ErrCloudBackoff
	}
	return err
}

func reason(gerr *googleapi.Error) string {
	if len(gerr.Errors) > 0 {
		return gerr.Errors[0].Reason
	}
	return ""
}
