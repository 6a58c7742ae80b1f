package driving

import (
	"context"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// Ingestor turns one capture attempt into exactly one receipt and, on
// success, exactly one envelope (new or existing). Save never returns a
// raw fault: failures are classified into the outcome's taxonomy code.
type Ingestor interface {
	Save(ctx context.Context, capture domain.Capture) domain.SaveOutcome
}
