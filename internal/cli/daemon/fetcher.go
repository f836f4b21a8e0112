package daemon

import (
	"context"

	"github.com/cloo-solutions/kbsearch/internal/domain"
)

// unconfiguredFetcher stands in for the vendor client in commands that only
// read the local snapshot.
type unconfiguredFetcher struct{}

func (unconfiguredFetcher) FetchAll(ctx context.Context) ([]domain.KnowledgeRecord, error) {
	return nil, domain.ErrMissingCredential
}

func (unconfiguredFetcher) TestConnection(ctx context.Context) domain.ConnectionResult {
	return domain.ConnectionResult{
		Success: false,
		Error:   domain.ErrMissingCredential.Message,
		Message: "connection failed",
	}
}
