package middleware

import (
	"errors"
	"net/http"

	"github.com/cloo-solutions/kbsearch/internal/api"
	"github.com/cloo-solutions/kbsearch/internal/domain"
)

// DefaultMaxBodyBytes bounds a search request body. Queries are short
// questions, so anything near this size is not a real search.
const DefaultMaxBodyBytes int64 = 64 << 10

// MaxBodyBytes rejects request bodies over limit with REQUEST_TOO_LARGE.
// Bodies without a declared length are cut off while reading; handlers see
// an *http.MaxBytesError, which IsBodyTooLarge recognizes.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.HandleError(w, domain.ErrRequestTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// IsBodyTooLarge reports whether err came from reading past the body limit.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
