package playapi

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// translateError converts client-library failures into domain errors so
// that nothing above this package depends on googleapi types.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %s: %v", domain.ErrAuthentication, op, retrieveErr)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &domain.APIError{
			Op:         op,
			StatusCode: apiErr.Code,
			Messages:   messages(apiErr),
		}
	}

	if isTimeout(err) {
		return &domain.APIError{
			Op:  op,
			Err: fmt.Errorf("%w: %v", domain.ErrAmbiguousResponse, err),
		}
	}

	return &domain.APIError{Op: op, Err: err}
}

func messages(e *googleapi.Error) []string {
	seen := map[string]bool{}
	var out []string
	add := func(m string) {
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}
	add(e.Message)
	for _, item := range e.Errors {
		add(item.Message)
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
