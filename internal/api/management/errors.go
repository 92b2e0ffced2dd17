package management

import (
	"errors"
	"net/http"

	"github.com/CaioWing/apkharbor/internal/api/response"
	"github.com/CaioWing/apkharbor/internal/domain"
)

// statusForRunError maps a failed run to an HTTP status. Problems with the
// request are 4xx; failures talking to the publishing API are 5xx.
func statusForRunError(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDiscovery), errors.Is(err, domain.ErrInvalidNaming):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicateArtifact):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAmbiguousResponse):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrAuthentication), errors.Is(err, domain.ErrAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeRunError(w http.ResponseWriter, title string, run *domain.PublishRun, err error) {
	body := response.RunFailure{
		Error:  err.Error(),
		Report: domain.Report(title, err),
	}
	if run != nil {
		body.Run = run
	}
	response.JSON(w, statusForRunError(err), body)
}
