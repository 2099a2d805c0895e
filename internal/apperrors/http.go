package apperrors

import (
	"context"
	"errors"
	"net/http"
)

// statusCodes is checked in order; the first sentinel err matches wins.
// DeadlineExceeded precedes ErrDispatch so a timed out command reports 504.
var statusCodes = []struct {
	sentinel error
	status   int
	code     string
}{
	{ErrValidation, http.StatusBadRequest, "validation"},
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrConflict, http.StatusConflict, "conflict"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{ErrDispatch, http.StatusBadGateway, "dispatch"},
	{ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{ErrPersistence, http.StatusInternalServerError, "persistence"},
	{ErrCorrupt, http.StatusInternalServerError, "corrupt"},
}

// HTTPStatus maps an error to the appropriate HTTP status code.
func HTTPStatus(err error) int {
	status, _ := classify(err)
	return status
}

// Code returns a stable machine-readable code for err, "internal" when no
// sentinel matches.
func Code(err error) string {
	_, code := classify(err)
	return code
}

func classify(err error) (int, string) {
	if err != nil {
		for _, sc := range statusCodes {
			if errors.Is(err, sc.sentinel) {
				return sc.status, sc.code
			}
		}
	}
	return http.StatusInternalServerError, "internal"
}
