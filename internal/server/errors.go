package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	authdomain "github.com/smallbiznis/revenuepulse/internal/auth/domain"
	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
	submissiondomain "github.com/smallbiznis/revenuepulse/internal/submission/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// errorRule maps a family of domain errors onto one HTTP response.
type errorRule struct {
	status  int
	payload errorPayload
	matches []error
}

var errorRules = []errorRule{
	{
		status: http.StatusBadRequest,
		payload: errorPayload{Type: "validation_error", Message: "validation error", Errors: []ValidationError{
			{Field: "stripeApiKey", Code: "required", Message: "stripeApiKey is required"},
		}},
		matches: []error{submissiondomain.ErrMissingCredential},
	},
	{
		status: http.StatusBadRequest,
		payload: errorPayload{Type: "validation_error", Message: "validation error", Errors: []ValidationError{
			{Field: "request", Code: "invalid_request", Message: "invalid request"},
		}},
		matches: []error{ErrInvalidRequest},
	},
	{
		status:  http.StatusUnauthorized,
		payload: errorPayload{Type: "unauthorized", Message: "unauthorized"},
		matches: []error{ErrUnauthorized, authdomain.ErrInvalidSession, authdomain.ErrSessionExpired, authdomain.ErrSessionRevoked},
	},
	{
		status:  http.StatusForbidden,
		payload: errorPayload{Type: "forbidden", Message: "forbidden"},
		matches: []error{submissiondomain.ErrForbidden},
	},
	{
		status:  http.StatusNotFound,
		payload: errorPayload{Type: "not_found", Message: "not found"},
		matches: []error{ErrNotFound, jobdomain.ErrJobNotFound, scrapeddatadomain.ErrNotFound},
	},
	{
		status:  http.StatusTooManyRequests,
		payload: errorPayload{Type: "rate_limited", Message: "too many requests"},
		matches: []error{submissiondomain.ErrRateLimited},
	},
	{
		status:  http.StatusServiceUnavailable,
		payload: errorPayload{Type: "service_unavailable", Message: "service unavailable"},
		matches: []error{submissiondomain.ErrUnavailable},
	},
}

var internalError = errorPayload{Type: "internal_error", Message: "internal server error"}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return &ValidationErrors{Errors: []ValidationError{
		{Field: "request", Code: "invalid_request", Message: "invalid request"},
	}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalError
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, rule := range errorRules {
		for _, target := range rule.matches {
			if errors.Is(err, target) {
				return rule.status, rule.payload
			}
		}
	}
	return http.StatusInternalServerError, internalError
}

// classifyErrorForLog reports the envelope type and the most specific code
// for the request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
