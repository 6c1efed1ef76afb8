package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
	submissiondomain "github.com/smallbiznis/revenuepulse/internal/submission/domain"
)

type submitStripeRequest struct {
	StripeAPIKey string `json:"stripeApiKey"`
}

type submitStripeResponse struct {
	Queued bool   `json:"queued"`
	ID     string `json:"id"`
}

type listStripeDataResponse struct {
	Data  []scrapeddatadomain.ScrapedDataRecord `json:"data"`
	Count int                                   `json:"count"`
}

func (s *Server) SubmitStripeJob(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req submitStripeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id, err := s.submissions.Submit(c.Request.Context(), ownerID, req.StripeAPIKey)
	if err != nil {
		var limited *submissiondomain.RateLimitedError
		if errors.As(err, &limited) {
			c.Header("Retry-After", retryAfterSeconds(limited))
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, submitStripeResponse{Queued: true, ID: id})
}

func (s *Server) GetStripeJobStatus(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	view, err := s.submissions.Status(c.Request.Context(), ownerID, strings.TrimSpace(c.Param("jobId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ListStripeData(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	records, err := s.submissions.ListResults(c.Request.Context(), ownerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if records == nil {
		records = []scrapeddatadomain.ScrapedDataRecord{}
	}

	c.JSON(http.StatusOK, listStripeDataResponse{Data: records, Count: len(records)})
}

func (s *Server) GetStripeData(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	record, err := s.submissions.GetResult(c.Request.Context(), ownerID, strings.TrimSpace(c.Param("jobId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func retryAfterSeconds(err *submissiondomain.RateLimitedError) string {
	seconds := int(math.Ceil(err.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
