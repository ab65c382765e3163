package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"settlement_ledger/internal/authz"      // Authorization context
	"settlement_ledger/internal/domain"     // Result envelope and errors
	"settlement_ledger/internal/middleware" // Actor lookup

	"github.com/gin-gonic/gin" // Gin web framework
)

// StatusFor maps an error kind to the HTTP status reported for it
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInsufficientFunds, domain.KindOverSubmission, domain.KindNotEligible:
		return http.StatusUnprocessableEntity
	case domain.KindAlreadyProcessed:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindLockTimeout:
		return http.StatusServiceUnavailable
	case domain.KindInfrastructure:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// respond writes the {success, message, data} envelope for an operation outcome
func respond(c *gin.Context, okStatus int, data any, err error, okMessage string) {
	res := domain.ResultOf(data, err, okMessage)
	if res.Success {
		c.JSON(okStatus, res)
		return
	}
	c.JSON(StatusFor(res.Kind), res)
}

// badRequest rejects a malformed body or path
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, domain.Result{Message: msg, Kind: domain.KindValidation})
}

// actorOf returns the caller's authorization context or writes 401
func actorOf(c *gin.Context) (authz.Context, bool) {
	actor, ok := middleware.Actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, domain.Result{Message: "Unauthorized"})
	}
	return actor, ok
}

// idParam parses the :id path parameter
func idParam(c *gin.Context) (uint, bool) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, "Invalid id")
		return 0, false
	}
	return uint(v), true
}

// uintQuery parses an optional positive integer query parameter
func uintQuery(c *gin.Context, name string) uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

// pageParams reads page and page_size, falling back to 1 and 20
func pageParams(c *gin.Context) (int, int) {
	page := 1      // Default page number
	pageSize := 20 // Default page size
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= 100 {
		pageSize = v
	}
	return page, pageSize
}
