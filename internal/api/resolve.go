package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nlsql/nlsql/internal/resolver"
)

type queryRequest struct {
	Query string `json:"query"`
}

// readQuery decodes the {"query": "..."} body shared by the resolution
// routes. Unknown fields are tolerated; a missing, blank or non-string query
// is reported as false.
func readQuery(r *http.Request) (string, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", false
	}
	if isBlank(req.Query) {
		return "", false
	}
	return req.Query, true
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "query resolution is not configured", false, nil)
		return
	}
	if err := requireRole(r, roleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	naturalQuery, ok := readQuery(r)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_QUERY", resolver.MessageInvalidInput, false, nil)
		return
	}
	result, err := deps.Resolver.ConvertQuery(r.Context(), naturalQuery)
	if err != nil {
		handleResolverError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sqlQuery": result.Text})
}

func handleExplain(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESOLVER_NOT_CONFIGURED", "query resolution is not configured", false, nil)
		return
	}
	if err := requireRole(r, roleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sqlQuery, ok := readQuery(r)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_QUERY", resolver.MessageInvalidInput, false, nil)
		return
	}
	explanation, err := deps.Resolver.ExplainQuery(r.Context(), sqlQuery)
	if err != nil {
		handleResolverError(deps, w, r, err)
		return
	}
	if explanation.FromHistory {
		writeJSON(w, http.StatusOK, map[string]any{"naturalQuery": explanation.Text})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"explanation": explanation.Text})
}

// handleValidate keeps a fixed {feasible, sqlQuery|message} body on every
// outcome, including errors.
func handleValidate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Resolver == nil {
		writeJSON(w, http.StatusNotImplemented, resolver.Validation{Message: "query resolution is not configured"})
		return
	}
	naturalQuery, ok := readQuery(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, resolver.Validation{Message: resolver.MessageInvalidInput})
		return
	}
	validation, err := deps.Resolver.ValidateQuery(r.Context(), naturalQuery)
	if err != nil {
		if errors.Is(err, resolver.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, resolver.Validation{Message: resolver.MessageInvalidInput})
			return
		}
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "validate query failed", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, resolver.Validation{Message: "Internal Server Error"})
		return
	}
	writeJSON(w, http.StatusOK, validation)
}

func handleResolverError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, resolver.ErrInvalidInput) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_QUERY", resolver.MessageInvalidInput, false, nil)
		return
	}
	if deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), "query resolution failed", "error", err)
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "RESOLUTION_FAILED", "query resolution failed", true, map[string]any{"details": err.Error()})
}
