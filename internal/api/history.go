package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nlsql/nlsql/internal/catalog"
)

type checkSQLRequest struct {
	SQL string `json:"sql"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema is not configured", false, nil)
		return
	}
	if err := requireRole(r, roleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	tableName := strings.TrimSpace(r.URL.Query().Get("table"))
	if tableName == "" {
		writeJSON(w, http.StatusOK, deps.Schema)
		return
	}
	table, err := deps.Schema.Lookup(tableName)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, map[string]any{"table": tableName})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_LOOKUP_FAILED", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func handleListHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "history is not configured", false, nil)
		return
	}
	if err := requireRole(r, roleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	entries := deps.History.Entries()
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func handleExportHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "history export is not configured", false, nil)
		return
	}
	if err := requireRole(r, roleHistoryAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	summary, err := deps.Exporter.RunOnce(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "history export failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func handleCheckSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sandbox == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SANDBOX_NOT_CONFIGURED", "sql sandbox is not configured", false, nil)
		return
	}
	if err := requireRole(r, roleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req checkSQLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid sql check request body", false, map[string]any{"details": err.Error()})
		return
	}
	if isBlank(req.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SQL", "sql is required", false, nil)
		return
	}
	result, err := deps.Sandbox.Check(r.Context(), req.SQL)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SANDBOX_FAILED", "sql check failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
