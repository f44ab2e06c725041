package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/diff"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/intent"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/mapping"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/transfer"
)

// Service is what the request layer needs from the orchestrator.
type Service interface {
	Pinger
	Transfer(ctx context.Context, req transfer.Request) (transfer.Result, error)
	Update(ctx context.Context, req transfer.Request) (transfer.Result, error)
	Edit(ctx context.Context, req transfer.Request) (transfer.Result, error)
	Delete(ctx context.Context, req transfer.Request) (transfer.Result, error)
	ResetSequence(ctx context.Context, table string) (bool, error)
	ResetAllSequences(ctx context.Context) (int, error)
	ClearMapping(ctx context.Context, sourceDB, table string) error
	Status(ctx context.Context) ([]mapping.Count, error)
	MappedKeys(ctx context.Context, sourceDB, table string) ([]string, error)
	PendingEdits(ctx context.Context, limit int) ([]intent.Intent, error)
	Databases(ctx context.Context) ([]string, error)
	Tables(ctx context.Context, sourceDB string) ([]string, error)
	Compare(ctx context.Context, sourceDB, table string) (diff.TableDiff, error)
}

type TransferHandler struct {
	service Service
	nav     *Navigator
	logger  requestLogger
}

func NewTransferHandler(service Service, nav *Navigator, logger requestLogger) *TransferHandler {
	return &TransferHandler{service: service, nav: nav, logger: logger}
}

// rowID accepts row_id as a JSON string or number.
type rowID string

func (id *rowID) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = rowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = rowID(n.String())
	return nil
}

type rowRequest struct {
	DBName        string         `json:"db_name"`
	TableName     string         `json:"table_name"`
	RowID         rowID          `json:"row_id"`
	IDColumn      string         `json:"id_column"`
	ResetSequence bool           `json:"reset_sequence"`
	Values        map[string]any `json:"values"`
}

func (r rowRequest) toTransfer() transfer.Request {
	return transfer.Request{
		SourceDB:      r.DBName,
		Table:         r.TableName,
		RowKey:        string(r.RowID),
		KeyColumn:     r.IDColumn,
		ResetSequence: r.ResetSequence,
		Values:        r.Values,
	}
}

type resultResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  transfer.Result `json:"result"`
}

func decodeRowRequest(w http.ResponseWriter, r *http.Request) (rowRequest, bool) {
	var req rowRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return rowRequest{}, false
	}
	if req.DBName == "" || req.TableName == "" || req.RowID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "db_name, table_name and row_id are required")
		return rowRequest{}, false
	}
	return req, true
}

type rowOperation func(ctx context.Context, req transfer.Request) (transfer.Result, error)

func (h *TransferHandler) serveRow(w http.ResponseWriter, r *http.Request, op string, fn rowOperation) {
	req, ok := decodeRowRequest(w, r)
	if !ok {
		return
	}
	res, err := fn(r.Context(), req.toTransfer())
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: res.Message, Result: res})
}

func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.serveRow(w, r, "transfer", h.service.Transfer)
}

func (h *TransferHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.serveRow(w, r, "update", h.service.Update)
}

func (h *TransferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.serveRow(w, r, "delete", h.service.Delete)
}

func (h *TransferHandler) Edit(w http.ResponseWriter, r *http.Request) {
	h.serveRow(w, r, "edit", h.service.Edit)
}

func (h *TransferHandler) ResetSequence(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	reset, err := h.service.ResetSequence(r.Context(), table)
	if err != nil {
		writeServiceError(w, h.logger, "reset sequence", err)
		return
	}
	msg := "sequence of " + table + " restarts at 1"
	if !reset {
		msg = table + " has no sequence-backed key"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg, "reset": reset})
}

func (h *TransferHandler) ResetAllSequences(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ResetAllSequences(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "reset sequences", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": strconv.Itoa(n) + " sequences restart at 1",
		"count":   n,
	})
}

func (h *TransferHandler) ClearMapping(w http.ResponseWriter, r *http.Request) {
	db, table := chi.URLParam(r, "db"), chi.URLParam(r, "table")
	if err := h.service.ClearMapping(r.Context(), db, table); err != nil {
		writeServiceError(w, h.logger, "clear mapping", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "mapping of " + db + "." + table + " cleared"})
}

func (h *TransferHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.Status(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "transfer status", err)
		return
	}
	status := map[string]map[string]int64{}
	for _, c := range counts {
		if status[c.Database] == nil {
			status[c.Database] = map[string]int64{}
		}
		status[c.Database][c.Table] = c.Rows
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (h *TransferHandler) Mapped(w http.ResponseWriter, r *http.Request) {
	db, table := chi.URLParam(r, "db"), chi.URLParam(r, "table")
	keys, err := h.service.MappedKeys(r.Context(), db, table)
	if err != nil {
		writeServiceError(w, h.logger, "mapped keys", err)
		return
	}
	if h.nav != nil {
		if err := h.nav.Remember(w, Location{DB: db, Table: table}); err != nil {
			h.logger.Error("remember location failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"db_name": db, "table_name": table, "mapped": keys})
}

func (h *TransferHandler) PendingEdits(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	edits, err := h.service.PendingEdits(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, "pending edits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"edits": edits})
}

func (h *TransferHandler) Databases(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.service.Databases(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list databases", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": dbs})
}

func (h *TransferHandler) Tables(w http.ResponseWriter, r *http.Request) {
	db := chi.URLParam(r, "db")
	tables, err := h.service.Tables(r.Context(), db)
	if err != nil {
		writeServiceError(w, h.logger, "list tables", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"db_name": db, "tables": tables})
}

// Compare shows how a source table differs from its destination counterpart.
func (h *TransferHandler) Compare(w http.ResponseWriter, r *http.Request) {
	db := chi.URLParam(r, "db")
	table := chi.URLParam(r, "table")
	d, err := h.service.Compare(r.Context(), db, table)
	if err != nil {
		writeServiceError(w, h.logger, "compare table", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"db_name":      db,
		"diff":         d,
		"transferable": d.Transferable(),
		"summary":      diff.Describe(d),
	})
}

// Resume tells the client where it left off.
func (h *TransferHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if h.nav == nil {
		writeError(w, http.StatusNotFound, "not_found", "no previous location")
		return
	}
	loc, ok := h.nav.Last(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no previous location")
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
