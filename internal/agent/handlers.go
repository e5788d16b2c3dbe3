package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/evansims/fgacache/internal/keys"
	"github.com/evansims/fgacache/pkg/cache"
	"github.com/evansims/fgacache/pkg/client"
	"github.com/evansims/fgacache/pkg/manager"
	"github.com/evansims/fgacache/pkg/tuple"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeFailure maps the error kinds of the cache core onto HTTP statuses:
// disabled write-behind is a conflict with the current configuration,
// remote unavailability is a bad gateway, an unknown connection is not
// found, anything else is a validation failure.
func (a *Agent) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cache.ErrWriteBehindDisabled):
		writeError(w, http.StatusConflict, "write_behind_disabled", err.Error())
	case errors.Is(err, client.ErrRemoteUnavailable):
		writeError(w, http.StatusBadGateway, "remote_unavailable", err.Error())
	case errors.Is(err, manager.ErrUnknownConnection):
		writeError(w, http.StatusNotFound, "unknown_connection", err.Error())
	case errors.Is(err, cache.ErrNoActivityTracker):
		writeError(w, http.StatusConflict, "no_activity_tracker", err.Error())
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func (a *Agent) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Agent) handleConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"connections": a.manager.Connections()})
}

func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conn.Status())
}

type statsResponse struct {
	cache.Stats
	HitRate float64 `json:"hit_rate"`
}

func (a *Agent) handleStats(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	stats := conn.Stats()
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats, HitRate: stats.HitRate()})
}

func (a *Agent) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	conn.ResetStats()
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (a *Agent) handleFlush(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	res, err := conn.Flush(r.Context())
	if err != nil {
		a.logger.Warn("manual flush failed", zap.Error(err))
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

func (a *Agent) handleClear(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	var req clearRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, "confirmation_required",
			"clear discards unflushed operations; set \"confirm\": true to proceed")
		return
	}

	discarded, err := conn.Clear(r.Context())
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"discarded": discarded})
}

type invalidateRequest struct {
	User     *string `json:"user,omitempty"`
	Relation *string `json:"relation,omitempty"`
	Object   *string `json:"object,omitempty"`
}

func (a *Agent) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	var req invalidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}

	removed, err := conn.Invalidate(r.Context(), keys.Selector{
		User:     req.User,
		Relation: req.Relation,
		Object:   req.Object,
	})
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

type warmRequest struct {
	// Cross-product warming.
	Users     []string `json:"users,omitempty"`
	Relations []string `json:"relations,omitempty"`
	Objects   []string `json:"objects,omitempty"`

	// Object-discovery warming.
	User       string `json:"user,omitempty"`
	Relation   string `json:"relation,omitempty"`
	ObjectType string `json:"object_type,omitempty"`

	// Activity warming.
	Limit int `json:"limit,omitempty"`
}

func (a *Agent) handleWarm(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	var req warmRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}

	var warmed int
	switch {
	case len(req.Users) > 0:
		warmed, err = conn.WarmBatch(r.Context(), req.Users, req.Relations, req.Objects)
	case req.ObjectType != "":
		warmed, err = conn.WarmObjects(r.Context(), req.User, req.Relation, req.ObjectType)
	default:
		warmed, err = conn.WarmFromActivity(r.Context(), req.Limit)
	}
	if err != nil {
		a.logger.Warn("cache warming failed", zap.Error(err), zap.Int("warmed", warmed))
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"warmed": warmed})
}

type checkRequest struct {
	User             string         `json:"user"`
	Relation         string         `json:"relation"`
	Object           string         `json:"object"`
	ContextualTuples []tupleBody    `json:"contextual_tuples,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
}

type tupleBody struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

func (a *Agent) handleCheck(w http.ResponseWriter, r *http.Request) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	var req checkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}

	contextual := make([]tuple.TupleKey, 0, len(req.ContextualTuples))
	for _, t := range req.ContextualTuples {
		contextual = append(contextual, tuple.TupleKey(t))
	}

	result, err := conn.Check(r.Context(), cache.CheckRequest{
		Tuple:            tuple.NewTupleKey(req.User, req.Relation, req.Object),
		ContextualTuples: contextual,
		Context:          req.Context,
	})
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *Agent) handleGrant(w http.ResponseWriter, r *http.Request) {
	a.handleMutation(w, r, (*manager.Connection).Grant)
}

func (a *Agent) handleRevoke(w http.ResponseWriter, r *http.Request) {
	a.handleMutation(w, r, (*manager.Connection).Revoke)
}

func (a *Agent) handleMutation(w http.ResponseWriter, r *http.Request, op func(*manager.Connection, context.Context, tuple.TupleKey) error) {
	conn, err := a.connection(r)
	if err != nil {
		a.writeFailure(w, err)
		return
	}

	var req tupleBody
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return
	}

	if err := op(conn, r.Context(), tuple.TupleKey(req)); err != nil {
		a.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"pending":  conn.Status().Pending,
	})
}
