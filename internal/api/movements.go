package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/ptl-core/internal/ptl/orchestrator"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/policy/picking"
)

const (
	// maxColor is the highest LED colour code a movement may ask for.
	maxColor = 7

	// maxSafeInteger is the largest whole number a JSON client can send exactly.
	maxSafeInteger = 1 << 53
)

// fieldError is a validation failure on one request field.
type fieldError struct {
	field  string
	detail string
}

func (e fieldError) Error() string {
	return fmt.Sprintf("Missing or invalid request body, error in %q", e.field)
}

// handleListMovements returns the movements queued on the units.
func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	out, err := s.orch.Process(r.Context(), policy.ActionGetMovements, nil)
	if err != nil {
		s.writePolicyError(w, r, err, "Cannot list movements")
		return
	}
	writeOK(w, http.StatusOK, out)
}

// handleGetMovement returns one queued movement by id.
func (s *Server) handleGetMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := movementID(w, r)
	if !ok {
		return
	}
	out, err := s.orch.Process(r.Context(), policy.ActionGetMovement, picking.Selector{ID: id})
	if errors.Is(err, policy.ErrNotFound) {
		writeError(w, http.StatusNotFound, CodeMovementRequest,
			"Incorrect Id, this id does not exist",
			"Ensure that the Id included in the request is correct")
		return
	}
	if err != nil {
		s.writePolicyError(w, r, err, "Cannot read the movement")
		return
	}
	writeOK(w, http.StatusOK, out)
}

// handleCreateMovement validates and queues a movement.
func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	m, err := decodeMovement(r)
	if err != nil {
		var fe fieldError
		if errors.As(err, &fe) {
			writeError(w, http.StatusBadRequest, CodeMovementRequest, fe.Error(), fe.detail)
			return
		}
		writeError(w, http.StatusBadRequest, CodeMovementRequest, "Missing or invalid request body", err.Error())
		return
	}

	if _, found, err := s.orch.UnitByLocation(r.Context(), m.LocationCode); err != nil {
		writeInternalError(w, CodeMovementInternal, "An error occurred while creating the movement: "+err.Error())
		return
	} else if !found {
		writeError(w, http.StatusBadRequest, CodeMovementRequest,
			"LocationCode not configured",
			`Ensure that "locationCode" is a configured location code`)
		return
	}

	out, err := s.orch.Process(r.Context(), policy.ActionAddMovement, m)
	if err != nil {
		s.writePolicyError(w, r, err, "Cannot create the movement")
		return
	}
	writeOK(w, http.StatusCreated, out)
}

// handleDeleteMovement removes a queued movement by id.
func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := movementID(w, r)
	if !ok {
		return
	}
	s.deleteMovement(w, r, picking.Selector{ID: id})
}

// handleDeleteMovementByExternalID removes a queued movement by ?externalId=.
func (s *Server) handleDeleteMovementByExternalID(w http.ResponseWriter, r *http.Request) {
	externalID, err := strconv.ParseInt(r.URL.Query().Get("externalId"), 10, 64)
	if err != nil || externalID <= 0 {
		writeError(w, http.StatusBadRequest, CodeMovementRequest,
			`Missing or invalid query "externalId"`,
			`Ensure that "externalId" is a valid number`)
		return
	}
	s.deleteMovement(w, r, picking.Selector{ExternalID: externalID})
}

func (s *Server) deleteMovement(w http.ResponseWriter, r *http.Request, sel picking.Selector) {
	out, err := s.orch.Process(r.Context(), policy.ActionDelMovement, picking.Deletion{
		Selector: sel,
		Reason:   picking.ReasonDeleted,
	})
	if err != nil {
		s.writePolicyError(w, r, err, "Cannot delete the movement")
		return
	}
	writeOK(w, http.StatusOK, out)
}

// handleListPending lists confirmations waiting to reach the external system.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	s.listLedger(w, r, policy.ActionGetPendingToSend)
}

// handleListPendingArchive lists confirmations already delivered or given up.
func (s *Server) handleListPendingArchive(w http.ResponseWriter, r *http.Request) {
	s.listLedger(w, r, policy.ActionGetPendingToSendArch)
}

// handleListReceived lists movements received from the external system.
func (s *Server) handleListReceived(w http.ResponseWriter, r *http.Request) {
	s.listLedger(w, r, policy.ActionGetReceivedFromExt)
}

func (s *Server) listLedger(w http.ResponseWriter, r *http.Request, action string) {
	q, err := listQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeMovementRequest, "Invalid query", err.Error())
		return
	}
	out, err := s.orch.Process(r.Context(), action, q)
	if err != nil {
		s.writePolicyError(w, r, err, "Cannot list movements")
		return
	}
	writeOK(w, http.StatusOK, out)
}

// writePolicyError maps orchestrator and policy errors to a response.
func (s *Server) writePolicyError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, policy.ErrUnsupportedAction), errors.Is(err, orchestrator.ErrNoPolicy):
		writeError(w, http.StatusConflict, CodeSystemMode, "Not available in this mode",
			fmt.Sprintf("mode %q: %v", s.orch.PolicyName(), err))
	case errors.Is(err, policy.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeMovementPolicy, message, err.Error())
	case errors.Is(err, policy.ErrDuplicate):
		writeError(w, http.StatusConflict, CodeMovementPolicy, message, err.Error())
	case errors.Is(err, orchestrator.ErrStopped), errors.Is(err, orchestrator.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, CodeSystemInternal, "Service not running", err.Error())
	default:
		s.logger.Error("movement request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, CodeMovementPolicy, message, err.Error())
	}
}

func movementID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, CodeMovementRequest,
			`Missing or invalid parameter "id"`,
			`Ensure that parameter "id" is a valid number`)
		return 0, false
	}
	return id, true
}

// decodeMovement reads a movement body, checking each field's JSON type so
// the error names the offending field.
func decodeMovement(r *http.Request) (picking.Movement, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return picking.Movement{}, fmt.Errorf("invalid JSON: %w", err)
	}

	externalID, err := integerField(body, "externalId", true)
	if err != nil {
		return picking.Movement{}, err
	}
	if externalID <= 0 {
		return picking.Movement{}, fieldError{"externalId", `Ensure that "externalId" is a positive number`}
	}

	var location string
	if raw, ok := body["locationCode"]; !ok || json.Unmarshal(raw, &location) != nil || location == "" {
		return picking.Movement{}, fieldError{"locationCode", `Ensure that "locationCode" is not empty and is a valid string`}
	}

	quantity, err := integerField(body, "quantity", true)
	if err != nil {
		return picking.Movement{}, err
	}

	color, err := integerField(body, "color", true)
	if err != nil {
		return picking.Movement{}, err
	}
	if color < 0 || color > maxColor {
		return picking.Movement{}, fieldError{"color", `Ensure that "color" is a number between 0 and 7`}
	}

	userID, err := integerField(body, "userId", false)
	if err != nil {
		return picking.Movement{}, err
	}

	var display string
	if raw, ok := body["display"]; ok && json.Unmarshal(raw, &display) != nil {
		return picking.Movement{}, fieldError{"display", `Ensure that "display" is a string`}
	}

	return picking.Movement{
		ExternalID:   externalID,
		LocationCode: location,
		Quantity:     int(quantity),
		Color:        int(color),
		UserID:       userID,
		Display:      display,
	}, nil
}

// integerField reads a whole JSON number. Missing optional fields read as 0.
func integerField(body map[string]json.RawMessage, name string, required bool) (int64, error) {
	raw, ok := body[name]
	if !ok || string(raw) == "null" {
		if required {
			return 0, fieldError{name, fmt.Sprintf("Ensure that %q is not empty and is a valid number", name)}
		}
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || f != math.Trunc(f) || math.Abs(f) > maxSafeInteger {
		return 0, fieldError{name, fmt.Sprintf("Ensure that %q is a valid whole number", name)}
	}
	return int64(f), nil
}

// listQuery reads limit, page and onlyPending from the query string.
func listQuery(r *http.Request) (policy.ListQuery, error) {
	var q policy.ListQuery
	values := r.URL.Query()
	var err error
	if v := values.Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("limit must be a non-negative number")
		}
	}
	if v := values.Get("page"); v != "" {
		if q.Page, err = strconv.Atoi(v); err != nil || q.Page < 0 {
			return q, fmt.Errorf("page must be a non-negative number")
		}
	}
	if v := values.Get("onlyPending"); v != "" {
		if q.OnlyPending, err = strconv.ParseBool(v); err != nil {
			return q, fmt.Errorf("onlyPending must be true or false")
		}
	}
	return q, nil
}
