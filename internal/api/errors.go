package api

import (
	"encoding/json"
	"net/http"
)

// Envelope statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Error codes returned in the envelope.
const (
	CodeMovementInternal = "MOVEMENT-001"
	CodeMovementRequest  = "MOVEMENT-002"
	CodeMovementPolicy   = "MOVEMENT-003"
	CodeLocationInternal = "LOCATION-001"
	CodeSystemInternal   = "SYSTEM-001"
	CodeSystemMode       = "SYSTEM-002"
	CodeHelpNotFound     = "HELP-001"
	CodeNotFound         = "NOT-FOUND-ERROR-001"
	CodeGeneric          = "GENERIC-ERROR-001"
)

// helpBasePath prefixes the help link of every error.
const helpBasePath = "/api/v1/help/error/"

// Error is one entry of the envelope's error list.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Help    string `json:"help,omitempty"`
}

// Result is the response envelope.
type Result struct {
	Status string  `json:"status"`
	Data   any     `json:"data"`
	Errors []Error `json:"errors"`
}

// Help documents one error code.
type Help struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// helpTable lists every error code the API can return.
var helpTable = []Help{
	{CodeMovementInternal, "Internal server error", "The server failed while handling the movement request. Check the service log for the request id."},
	{CodeMovementRequest, "Invalid movement request", "A field is missing or has the wrong type, the location code is not configured, or the movement id does not exist."},
	{CodeMovementPolicy, "Movement rejected", "The active mode refused the request: the movement is a duplicate, does not exist, or the display command could not be sent."},
	{CodeLocationInternal, "Internal server error", "The configured locations could not be read."},
	{CodeSystemInternal, "Internal server error", "The orchestrator could not answer the request."},
	{CodeSystemMode, "Not available in this mode", "The request needs a mode the service is not running, e.g. movement endpoints while the game runs."},
	{CodeHelpNotFound, "Incorrect code, this code does not exist", "Ensure that the code included in the request is correct."},
	{CodeNotFound, "Not found", "The requested path does not exist."},
	{CodeGeneric, "Internal server error", "An unexpected error occurred."},
}

func lookupHelp(code string) (Help, bool) {
	for _, h := range helpTable {
		if h.Code == code {
			return h, true
		}
	}
	return Help{}, false
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeOK writes data inside an OK envelope.
func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Result{Status: StatusOK, Data: data, Errors: []Error{}})
}

// writeError writes an ERROR envelope with a single error.
func writeError(w http.ResponseWriter, status int, code, message, detail string) {
	writeJSON(w, status, Result{
		Status: StatusError,
		Errors: []Error{{Code: code, Message: message, Detail: detail, Help: helpBasePath + code}},
	})
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, code, detail string) {
	writeError(w, http.StatusInternalServerError, code, "Internal server error", detail)
}
