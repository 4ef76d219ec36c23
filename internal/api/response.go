package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-appliances/internal/bridges/homeconnect"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes not shared with the command ack vocabulary.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeUnavailable    = "unavailable"
)

var statusCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusMethodNotAllowed:    ErrCodeMethodNotAllow,
	http.StatusServiceUnavailable:  ErrCodeUnavailable,
	http.StatusInternalServerError: ErrCodeInternal,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

// writeRawJSON writes a document that is already encoded.
func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeStatus writes an error whose code follows from the HTTP status.
func writeStatus(w http.ResponseWriter, status int, message string) {
	code, ok := statusCodes[status]
	if !ok {
		code = ErrCodeInternal
	}
	writeError(w, status, code, message)
}

// writeBridgeError maps a bridge error onto an HTTP response. Command
// validation failures carry the same code the MQTT ack would.
func writeBridgeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, homeconnect.ErrUnknownDevice):
		writeStatus(w, http.StatusNotFound, msg)
	case errors.Is(err, homeconnect.ErrHistoryUnavailable):
		writeStatus(w, http.StatusServiceUnavailable, msg)
	case errors.Is(err, homeconnect.ErrInvalidPayload):
		writeStatus(w, http.StatusBadRequest, msg)
	default:
		if code := homeconnect.AckErrorCode(err); code != homeconnect.ErrCodeBridgeError {
			writeError(w, http.StatusBadRequest, code, msg)
			return
		}
		writeStatus(w, http.StatusInternalServerError, msg)
	}
}
