package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// errorBody is the error envelope every endpoint returns: a single
// human-readable message under "error".
type errorBody struct {
	Error string `json:"error"`
}

// JSON serializes data with the given status. Encoding happens after the
// header is written, so a marshal failure can only be logged, not turned
// into a different status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] response encode failed: %v", err)
	}
}

// OK writes a 200 with the given body.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 with the given body.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// Error writes the error envelope with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, errorBody{Error: message})
}

// BadRequest writes a 400 error envelope.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Decode parses the request body into dst, answering with a 400 when the
// JSON is malformed. Returns false when the handler should stop.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
