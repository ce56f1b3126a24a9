// Package handlers provides the HTTP handlers for the API.
package handlers

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope for every JSON body the API emits. Reason is a
// stable machine-readable code present only on errors; clients branch on it,
// never on Message text.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Page wraps a list payload with its total count and the applied pagination.
type Page struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Take  int   `json:"take"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK writes a 200 response with data.
func OK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, &Response{Success: true, Data: data})
}

// Created writes a 201 response with data.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, &Response{Success: true, Data: data})
}

// NoContent writes a 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error response with a reason code and optional data
// payload (e.g. the conflicting record, the quota shortfall).
func Error(w http.ResponseWriter, status int, reason, message string, data any) {
	writeJSON(w, status, &Response{
		Success: false,
		Message: message,
		Reason:  reason,
		Data:    data,
	})
}

// BadRequest writes a 400 with the given reason code.
func BadRequest(w http.ResponseWriter, reason, message string) {
	Error(w, http.StatusBadRequest, reason, message, nil)
}
