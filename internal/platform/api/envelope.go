// Package api defines the JSON response envelope shared by every endpoint:
// {status: "success"|"error", data?: {...}, message?: string}.
package api

import (
	"encoding/json"
	"net/http"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Code      string          `json:"code,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in a success envelope. A nil data writes an
// envelope without a data block.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	env := Envelope{Status: StatusSuccess}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			Internal(w, "")
			return
		}
		env.Data = b
	}
	WriteJSON(w, status, env)
}
