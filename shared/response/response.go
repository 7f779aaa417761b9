package response

import (
	"encoding/json"
	"net/http"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details string      `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON writes data inside the success envelope.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	Write(w, status, APIResponse{
		Status: "success",
		Data:   data,
	})
}

// Write encodes body as-is, for endpoints with a fixed payload shape.
func Write(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func Error(w http.ResponseWriter, status int, msg string) {
	Write(w, status, APIResponse{
		Status: "error",
		Error:  msg,
	})
}

func ErrorWithDetails(w http.ResponseWriter, status int, msg, details string) {
	Write(w, status, APIResponse{
		Status:  "error",
		Error:   msg,
		Details: details,
	})
}
