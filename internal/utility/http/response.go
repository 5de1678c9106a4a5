package http

import (
	"encoding/json"
	"net/http"
)

type jsonResponse struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondSuccess(w http.ResponseWriter, data interface{}) {
	RespondStatus(w, http.StatusOK, data)
}

// RespondStatus sends a successful JSON envelope with the given status code.
func RespondStatus(w http.ResponseWriter, code int, data interface{}) {
	response := &jsonResponse{
		Success: true,
		Code:    code,
		Message: http.StatusText(code),
		Data:    data,
	}
	sendJSONResponse(w, code, response)
}

// RespondError sends an error JSON response.
func RespondError(w http.ResponseWriter, code int, message string) {
	response := &jsonResponse{
		Success: false,
		Code:    code,
		Message: message,
	}
	sendJSONResponse(w, code, response)
}

func sendJSONResponse(w http.ResponseWriter, code int, response *jsonResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	// the status line is already out, nothing useful left to do on failure
	_ = json.NewEncoder(w).Encode(response)
}
