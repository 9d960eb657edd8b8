package httpapi

import (
	"encoding/json"
	"net/http"
)

// Problem type URIs used across the API.
const (
	ProblemTypeValidation = "https://robotika.cloud/problems/validation-error"
	ProblemTypeNotFound   = "https://robotika.cloud/problems/not-found"
	ProblemTypeConflict   = "https://robotika.cloud/problems/conflict"
	ProblemTypeUpstream   = "https://robotika.cloud/problems/upstream-error"
	ProblemTypeInternal   = "https://robotika.cloud/problems/internal-error"
)

// ProblemDetails is an RFC 7807 error body.
type ProblemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// WriteProblem sends a problem+json response.
func WriteProblem(w http.ResponseWriter, status int, problemType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
