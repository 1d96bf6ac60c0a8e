package backend

import "fmt"

// StatusHealthy is the only /health status treated as online
const StatusHealthy = "healthy"

// ChatRequest represents the request body for POST /chat
type ChatRequest struct {
	Message     string  `json:"message"`
	MaxLength   int     `json:"max_length"`
	Temperature float64 `json:"temperature"`
}

// ChatResponse represents a successful /chat response
type ChatResponse struct {
	Reply string `json:"reply"`
}

// HealthResponse represents the response from GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body the server sends with a non-2xx status
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("API error: %s", e.Status)
	}
	return fmt.Sprintf("API error: %s - %s", e.Status, e.Detail)
}
