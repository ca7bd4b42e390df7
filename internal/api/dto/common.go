// Package dto holds the JSON shapes served by the read-only API.
package dto

// PaginationResponse describes the slice of results returned.
type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// PaginatedListResponse wraps a list payload.
type PaginatedListResponse struct {
	Data       any                `json:"data"`
	Pagination PaginationResponse `json:"pagination"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse reports process liveness and connection counts.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Bound       int    `json:"bound"`
}
