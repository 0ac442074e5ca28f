package models

import (
	"time"
)

// IngestResponse acknowledges a processed chainhook delivery
type IngestResponse struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	EventsIngested int       `json:"events_ingested"`
	Rollbacks      int       `json:"rollbacks"`
}

// EventsResponse represents a filtered, newest-first page of events
type EventsResponse struct {
	Events []ChainEvent `json:"events"`
	Total  int          `json:"total"` // Filtered count before the limit is applied
}

// HealthResponse reports liveness and retained event count
type HealthResponse struct {
	Status      string    `json:"status"` // healthy, unhealthy
	EventsCount int       `json:"events_count"`
	Timestamp   time.Time `json:"timestamp"`
	Store       string    `json:"store,omitempty"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
