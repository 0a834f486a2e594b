// Package api defines the JSON envelopes served over the control socket.
package api

import "time"

const SchemaVersion = "v1"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

type HealthResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Status        string    `json:"status"`
	Tracked       int       `json:"tracked"`
}

type EntityResponse struct {
	EntityID string `json:"entity_id"`
	PID      *int   `json:"pid,omitempty"`
	Visible  bool   `json:"visible"`
}

type EntitiesEnvelope struct {
	SchemaVersion string           `json:"schema_version"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Entities      []EntityResponse `json:"entities"`
}

type CycleResponse struct {
	CycleID     string  `json:"cycle_id"`
	TriggeredBy string  `json:"triggered_by"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
	EntityCount int     `json:"entity_count"`
	PlanSize    int     `json:"plan_size"`
	Error       *string `json:"error,omitempty"`
}

type CyclesEnvelope struct {
	SchemaVersion string          `json:"schema_version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Cycles        []CycleResponse `json:"cycles"`
}

type DispatchResponse struct {
	DispatchID   string  `json:"dispatch_id"`
	PID          int     `json:"pid"`
	Action       string  `json:"action"`
	ResultCode   string  `json:"result_code"`
	Error        *string `json:"error,omitempty"`
	DispatchedAt string  `json:"dispatched_at"`
}

type DispatchesEnvelope struct {
	SchemaVersion string             `json:"schema_version"`
	GeneratedAt   time.Time          `json:"generated_at"`
	CycleID       string             `json:"cycle_id"`
	Dispatches    []DispatchResponse `json:"dispatches"`
}

type RunResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	CycleID       string    `json:"cycle_id"`
	PlanSize      int       `json:"plan_size"`
	Resumed       int       `json:"resumed"`
	Suspended     int       `json:"suspended"`
	Failed        int       `json:"failed"`
}
