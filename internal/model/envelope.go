package model

import "time"

// Window is a closed timestamp interval.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Envelope is transport-agnostic framing for digest payloads.
type Envelope struct {
	Source      string    `json:"source"`
	DeliveryID  string    `json:"delivery_id"`
	GeneratedAt time.Time `json:"generated_at"`
	PeriodHours int       `json:"period_hours"`
	Window      Window    `json:"window"`
	Host        string    `json:"host"`
	Aggregate   Aggregate `json:"aggregate"`
}
