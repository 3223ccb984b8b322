// Package models contains domain models for mietcheck.
package models

import "time"

// ErrorKind is the closed taxonomy of job failure kinds. It is produced
// once at the analysis boundary and switched on downstream.
type ErrorKind string

const (
	// ErrKindValidation means the uploaded document itself was unusable.
	ErrKindValidation ErrorKind = "validation"
	// ErrKindAuth means a credentials or configuration failure upstream.
	ErrKindAuth ErrorKind = "auth"
	// ErrKindRateLimit means the analysis backend throttled us.
	ErrKindRateLimit ErrorKind = "rate_limit"
	// ErrKindGeneric covers everything else.
	ErrKindGeneric ErrorKind = "generic"
)

// UploadedFile is one uploaded statement file as received from the client.
type UploadedFile struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
	Data      []byte `json:"-"`
}

// PendingInput holds everything a session needs before its job launches.
// A session has at most one PendingInput; a retry replaces it wholesale.
type PendingInput struct {
	Files        []UploadedFile `json:"files"`
	Email        string         `json:"email,omitempty"`
	Plan         string         `json:"plan,omitempty"`
	FloorAreaSqm float64        `json:"floor_area_sqm,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CompletedRecord is the terminal outcome of a job. Exactly one of
// Result (success) or ErrMessage/ErrKind (failure) is populated.
type CompletedRecord struct {
	Result            *AnalysisResult `json:"result,omitempty"`
	ErrMessage        string          `json:"err_message,omitempty"`
	ErrKind           ErrorKind       `json:"err_kind,omitempty"`
	Refunded          bool            `json:"refunded,omitempty"`
	RefundedAmountCts int64           `json:"refunded_amount_cts,omitempty"`
	CompletedAt       time.Time       `json:"completed_at"`
}

// Failed reports whether the record is a failure outcome.
func (r *CompletedRecord) Failed() bool {
	return r.Result == nil
}
