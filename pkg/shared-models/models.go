package datamodels

import (
	"github.com/google/uuid"
)

// DispatchRequest is accepted over HTTP and from the Kafka request topic.
type DispatchRequest struct {
	Backend        string            `json:"backend" validate:"required,oneof=getter cli shell transfer"`
	Operation      string            `json:"operation" validate:"required"`
	Host           string            `json:"host,omitempty" validate:"excluded_with=Group"`
	Group          string            `json:"group,omitempty"`
	Args           map[string]string `json:"args,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"gte=0,lte=3600"`
	RequestID      uuid.UUID         `json:"request_id"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"` // set on Kafka replies
}

type ReloadResponse struct {
	Version  uint64 `json:"version"`
	Hosts    int    `json:"hosts"`
	LoadedAt string `json:"loaded_at"`
}
