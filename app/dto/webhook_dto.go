package dto

import "time"

// DeliveryCallbackRequest is the platform's asynchronous status callback.
// Delivery is at-least-once and possibly out of order; the ingestor drops
// stale and duplicate events.
type DeliveryCallbackRequest struct {
	MessageID string    `json:"message_id" validate:"required,max=128"`
	Status    string    `json:"status" validate:"required,oneof=sent delivered read failed"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// DeliveryCallbackResponse acknowledges a delivery callback
type DeliveryCallbackResponse struct {
	Applied bool   `json:"applied"`
	Message string `json:"message"`
}

// ButtonClickCallbackRequest is the platform's interactive button callback
type ButtonClickCallbackRequest struct {
	MessageID  string    `json:"message_id" validate:"required,max=128"`
	ButtonID   string    `json:"button_id" validate:"required,max=100"`
	ButtonText *string   `json:"button_text,omitempty" validate:"omitempty,max=255"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
}
