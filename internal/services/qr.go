package services

import (
	"encoding/json"
	"errors"
	"strings"
)

var errEmptyPayload = errors.New("empty QR payload")

type qrPayload struct {
	AttendeeID string `json:"attendee_id"`
}

// decodeQRPayload extracts the attendee id embedded in a scanned code.
// Badges carry either the bare attendee id or a JSON envelope
// {"attendee_id": "..."} produced by the ticketing exporter.
func decodeQRPayload(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", errEmptyPayload
	}

	if strings.HasPrefix(payload, "{") {
		var p qrPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return "", errors.New("malformed QR payload")
		}
		if p.AttendeeID == "" {
			return "", errors.New("QR payload missing attendee id")
		}
		return p.AttendeeID, nil
	}
	return payload, nil
}
