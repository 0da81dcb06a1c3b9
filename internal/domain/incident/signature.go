package incident

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"time"
)

type signaturePayload struct {
	IncidentID string            `json:"incidentId"`
	Code       string            `json:"code"`
	OrderID    string            `json:"orderId"`
	Operation  string            `json:"operation"`
	Actor      string            `json:"actor"`
	Message    string            `json:"message"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt string            `json:"occurredAt"`
}

func buildSignaturePayload(in *Incident) signaturePayload {
	return signaturePayload{
		IncidentID: in.IncidentID.String(),
		Code:       in.Code,
		OrderID:    in.OrderID.String(),
		Operation:  in.Operation,
		Actor:      in.Actor,
		Message:    in.Message,
		Detail:     in.Detail,
		OccurredAt: in.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// Sign generates an HMAC signature for the incident.
func Sign(in *Incident, key []byte) ([]byte, error) {
	data, err := json.Marshal(buildSignaturePayload(in))
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifySignature verifies the HMAC signature for the incident.
func VerifySignature(in *Incident, key []byte) (bool, error) {
	if len(in.Signature) == 0 {
		return false, nil
	}
	expected, err := Sign(in, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, in.Signature), nil
}
