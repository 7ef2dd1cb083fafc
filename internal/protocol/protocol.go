// Package protocol defines the JSON frames exchanged on the bridge listener
// and the reverse callback channel. Both directions speak the same envelope;
// when authentication is enabled every frame carries the shared token.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TypeInvoke = "INVOKE"
	TypeResult = "RESULT"
)

type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ReqID   string          `json:"req_id,omitempty"`
	Token   string          `json:"token,omitempty"`
	Ts      int64           `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InvokePayload requests a method call on the remote side's entry point.
type InvokePayload struct {
	Method string `json:"method"`
	Args   []any  `json:"args,omitempty"`
}

type ResultPayload struct {
	OK    bool         `json:"ok"`
	Value any          `json:"value,omitempty"`
	Error *ResultError `json:"error,omitempty"`
}

// ResultError carries a failed invocation. ObjectID, when set, identifies the
// remote error object for later lookup against the live bridge.
type ResultError struct {
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	ObjectID string `json:"object_id,omitempty"`
}

func EncodeEnvelope(env Envelope) ([]byte, error) {
	if err := env.ValidateBasic(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) ValidateBasic() error {
	if e == nil {
		return errors.New("envelope is nil")
	}
	if e.V < 1 {
		return fmt.Errorf("unsupported envelope version: %d", e.V)
	}
	if e.Type == "" {
		return errors.New("missing envelope type")
	}
	return nil
}

func MustMarshalJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
