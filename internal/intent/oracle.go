package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOracleUnavailable covers transport failures and timeouts.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrMalformedResponse means the oracle answered with something that is not the expected JSON object.
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// Prompt is what an Oracle is asked. Instructions carries the rendered
// template; Message is the raw user text.
type Prompt struct {
	Language     string
	Instructions string
	Message      string
}

// OracleResponse is the untrusted structured answer. Pointer fields
// distinguish "absent" from zero.
type OracleResponse struct {
	Intent          string   `json:"intent"`
	Entity          string   `json:"entity,omitempty"`
	Entities        []string `json:"entities,omitempty"`
	TransactionType string   `json:"transaction_type,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	Description     string   `json:"description,omitempty"`
	Metric          string   `json:"metric,omitempty"`
	Limit           *float64 `json:"limit,omitempty"`
	IncludeTracked  bool     `json:"include_tracked,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
}

// Oracle resolves free text that no deterministic rule matched.
type Oracle interface {
	Resolve(ctx context.Context, p Prompt) (OracleResponse, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, p Prompt) (OracleResponse, error)

func (f OracleFunc) Resolve(ctx context.Context, p Prompt) (OracleResponse, error) {
	return f(ctx, p)
}

// DecodeResponse parses the JSON object an oracle produced. Unknown fields are
// ignored; anything that is not a single object fails with ErrMalformedResponse.
func DecodeResponse(raw string) (OracleResponse, error) {
	var resp OracleResponse
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return resp, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&resp); err != nil {
		return OracleResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return OracleResponse{}, fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}
	if strings.TrimSpace(resp.Intent) == "" {
		return OracleResponse{}, fmt.Errorf("%w: missing intent", ErrMalformedResponse)
	}
	return resp, nil
}
