package qiyu

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/kbsearch/internal/domain"
)

// pageRequest is the signed request body. Field order is fixed by the struct,
// so the serialized form (and therefore the digest) is deterministic.
type pageRequest struct {
	Mid  int64 `json:"mid"`
	Size int   `json:"size"`
}

// envelope is the outer response. Message is either an object or a string
// holding JSON, depending on the endpoint version.
type envelope struct {
	Code    int             `json:"code"`
	Message json.RawMessage `json:"message"`
}

type pagePayload struct {
	Data  []domain.KnowledgeRecord `json:"data"`
	IsEnd endFlag                  `json:"isEnd"`
}

// endFlag accepts 0/1 as well as true/false.
type endFlag bool

func (f *endFlag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "1", "true", `"1"`:
		*f = true
	case "0", "false", `"0"`, "null":
		*f = false
	default:
		return fmt.Errorf("unexpected isEnd value %s", b)
	}
	return nil
}

// decodeMessage unwraps the envelope's message, decoding a second time when
// the vendor sent it as a JSON-encoded string.
func decodeMessage(body []byte) (*pagePayload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.NewMalformedResponseError("response is not a JSON envelope", err)
	}

	raw := bytes.TrimSpace(env.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, domain.NewMalformedResponseError(fmt.Sprintf("response has no message (code %d)", env.Code), nil)
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, domain.NewMalformedResponseError("message string is not decodable", err)
		}
		raw = []byte(inner)
	}

	var payload pagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, domain.NewMalformedResponseError(fmt.Sprintf("message payload is not decodable (code %d)", env.Code), err)
	}
	if payload.Data == nil {
		return nil, domain.NewMalformedResponseError(fmt.Sprintf("message payload has no data (code %d)", env.Code), nil)
	}

	return &payload, nil
}
