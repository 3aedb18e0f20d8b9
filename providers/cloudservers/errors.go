package cloudservers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/goliatone/go-restbind/core"
)

// Fault names used by the CloudServers API to wrap error bodies, e.g.
// {"itemNotFound":{"message":"...","code":404}}.
const (
	faultUnauthorized       = "unauthorized"
	faultServiceUnavailable = "serviceUnavailable"
)

type fault struct {
	Message string          `json:"message"`
	Details string          `json:"details"`
	Code    json.RawMessage `json:"code"`
}

// ErrorParser reads CloudServers fault documents for every failure bucket.
type ErrorParser struct{}

func (ErrorParser) Parse(resp core.TransportResponse) core.ProviderMessage {
	msg := parseFaultMessage(resp.Body)
	if msg.Text == "" {
		msg.Text = strings.TrimSpace(resp.Headers.Get("X-Error-Message"))
	}
	return msg
}

func parseFaultMessage(body []byte) core.ProviderMessage {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return core.ProviderMessage{}
	}
	for name, raw := range doc {
		var item fault
		if err := json.Unmarshal(raw, &item); err != nil || item.Message == "" {
			continue
		}
		msg := core.ProviderMessage{
			Text: strings.TrimSpace(item.Message),
			Code: name,
		}
		if code := faultCode(item.Code); code != "" {
			msg.Code = name + ":" + code
		}
		lowered := strings.ToLower(item.Message)
		msg.TokenExpired = name == faultUnauthorized ||
			strings.Contains(lowered, "renew") ||
			strings.Contains(lowered, "expired")
		msg.Overloaded = name == faultServiceUnavailable
		return msg
	}
	return core.ProviderMessage{}
}

func faultCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var number int
	if err := json.Unmarshal(raw, &number); err == nil {
		return strconv.Itoa(number)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return ""
}

var _ core.ErrorMessageParser = ErrorParser{}
