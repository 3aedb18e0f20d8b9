package cloudstack

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-restbind/core"
)

const errorCodeResourceUnavailable = 534

type apiError struct {
	ErrorCode   int    `json:"errorcode"`
	CSErrorCode int    `json:"cserrorcode"`
	ErrorText   string `json:"errortext"`
}

// ErrorParser reads the {"<command>response":{"errortext":...}} envelope.
// SessionAuth marks 401 responses as expired sessions; with signed requests a
// 401 means the keys are wrong and renewing would not help.
type ErrorParser struct {
	SessionAuth bool
}

func (p ErrorParser) Parse(resp core.TransportResponse) core.ProviderMessage {
	msg := core.ProviderMessage{}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &doc); err == nil {
		for _, raw := range doc {
			var item apiError
			if err := json.Unmarshal(raw, &item); err != nil || item.ErrorText == "" {
				continue
			}
			msg.Text = strings.TrimSpace(item.ErrorText)
			if item.ErrorCode != 0 {
				msg.Code = strconv.Itoa(item.ErrorCode)
			}
			msg.Overloaded = item.ErrorCode == errorCodeResourceUnavailable
			break
		}
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		msg.Overloaded = true
	}
	msg.TokenExpired = p.SessionAuth && resp.StatusCode == http.StatusUnauthorized
	return msg
}

var _ core.ErrorMessageParser = ErrorParser{}
