package glesys

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-restbind/core"
)

type envelope struct {
	Response struct {
		Status struct {
			Code json.Number `json:"code"`
			Text string      `json:"text"`
		} `json:"status"`
	} `json:"response"`
}

// ErrorParser reads response.status from GleSYS error bodies. GleSYS uses
// static API keys, so no response ever asks for a session renewal.
type ErrorParser struct{}

func (ErrorParser) Parse(resp core.TransportResponse) core.ProviderMessage {
	var doc envelope
	decoder := json.NewDecoder(strings.NewReader(string(resp.Body)))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return core.ProviderMessage{Overloaded: resp.StatusCode == http.StatusServiceUnavailable}
	}
	status := doc.Response.Status
	msg := core.ProviderMessage{
		Text: strings.TrimSpace(status.Text),
		Code: status.Code.String(),
	}
	code, _ := strconv.Atoi(msg.Code)
	msg.Overloaded = resp.StatusCode == http.StatusServiceUnavailable || code == http.StatusServiceUnavailable
	return msg
}

var _ core.ErrorMessageParser = ErrorParser{}
