package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Classifier maps responses onto classification buckets. The status ranges
// are fixed; providers only contribute the message parser.
type Classifier struct {
	parser ErrorMessageParser
}

func NewClassifier(parser ErrorMessageParser) *Classifier {
	if parser == nil {
		parser = JSONMessageParser{}
	}
	return &Classifier{parser: parser}
}

// Classify returns false for 2xx responses, which are not failures.
func (c *Classifier) Classify(resp TransportResponse) (ErrorClassification, bool) {
	status := resp.StatusCode
	if status >= 200 && status <= 299 {
		return ErrorClassification{}, false
	}
	msg := c.parse(resp)
	class := ErrorClassification{
		StatusCode: status,
		Code:       strings.TrimSpace(msg.Code),
		Message:    strings.TrimSpace(msg.Text),
	}
	switch {
	case status >= 300 && status <= 399:
		class.Kind = ClassificationRedirect
	case (status == http.StatusUnauthorized || status == http.StatusForbidden) && msg.TokenExpired:
		class.Kind = ClassificationAuthExpired
	case status >= 400 && status <= 499:
		class.Kind = ClassificationClientError
	case status >= 500 && status <= 599 && msg.Overloaded:
		class.Kind = ClassificationTransient
	case status >= 500 && status <= 599:
		class.Kind = ClassificationServerError
	default:
		class.Kind = ClassificationFatal
	}
	if class.Message == "" {
		class.Message = statusMessage(status)
	}
	return class, true
}

// ClassifyTransportError maps a failed send. Connect errors and timeouts are
// transient; anything else is fatal.
func (c *Classifier) ClassifyTransportError(err error) ErrorClassification {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) && dispatchErr != nil {
		message := string(dispatchErr.Kind)
		if dispatchErr.Cause != nil {
			message = message + ": " + dispatchErr.Cause.Error()
		}
		return ErrorClassification{
			Kind:    ClassificationTransient,
			Code:    string(dispatchErr.Kind),
			Message: message,
		}
	}
	message := "transport failure"
	if err != nil {
		message = err.Error()
	}
	return ErrorClassification{Kind: ClassificationFatal, Message: message}
}

func (c *Classifier) parse(resp TransportResponse) ProviderMessage {
	if c == nil || c.parser == nil {
		return ProviderMessage{}
	}
	return c.parser.Parse(resp)
}

func statusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}

// JSONMessageParser reads the common "message"/"error" shapes of JSON error
// bodies. It never reports expiry or overload.
type JSONMessageParser struct{}

func (JSONMessageParser) Parse(resp TransportResponse) ProviderMessage {
	if len(resp.Body) == 0 {
		return ProviderMessage{}
	}
	var doc map[string]any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return ProviderMessage{}
	}
	out := ProviderMessage{}
	for _, key := range []string{"message", "error_description", "error", "detail"} {
		switch value := doc[key].(type) {
		case string:
			if out.Text == "" {
				out.Text = value
			}
		case map[string]any:
			if text, ok := value["message"].(string); ok && out.Text == "" {
				out.Text = text
			}
			if code, ok := value["code"]; ok && out.Code == "" {
				out.Code = strings.TrimSpace(fmt.Sprint(code))
			}
		}
	}
	if code, ok := doc["code"]; ok && out.Code == "" {
		out.Code = strings.TrimSpace(fmt.Sprint(code))
	}
	return out
}

var (
	_ ErrorMessageParser = JSONMessageParser{}
)
