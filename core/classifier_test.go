package core

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestClassifier_MappingIsTotalAndDeterministic(t *testing.T) {
	classifier := NewClassifier(phraseParser)
	for _, body := range []string{"", "token expired", "overloaded", "something else"} {
		for status := 100; status <= 599; status++ {
			resp := statusResponse(status, body)
			first, failed := classifier.Classify(resp)
			second, failedAgain := classifier.Classify(resp)
			if failed != failedAgain || first != second {
				t.Fatalf("expected deterministic classification for %d %q", status, body)
			}
			if status >= 200 && status <= 299 {
				if failed {
					t.Fatalf("expected %d to be treated as success", status)
				}
				continue
			}
			if !failed || first.Kind == "" {
				t.Fatalf("expected %d %q to map to a classification", status, body)
			}
			if first.StatusCode != status {
				t.Fatalf("expected status %d on classification, got %d", status, first.StatusCode)
			}
		}
	}
}

func TestClassifier_Buckets(t *testing.T) {
	classifier := NewClassifier(phraseParser)
	cases := []struct {
		status int
		body   string
		want   Classification
	}{
		{101, "", ClassificationFatal},
		{301, "moved", ClassificationRedirect},
		{304, "", ClassificationRedirect},
		{400, "bad", ClassificationClientError},
		{401, "token expired", ClassificationAuthExpired},
		{403, "Invalid token supplied", ClassificationAuthExpired},
		{401, "wrong password", ClassificationClientError},
		{404, "no such server", ClassificationClientError},
		{429, "slow down", ClassificationClientError},
		{500, "boom", ClassificationServerError},
		{503, "service overloaded", ClassificationTransient},
		{503, "maintenance", ClassificationServerError},
		{600, "", ClassificationFatal},
	}
	for _, tc := range cases {
		got, failed := classifier.Classify(statusResponse(tc.status, tc.body))
		if !failed {
			t.Fatalf("expected %d to be a failure", tc.status)
		}
		if got.Kind != tc.want {
			t.Fatalf("expected %d %q -> %s, got %s", tc.status, tc.body, tc.want, got.Kind)
		}
	}
}

func TestClassifier_CarriesParsedMessageNotBody(t *testing.T) {
	classifier := NewClassifier(nil)
	got, _ := classifier.Classify(statusResponse(http.StatusNotFound, `{"itemNotFound":{"code":404},"message":"Server not found"}`))
	if got.Message != "Server not found" {
		t.Fatalf("expected parsed message, got %q", got.Message)
	}
	got, _ = classifier.Classify(statusResponse(http.StatusBadGateway, "<html>proxy</html>"))
	if got.Message != "Bad Gateway" {
		t.Fatalf("expected status text for unparseable body, got %q", got.Message)
	}
}

func TestClassifier_TransportErrors(t *testing.T) {
	classifier := NewClassifier(nil)
	timeout := classifier.ClassifyTransportError(&DispatchError{Kind: DispatchTimeout, Cause: context.DeadlineExceeded})
	if timeout.Kind != ClassificationTransient || timeout.Code != string(DispatchTimeout) {
		t.Fatalf("expected transient timeout, got %+v", timeout)
	}
	connect := classifier.ClassifyTransportError(&DispatchError{Kind: DispatchConnectError, Cause: errors.New("refused")})
	if connect.Kind != ClassificationTransient || connect.Code != string(DispatchConnectError) {
		t.Fatalf("expected transient connect error, got %+v", connect)
	}
	other := classifier.ClassifyTransportError(errors.New("unexpected"))
	if other.Kind != ClassificationFatal {
		t.Fatalf("expected fatal for unknown transport error, got %+v", other)
	}
}
