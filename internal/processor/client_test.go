package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/pkg/signature"
)

func newTestClient(url, secret string) *Client {
	cfg := config.Config{Payment: config.Payment{
		CreateURL:       url,
		SharedSecret:    secret,
		SignatureHeader: "X-Signature",
		RequestTimeout:  2 * time.Second,
	}}
	return NewClient(cfg, zap.NewNop())
}

func sampleRequest() CreateRequest {
	return CreateRequest{
		OrderUID:  "0b7f8d2e-4a55-4c33-9a55-0d7a3c0f1e21",
		Amount:    "500000.00",
		Currency:  "VND",
		Provider:  "node",
		ReturnURL: "https://lms.example/payment-gateway/return/0b7f8d2e-4a55-4c33-9a55-0d7a3c0f1e21/",
		Customer:  Customer{Username: "learner", Email: "learner@example.com"},
		Metadata:  Metadata{CourseID: "course-v1:Org+Num+Run", Mode: "verified"},
	}
}

func TestCreateSignsBodyAndDecodesResponse(t *testing.T) {
	const secret = "s3cret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !signature.Verify([]byte(secret), body, r.Header.Get("X-Signature")) {
			t.Errorf("signature does not match body %s", body)
		}
		want := `{"order_uid":"0b7f8d2e-4a55-4c33-9a55-0d7a3c0f1e21","amount":"500000.00","currency":"VND","provider":"node",` +
			`"return_url":"https://lms.example/payment-gateway/return/0b7f8d2e-4a55-4c33-9a55-0d7a3c0f1e21/",` +
			`"customer":{"username":"learner","email":"learner@example.com"},` +
			`"metadata":{"course_id":"course-v1:Org+Num+Run","mode":"verified"}}`
		if string(body) != want {
			t.Errorf("unexpected body:\n%s\nwant:\n%s", body, want)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"checkout_url": "https://pay.example/c/1", "txn_id": "TXN-1"})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL, secret).Create(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.CheckoutURL != "https://pay.example/c/1" || resp.TxnID != "TXN-1" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCreateFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"invalid json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
		{"missing checkout url", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"txn_id":"TXN-1"}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL, "s3cret").Create(context.Background(), sampleRequest())
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
		})
	}
}

func TestCreateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := newTestClient(url, "s3cret").Create(context.Background(), sampleRequest()); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestCreateNotConfigured(t *testing.T) {
	for _, c := range []*Client{newTestClient("", "s3cret"), newTestClient("http://localhost", "")} {
		if c.Configured() {
			t.Error("expected client to be unconfigured")
		}
		if _, err := c.Create(context.Background(), sampleRequest()); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	}
}
