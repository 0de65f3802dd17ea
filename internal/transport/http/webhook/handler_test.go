package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/paygate/pkg/errorbank"
)

type fakeConfirmer struct {
	body []byte
	sig  string
	err  error
}

func (f *fakeConfirmer) Confirm(_ context.Context, body []byte, sig string) error {
	f.body, f.sig = body, sig
	return f.err
}

func post(e *echo.Echo, body, header, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payment-gateway/internal/confirm/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sig != "" {
		req.Header.Set(header, sig)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestConfirmPassesRawBodyAndSignature(t *testing.T) {
	confirmer := &fakeConfirmer{}
	e := echo.New()
	Register(e.Group("/payment-gateway"), NewHandler(confirmer, "X-Payment-Signature"))

	raw := `{"order_uid":"u", "amount":"1.00"}`
	rec := post(e, raw, "X-Payment-Signature", "abc123")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Errorf("unexpected ack %s", rec.Body.String())
	}
	if string(confirmer.body) != raw {
		t.Errorf("body must reach the service byte for byte, got %q", confirmer.body)
	}
	if confirmer.sig != "abc123" {
		t.Errorf("unexpected signature %q", confirmer.sig)
	}
}

func TestConfirmMapsErrors(t *testing.T) {
	cases := map[int]error{
		http.StatusForbidden:  errorbank.Forbidden("invalid signature"),
		http.StatusNotFound:   errorbank.NotFound("order not found"),
		http.StatusConflict:   errorbank.Conflict("order already settled"),
		http.StatusBadRequest: errorbank.BadRequest("amount/currency mismatch"),
	}
	for want, err := range cases {
		e := echo.New()
		Register(e.Group("/payment-gateway"), NewHandler(&fakeConfirmer{err: err}, ""))

		rec := post(e, `{}`, "X-Signature", "sig")
		if rec.Code != want {
			t.Errorf("expected %d, got %d", want, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"success":false`) {
			t.Errorf("expected error envelope, got %s", rec.Body.String())
		}
	}
}

func TestConfirmRejectsOversizedBody(t *testing.T) {
	confirmer := &fakeConfirmer{}
	e := echo.New()
	Register(e.Group("/payment-gateway"), NewHandler(confirmer, ""))

	rec := post(e, strings.Repeat("a", maxBodyBytes+1), "X-Signature", "sig")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if confirmer.body != nil {
		t.Error("oversized body must not reach the service")
	}
}
