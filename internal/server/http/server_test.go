package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadinessReflectsDatabase(t *testing.T) {
	e := newEcho(config.Config{}, nil, fakePinger{}, zap.NewNop())
	if rec := get(e, "/ready"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	e = newEcho(config.Config{}, nil, fakePinger{err: errors.New("down")}, zap.NewNop())
	if rec := get(e, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if rec := get(e, "/health"); rec.Code != http.StatusOK {
		t.Errorf("liveness must not depend on the database, got %d", rec.Code)
	}
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	e := newEcho(config.Config{}, nil, nil, zap.NewNop())
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	if rec := get(e, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
