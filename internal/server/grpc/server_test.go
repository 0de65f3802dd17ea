package grpc

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/paygate/pkg/errorbank"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func check(t *testing.T, hs *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestUpdateHealthTracksDatabase(t *testing.T) {
	hs := health.NewServer()

	updateHealth(context.Background(), hs, fakePinger{}, zap.NewNop())
	if got := check(t, hs, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", got)
	}

	updateHealth(context.Background(), hs, fakePinger{err: errors.New("down")}, zap.NewNop())
	if got := check(t, hs, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %v", got)
	}
	if got := check(t, hs, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall status should follow the database, got %v", got)
	}
}

func TestToStatusMapsAppErrors(t *testing.T) {
	err := toStatus(errorbank.NotFound("order not found"))
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.NotFound || st.Message() != "order not found" {
		t.Errorf("unexpected status %v", err)
	}

	plain := errors.New("boom")
	if toStatus(plain) != plain {
		t.Error("non-application errors must pass through")
	}
	if toStatus(nil) != nil {
		t.Error("nil must stay nil")
	}
}
