package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
		code   codes.Code
	}{
		{BadRequest("x"), http.StatusBadRequest, codes.InvalidArgument},
		{Unauthorized("x"), http.StatusUnauthorized, codes.Unauthenticated},
		{Forbidden("x"), http.StatusForbidden, codes.PermissionDenied},
		{NotFound("x"), http.StatusNotFound, codes.NotFound},
		{Conflict("x"), http.StatusConflict, codes.AlreadyExists},
		{Unprocessable("x"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{BadGateway("x"), http.StatusBadGateway, codes.Unavailable},
		{Internal("x"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		if got := tc.err.StatusCode(); got != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.err.Kind(), tc.status, got)
		}
		if got := tc.err.GRPCCode(); got != tc.code {
			t.Errorf("%s: expected grpc code %s, got %s", tc.err.Kind(), tc.code, got)
		}
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	appErr := From(cause)
	if appErr.Kind() != KindInternal {
		t.Fatalf("expected internal kind, got %s", appErr.Kind())
	}
	if !errors.Is(appErr, cause) {
		t.Error("expected cause to be unwrappable")
	}
}

func TestIsMatchesWrappedKinds(t *testing.T) {
	err := fmt.Errorf("checkout: %w", NotFound("order not found"))
	if !Is(err, KindNotFound) {
		t.Error("expected wrapped not found to match")
	}
	if Is(err, KindConflict) {
		t.Error("did not expect conflict to match")
	}
	if Is(errors.New("plain"), KindInternal) {
		t.Error("plain errors carry no kind")
	}
}
