package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/entity"
	repo "github.com/Additional-Code/paygate/internal/repository/order"
	"github.com/Additional-Code/paygate/pkg/errorbank"
)

type fakeStore struct {
	orders map[uuid.UUID]*entity.Order
	stale  []entity.Order
	cutoff time.Time
	err    error
}

func (f *fakeStore) GetByUID(_ context.Context, uid uuid.UUID) (*entity.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.orders[uid]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) ListStalePending(_ context.Context, cutoff time.Time, _ int) ([]entity.Order, error) {
	f.cutoff = cutoff
	return f.stale, f.err
}

func orderWithStatus(status entity.OrderStatus) *entity.Order {
	return &entity.Order{
		UID:      uuid.New(),
		CourseID: "course-v1:Org+Num+Run",
		Mode:     "verified",
		Amount:   decimal.RequireFromString("500000"),
		Currency: "VND",
		Status:   status,
	}
}

func TestReturnStatusMessages(t *testing.T) {
	cases := map[entity.OrderStatus]string{
		entity.OrderPaid:     MessagePaid,
		entity.OrderFailed:   MessageFailed,
		entity.OrderCanceled: MessageFailed,
		entity.OrderPending:  MessageProcessing,
	}
	for status, want := range cases {
		order := orderWithStatus(status)
		svc := New(&fakeStore{orders: map[uuid.UUID]*entity.Order{order.UID: order}}, zap.NewNop(), nil)

		got, err := svc.ReturnStatus(context.Background(), order.UID.String())
		if err != nil {
			t.Fatalf("%s: %v", status, err)
		}
		if got.Message != want || got.Status != string(status) {
			t.Errorf("%s: expected %q, got %q", status, want, got.Message)
		}
	}
}

func TestReturnStatusFailedShowsOnlyFailureMessage(t *testing.T) {
	order := orderWithStatus(entity.OrderFailed)
	svc := New(&fakeStore{orders: map[uuid.UUID]*entity.Order{order.UID: order}}, zap.NewNop(), nil)

	got, err := svc.ReturnStatus(context.Background(), order.UID.String())
	if err != nil {
		t.Fatalf("return status: %v", err)
	}
	if got.Message == MessagePaid || got.Message == MessageProcessing {
		t.Errorf("failed order rendered %q", got.Message)
	}
}

func TestReturnStatusNotFound(t *testing.T) {
	svc := New(&fakeStore{orders: map[uuid.UUID]*entity.Order{}}, zap.NewNop(), nil)

	for _, uid := range []string{uuid.NewString(), "not-a-uid", ""} {
		if _, err := svc.ReturnStatus(context.Background(), uid); !errorbank.Is(err, errorbank.KindNotFound) {
			t.Errorf("%q: expected not found, got %v", uid, err)
		}
	}

	broken := New(&fakeStore{err: errors.New("db down")}, zap.NewNop(), nil)
	if _, err := broken.ReturnStatus(context.Background(), uuid.NewString()); !errorbank.Is(err, errorbank.KindInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestStalePending(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	stale := *orderWithStatus(entity.OrderPending)
	stale.ExternalTxnID = "TXN-5"
	store := &fakeStore{stale: []entity.Order{stale}}
	svc := New(store, zap.NewNop(), func() time.Time { return now })

	got, err := svc.StalePending(context.Background(), 30*time.Minute, 50)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if !store.cutoff.Equal(now.Add(-30 * time.Minute)) {
		t.Errorf("unexpected cutoff %s", store.cutoff)
	}
	if len(got) != 1 || got[0].Amount != "500000.00" || got[0].ExternalTxnID != "TXN-5" {
		t.Errorf("unexpected report %+v", got)
	}

	if _, err := svc.StalePending(context.Background(), 0, 10); !errorbank.Is(err, errorbank.KindBadRequest) {
		t.Errorf("expected bad request for zero window, got %v", err)
	}
}
