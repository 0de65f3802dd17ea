package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/entity"
	"github.com/Additional-Code/paygate/internal/event"
	orderrepo "github.com/Additional-Code/paygate/internal/repository/order"
	"github.com/Additional-Code/paygate/pkg/errorbank"
	"github.com/Additional-Code/paygate/pkg/signature"
)

var secret = []byte("shared-secret")

// memoryOrders serializes settlements the way a row lock would.
type memoryOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*entity.Order
	reads  int32
}

func newMemoryOrders(orders ...*entity.Order) *memoryOrders {
	m := &memoryOrders{orders: map[uuid.UUID]*entity.Order{}}
	for _, o := range orders {
		m.orders[o.UID] = o
	}
	return m
}

func (m *memoryOrders) GetByUID(_ context.Context, uid uuid.UUID) (*entity.Order, error) {
	atomic.AddInt32(&m.reads, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[uid]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (m *memoryOrders) Settle(ctx context.Context, uid uuid.UUID, to entity.OrderStatus, txnID string, fn orderrepo.TransitionFunc) (bool, *entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[uid]
	if !ok {
		return false, nil, orderrepo.ErrNotFound
	}
	if o.Status != entity.OrderPending {
		clone := *o
		if o.Status == to {
			return false, &clone, nil
		}
		return false, &clone, fmt.Errorf("%w: order is %s", orderrepo.ErrConflict, o.Status)
	}

	next := *o
	next.Status = to
	if txnID != "" {
		next.ExternalTxnID = txnID
	}
	if fn != nil {
		if err := fn(ctx, &next); err != nil {
			return false, nil, err
		}
	}
	*o = next
	clone := next
	return true, &clone, nil
}

func (m *memoryOrders) status(uid uuid.UUID) entity.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[uid].Status
}

type countingDispatcher struct {
	calls int32
	err   error
}

func (c *countingDispatcher) Dispatch(context.Context, *entity.Order) error {
	atomic.AddInt32(&c.calls, 1)
	return c.err
}

func (c *countingDispatcher) count() int32 { return atomic.LoadInt32(&c.calls) }

type recordedEvents struct {
	mu   sync.Mutex
	envs []event.Envelope
}

func (r *recordedEvents) PublishBestEffort(_ context.Context, env event.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func pendingOrder() *entity.Order {
	return &entity.Order{
		UID:      uuid.New(),
		UserID:   42,
		Username: "learner",
		CourseID: "course-v1:Org+Num+Run",
		Mode:     "verified",
		Amount:   decimal.RequireFromString("500000"),
		Currency: "VND",
		Status:   entity.OrderPending,
		Provider: "node",
	}
}

func callback(t *testing.T, uid uuid.UUID, amount, currency, status, txnID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"order_uid": uid.String(),
		"amount":    amount,
		"currency":  currency,
		"status":    status,
		"txn_id":    txnID,
	})
	if err != nil {
		t.Fatalf("marshal callback: %v", err)
	}
	return body
}

func newService(orders OrderStore, dispatcher *countingDispatcher, events *recordedEvents) *Service {
	return New(orders, dispatcher, events, secret, zap.NewNop(), nil)
}

func TestConfirmSuccessPaysAndEnrollsOnce(t *testing.T) {
	order := pendingOrder()
	orders, dispatcher, events := newMemoryOrders(order), &countingDispatcher{}, &recordedEvents{}
	svc := newService(orders, dispatcher, events)

	body := callback(t, order.UID, "500000.00", "VND", StatusSuccess, "TXN-1")
	sig := signature.Sign(secret, body)

	for i := 0; i < 2; i++ {
		if err := svc.Confirm(context.Background(), body, sig); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if got := orders.status(order.UID); got != entity.OrderPaid {
		t.Errorf("expected PAID, got %s", got)
	}
	if orders.orders[order.UID].ExternalTxnID != "TXN-1" {
		t.Errorf("expected txn id recorded, got %q", orders.orders[order.UID].ExternalTxnID)
	}
	if dispatcher.count() != 1 {
		t.Errorf("expected one enrollment, got %d", dispatcher.count())
	}
	if len(events.envs) != 1 || events.envs[0].Type != event.OrderSettled {
		t.Errorf("expected one order.settled event, got %+v", events.envs)
	}
	if !Ack().OK {
		t.Error("ack must be ok")
	}
}

func TestConfirmConcurrentDuplicatesEnrollOnce(t *testing.T) {
	order := pendingOrder()
	orders, dispatcher := newMemoryOrders(order), &countingDispatcher{}
	svc := newService(orders, dispatcher, &recordedEvents{})

	body := callback(t, order.UID, "500000.00", "VND", StatusSuccess, "TXN-1")
	sig := signature.Sign(secret, body)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Confirm(context.Background(), body, sig)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if dispatcher.count() != 1 {
		t.Errorf("expected exactly one enrollment, got %d", dispatcher.count())
	}
	if got := orders.status(order.UID); got != entity.OrderPaid {
		t.Errorf("expected PAID, got %s", got)
	}
}

func TestConfirmBadSignatureNeverParses(t *testing.T) {
	order := pendingOrder()
	orders, dispatcher := newMemoryOrders(order), &countingDispatcher{}
	svc := newService(orders, dispatcher, &recordedEvents{})

	body := callback(t, order.UID, "500000.00", "VND", StatusSuccess, "")
	for _, sig := range []string{"", "deadbeef", signature.Sign([]byte("other"), body)} {
		err := svc.Confirm(context.Background(), body, sig)
		if !errorbank.Is(err, errorbank.KindForbidden) {
			t.Errorf("signature %q: expected forbidden, got %v", sig, err)
		}
	}

	notJSON := []byte("{not json")
	if err := svc.Confirm(context.Background(), notJSON, "00"); !errorbank.Is(err, errorbank.KindForbidden) {
		t.Errorf("unsigned garbage must be rejected as forbidden, got %v", err)
	}

	if atomic.LoadInt32(&orders.reads) != 0 {
		t.Error("store must not be touched before the signature is verified")
	}
	if orders.status(order.UID) != entity.OrderPending || dispatcher.count() != 0 {
		t.Error("state changed on a bad signature")
	}
}

func TestConfirmMismatchNeverMutates(t *testing.T) {
	order := pendingOrder()
	orders, dispatcher := newMemoryOrders(order), &countingDispatcher{}
	svc := newService(orders, dispatcher, &recordedEvents{})

	cases := []struct{ amount, currency string }{
		{"500000", "VND"},
		{"500000.0", "VND"},
		{"500000.01", "VND"},
		{"500000.00", "vnd"},
		{"500000.00", "USD"},
	}
	for _, tc := range cases {
		for _, status := range []string{StatusSuccess, StatusFailed, StatusCanceled} {
			body := callback(t, order.UID, tc.amount, tc.currency, status, "")
			err := svc.Confirm(context.Background(), body, signature.Sign(secret, body))
			if !errorbank.Is(err, errorbank.KindBadRequest) {
				t.Errorf("%s %s %s: expected bad request, got %v", tc.amount, tc.currency, status, err)
			}
		}
	}
	if orders.status(order.UID) != entity.OrderPending || dispatcher.count() != 0 {
		t.Error("mismatched callbacks must not change the order")
	}
}

func TestConfirmClientErrors(t *testing.T) {
	order := pendingOrder()
	orders := newMemoryOrders(order)
	svc := newService(orders, &countingDispatcher{}, &recordedEvents{})

	signed := func(body []byte) error {
		return svc.Confirm(context.Background(), body, signature.Sign(secret, body))
	}

	if err := signed([]byte("{broken")); !errorbank.Is(err, errorbank.KindBadRequest) {
		t.Errorf("malformed json: expected bad request, got %v", err)
	}
	if err := signed(callback(t, uuid.New(), "500000.00", "VND", StatusSuccess, "")); !errorbank.Is(err, errorbank.KindNotFound) {
		t.Errorf("unknown order: expected not found, got %v", err)
	}
	if err := signed([]byte(`{"order_uid":"not-a-uuid","amount":"1.00","currency":"VND","status":"success"}`)); !errorbank.Is(err, errorbank.KindNotFound) {
		t.Errorf("malformed uid: expected not found, got %v", err)
	}
	if err := signed(callback(t, order.UID, "500000.00", "VND", "refunded", "")); !errorbank.Is(err, errorbank.KindBadRequest) {
		t.Errorf("unknown status: expected bad request, got %v", err)
	}
	if orders.status(order.UID) != entity.OrderPending {
		t.Error("client errors must not change the order")
	}
}

func TestConfirmFailedAndCanceledDoNotEnroll(t *testing.T) {
	for status, want := range map[string]entity.OrderStatus{StatusFailed: entity.OrderFailed, StatusCanceled: entity.OrderCanceled} {
		t.Run(status, func(t *testing.T) {
			order := pendingOrder()
			orders, dispatcher := newMemoryOrders(order), &countingDispatcher{}
			svc := newService(orders, dispatcher, &recordedEvents{})

			body := callback(t, order.UID, "500000.00", "VND", status, "TXN-IGNORED")
			if err := svc.Confirm(context.Background(), body, signature.Sign(secret, body)); err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if got := orders.status(order.UID); got != want {
				t.Errorf("expected %s, got %s", want, got)
			}
			if dispatcher.count() != 0 {
				t.Error("only success may enroll")
			}
			if orders.orders[order.UID].ExternalTxnID != "" {
				t.Error("txn id is only recorded on success")
			}

			// Redelivery of the same terminal state is accepted.
			if err := svc.Confirm(context.Background(), body, signature.Sign(secret, body)); err != nil {
				t.Errorf("redelivery: %v", err)
			}
		})
	}
}

func TestConfirmTerminalConflict(t *testing.T) {
	order := pendingOrder()
	order.Status = entity.OrderPaid
	orders, dispatcher := newMemoryOrders(order), &countingDispatcher{}
	svc := newService(orders, dispatcher, &recordedEvents{})

	body := callback(t, order.UID, "500000.00", "VND", StatusFailed, "")
	err := svc.Confirm(context.Background(), body, signature.Sign(secret, body))
	if !errorbank.Is(err, errorbank.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if errorbank.From(err).StatusCode() != http.StatusConflict {
		t.Errorf("expected 409, got %d", errorbank.From(err).StatusCode())
	}
	if orders.status(order.UID) != entity.OrderPaid || dispatcher.count() != 0 {
		t.Error("a paid order must never regress")
	}
}

func TestConfirmEnrollmentFailureRollsBack(t *testing.T) {
	order := pendingOrder()
	orders := newMemoryOrders(order)
	dispatcher := &countingDispatcher{err: errors.New("lms unavailable")}
	events := &recordedEvents{}
	svc := newService(orders, dispatcher, events)

	body := callback(t, order.UID, "500000.00", "VND", StatusSuccess, "TXN-1")
	sig := signature.Sign(secret, body)

	err := svc.Confirm(context.Background(), body, sig)
	if !errorbank.Is(err, errorbank.KindBadRequest) {
		t.Fatalf("internal failures must surface as bad request, got %v", err)
	}
	if errorbank.From(err).StatusCode() >= 500 {
		t.Errorf("processor must never see a 5xx, got %d", errorbank.From(err).StatusCode())
	}
	if orders.status(order.UID) != entity.OrderPending {
		t.Error("failed enrollment must leave the order pending")
	}
	if len(events.envs) != 0 {
		t.Error("no settled event on rollback")
	}

	dispatcher.err = nil
	if err := svc.Confirm(context.Background(), body, sig); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if orders.status(order.UID) != entity.OrderPaid || dispatcher.count() != 2 {
		t.Errorf("retry should pay and enroll, got %s after %d calls", orders.status(order.UID), dispatcher.count())
	}
}

func TestConfirmWithoutSecret(t *testing.T) {
	svc := New(newMemoryOrders(), &countingDispatcher{}, nil, nil, zap.NewNop(), time.Now)
	if err := svc.Confirm(context.Background(), []byte("{}"), ""); !errorbank.Is(err, errorbank.KindBadRequest) {
		t.Errorf("expected bad request without a secret, got %v", err)
	}
}
