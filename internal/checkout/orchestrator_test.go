package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joya-checkout/internal/cart"
	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/payment/wompi"
	"github.com/joya-checkout/internal/recovery"
	"github.com/joya-checkout/internal/rest"
	"github.com/joya-checkout/internal/scheduler"
	"github.com/joya-checkout/internal/storeapi"
)

const productID = "64b7f0c2a1b2c3d4e5f60718"

type reply struct {
	status int
	body   string
}

type fakeBackend struct {
	mu       sync.Mutex
	calls    map[string]int
	drafts   []string
	syncs    []storeapi.SyncRequest
	lock     reply
	token    reply
	charge   reply
	shipping map[string]interface{}
	idemKeys map[string][]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:    make(map[string]int),
		idemKeys: make(map[string][]string),
		drafts:   []string{"D1", "D2", "D3"},
		lock:     reply{http.StatusOK, `{"order":{"_id":"O1","status":"pending_payment"},"wompiReference":"R1"}`},
		token:    reply{http.StatusOK, `{"token":"tok_1"}`},
		charge:   reply{http.StatusOK, `{"transactionState":"APPROVED","transactionId":"T1"}`},
	}
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *fakeBackend) keys(key string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.idemKeys[key]...)
}

func (b *fakeBackend) lastSync() storeapi.SyncRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.syncs) == 0 {
		return storeapi.SyncRequest{}
	}
	return b.syncs[len(b.syncs)-1]
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	key := r.Method + " " + r.URL.Path
	if strings.HasPrefix(r.URL.Path, "/orders/") && strings.HasSuffix(r.URL.Path, "/pending") {
		key = r.Method + " /orders/{id}/pending"
	}
	b.calls[key]++
	n := b.calls[key]
	if idem := r.Header.Get("Idempotency-Key"); idem != "" {
		b.idemKeys[key] = append(b.idemKeys[key], idem)
	}
	var out reply
	switch key {
	case "GET /orders/cart":
		id := b.drafts[len(b.drafts)-1]
		if n <= len(b.drafts) {
			id = b.drafts[n-1]
		}
		out = reply{http.StatusOK, `{"order":{"_id":"` + id + `","status":"draft"}}`}
	case "PUT /orders/cart/items":
		var req storeapi.SyncRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.syncs = append(b.syncs, req)
		out = reply{http.StatusOK, `{"order":{"_id":"D1","subtotalCents":2000,"totalCents":2000}}`}
	case "PUT /orders/cart/addresses":
		_ = json.NewDecoder(r.Body).Decode(&b.shipping)
		out = reply{http.StatusOK, `{}`}
	case "POST /orders/{id}/pending":
		out = b.lock
	case "POST /payment/token":
		out = b.token
	case "POST /payment/3ds":
		out = b.charge
	default:
		out = reply{http.StatusNotFound, `{"message":"not routed"}`}
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.status)
	_, _ = w.Write([]byte(out.body))
}

type recordingExpiry struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingExpiry) ScheduleLockExpiry(_ context.Context, sessionID, lockedOrderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionID+"/"+lockedOrderID)
	return nil
}

type harness struct {
	orch    *Orchestrator
	backend *fakeBackend
	clock   *scheduler.FakeClock
	store   *cart.Store
	expiry  *recordingExpiry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := newFakeBackend()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	transport, err := rest.NewClient(rest.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new rest client failed: %v", err)
	}
	clock := scheduler.NewFakeClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))
	store := cart.New(cart.NewMemorySnapshotStore(), "joya_cart:s1")
	expiry := &recordingExpiry{}
	orch := New(store, storeapi.NewClient(transport), wompi.NewClient(transport), Options{
		SessionID:           "s1",
		SyncDelay:           500 * time.Millisecond,
		Debouncer:           scheduler.NewDebouncer(clock),
		PlaceholderLastName: "N/A",
		LockExpiry:          expiry,
		Now:                 clock.Now,
	})
	t.Cleanup(orch.Close)
	return &harness{orch: orch, backend: backend, clock: clock, store: store, expiry: expiry}
}

func (h *harness) addProduct(t *testing.T, qty int) {
	t.Helper()
	if !h.store.AddOrIncrement(cart.AddInput{ProductID: productID, Variant: "oro", Quantity: qty, Stock: 3, UnitPriceCents: 1000}) {
		t.Fatalf("add product refused")
	}
}

func (h *harness) advance(t *testing.T) {
	t.Helper()
	if err := h.orch.AdvanceToPayment(context.Background(), validShipping()); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
}

var testCard = CardInput{Number: "4242424242424242", CVV: "123", Expiry: "12/30"}

func TestStockClampScenario(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.addProduct(t, 1)
	}
	if h.store.AddOrIncrement(cart.AddInput{ProductID: productID, Variant: "oro", Quantity: 1, Stock: 3}) {
		t.Fatalf("fourth add must be refused")
	}
	if got := h.store.List()[0].Quantity; got != 3 {
		t.Fatalf("expected quantity 3, got %d", got)
	}
}

func TestEnsureDraftIsIdempotent(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := h.orch.EnsureDraft(context.Background())
			if err != nil {
				t.Errorf("ensure draft failed: %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	if _, err := h.orch.EnsureDraft(context.Background()); err != nil {
		t.Fatalf("ensure draft failed: %v", err)
	}

	if got := h.backend.count("GET /orders/cart"); got != 1 {
		t.Fatalf("expected exactly one create request, got %d", got)
	}
	for _, id := range ids {
		if id != "D1" {
			t.Fatalf("expected D1 for every caller, got %v", ids)
		}
	}
	if h.store.CartOrderID() != "D1" {
		t.Fatalf("draft id must be stored with the cart snapshot")
	}
}

func TestDebouncedSyncScenario(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.clock.Advance(100 * time.Millisecond)
	if err := h.store.SetQuantity(productID, "oro", 2); err != nil {
		t.Fatalf("set quantity failed: %v", err)
	}
	h.clock.Advance(500 * time.Millisecond)

	if got := h.backend.count("PUT /orders/cart/items"); got != 1 {
		t.Fatalf("expected exactly one PUT, got %d", got)
	}
	last := h.backend.lastSync()
	if len(last.Items) != 1 || last.Items[0].Quantity != 2 {
		t.Fatalf("expected second payload, got %+v", last)
	}
	if !h.orch.State().Totals.FromServer {
		t.Fatalf("expected server totals after sync")
	}
}

func TestAdvanceToPaymentScenario(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 2)
	h.advance(t)

	state := h.orch.State()
	if state.Session.Step != constants.StepCollectingPayment {
		t.Fatalf("unexpected step: %s", state.Session.Step)
	}
	if state.Session.LockedOrderID != "O1" || state.Session.PaymentReference != "R1" || !state.Session.HasToken {
		t.Fatalf("unexpected session: %+v", state.Session)
	}
	for key, want := range map[string]int{
		"GET /orders/cart":           1,
		"PUT /orders/cart/items":     1,
		"PUT /orders/cart/addresses": 1,
		"POST /orders/{id}/pending":  1,
		"POST /payment/token":        1,
	} {
		if got := h.backend.count(key); got != want {
			t.Fatalf("%s: want %d calls, got %d", key, want, got)
		}
	}
	if len(h.expiry.calls) != 1 || h.expiry.calls[0] != "s1/O1" {
		t.Fatalf("expected lock expiry scheduled, got %v", h.expiry.calls)
	}
	if h.backend.shipping == nil {
		t.Fatalf("expected shipping snapshot sent")
	}
}

func TestLockFreezeStopsSync(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.advance(t)
	puts := h.backend.count("PUT /orders/cart/items")

	h.addProduct(t, 1)
	h.orch.SetAdjustments(h.orch.currentAdjustments())
	h.clock.Advance(time.Second)
	server, err := h.orch.Sync().SyncNow(context.Background(), h.store.List(), h.orch.currentAdjustments())
	if server != nil || err != nil {
		t.Fatalf("expected no-op sync after lock, got %v %v", server, err)
	}
	if got := h.backend.count("PUT /orders/cart/items"); got != puts {
		t.Fatalf("expected no PUT after lock, got %d (was %d)", got, puts)
	}
}

func TestSubmitPaymentApproved(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.advance(t)

	result, err := h.orch.SubmitPayment(context.Background(), testCard)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Status != constants.PaymentOutcomeApproved || result.OrderID != "O1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	state := h.orch.State()
	if state.Session.Step != constants.StepConfirmed {
		t.Fatalf("expected confirmed, got %s", state.Session.Step)
	}
	if len(state.Lines) != 0 || h.store.CartOrderID() != "" {
		t.Fatalf("expected cart cleared after approval")
	}
	if state.Session.DraftOrderID != "" {
		t.Fatalf("expected draft id cleared after approval, got %q", state.Session.DraftOrderID)
	}
	if h.orch.Sync().Pending() {
		t.Fatalf("expected no pending sync after approval")
	}
}

func TestSubmitPaymentDuplicateThenReset(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest} {
		h := newHarness(t)
		h.addProduct(t, 1)
		h.advance(t)
		h.backend.set(func(b *fakeBackend) { b.charge = reply{status, `{"message":"DUPLICATED"}`} })

		_, err := h.orch.SubmitPayment(context.Background(), testCard)
		if !errors.Is(err, ErrDuplicateOrder) {
			t.Fatalf("status %d: expected duplicate order error, got %v", status, err)
		}
		var rejected *PaymentRejectedError
		if !errors.As(err, &rejected) || rejected.Message != "DUPLICATED" {
			t.Fatalf("status %d: expected verbatim gateway message, got %v", status, err)
		}
		if recovery.Classify(err).Remedy() != constants.RemedyReset {
			t.Fatalf("status %d: expected reset remedy", status)
		}
		if h.orch.State().Session.Step != constants.StepFailed {
			t.Fatalf("status %d: expected failed step", status)
		}

		if err := h.orch.ResetPaymentState(context.Background()); err != nil {
			t.Fatalf("status %d: reset failed: %v", status, err)
		}
		s := h.orch.State().Session
		if s.Step != constants.StepCollectingShipping || s.LockedOrderID != "" || s.PaymentReference != "" || s.HasToken || s.Stale {
			t.Fatalf("status %d: unexpected session after reset: %+v", status, s)
		}
		if s.DraftOrderID != "D2" || s.DraftOrderID == "O1" {
			t.Fatalf("status %d: expected fresh draft, got %s", status, s.DraftOrderID)
		}
		if s.Shipping == nil {
			t.Fatalf("status %d: shipping form should survive reset", status)
		}
	}
}

func TestRecoverPerformsReset(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.advance(t)
	h.backend.set(func(b *fakeBackend) { b.charge = reply{http.StatusConflict, `{"message":"La orden ya fue pagada"}`} })

	_, err := h.orch.SubmitPayment(context.Background(), testCard)
	c, performed, rerr := recovery.Recover(context.Background(), err, h.orch)
	if rerr != nil || !performed || !c.Duplicate {
		t.Fatalf("expected recovery reset, got %+v %v %v", c, performed, rerr)
	}
	if h.orch.State().Session.DraftOrderID != "D2" {
		t.Fatalf("expected new draft after recovery")
	}
}

func TestResetDetectsDraftNotRenewed(t *testing.T) {
	h := newHarness(t)
	h.backend.set(func(b *fakeBackend) { b.drafts = []string{"D1", "O1"} })
	h.addProduct(t, 1)
	h.advance(t)

	if err := h.orch.ResetPaymentState(context.Background()); !errors.Is(err, ErrDraftNotRenewed) {
		t.Fatalf("expected ErrDraftNotRenewed, got %v", err)
	}
	if h.orch.State().Session.DraftOrderID != "" {
		t.Fatalf("stale draft id must not be kept")
	}
}

func TestAdvanceLockFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.backend.set(func(b *fakeBackend) { b.lock = reply{http.StatusInternalServerError, `{"message":"boom"}`} })

	err := h.orch.AdvanceToPayment(context.Background(), validShipping())
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != constants.AdvanceStepLock || !errors.Is(err, ErrLockFailed) {
		t.Fatalf("expected lock step error, got %v", err)
	}
	s := h.orch.State().Session
	if s.Step != constants.StepCollectingShipping || s.LockedOrderID != "" || s.LastError != "boom" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if h.backend.count("POST /payment/token") != 0 {
		t.Fatalf("token must not be requested after lock failure")
	}
}

func TestAdvanceTokenFailureKeepsLockAndRetriesOnlyToken(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.backend.set(func(b *fakeBackend) { b.token = reply{http.StatusServiceUnavailable, `{}`} })

	err := h.orch.AdvanceToPayment(context.Background(), validShipping())
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	s := h.orch.State().Session
	if s.Step != constants.StepCollectingShipping || s.LockedOrderID != "O1" {
		t.Fatalf("lock id must be kept, got %+v", s)
	}

	h.backend.set(func(b *fakeBackend) { b.token = reply{http.StatusOK, `{"accessToken":"tok_2"}`} })
	h.advance(t)
	if h.backend.count("PUT /orders/cart/items") != 1 || h.backend.count("POST /orders/{id}/pending") != 1 {
		t.Fatalf("retried advance must skip sync and lock")
	}
	if h.orch.State().Session.Step != constants.StepCollectingPayment {
		t.Fatalf("expected collecting_payment")
	}
}

func TestAdvanceValidationMakesNoRequests(t *testing.T) {
	h := newHarness(t)
	info := validShipping()
	info.Email = ""

	err := h.orch.AdvanceToPayment(context.Background(), info)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if h.backend.count("GET /orders/cart")+h.backend.count("PUT /orders/cart/items") != 0 {
		t.Fatalf("validation failure must not hit the network")
	}
}

func TestSubmitPaymentPreconditions(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.SubmitPayment(context.Background(), testCard); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	h.addProduct(t, 1)
	h.advance(t)
	if _, err := h.orch.SubmitPayment(context.Background(), CardInput{Number: "1", CVV: "1", Expiry: "01/20"}); !errors.Is(err, recovery.ErrInvalidInput) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.backend.count("POST /payment/3ds") != 0 {
		t.Fatalf("invalid card must not reach the gateway")
	}
}

func TestExpiredLockFailsFast(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.advance(t)

	if h.orch.ExpireLock("other") {
		t.Fatalf("mismatched lock id must be ignored")
	}
	if !h.orch.ExpireLock("O1") {
		t.Fatalf("expected lock marked stale")
	}
	_, err := h.orch.SubmitPayment(context.Background(), testCard)
	if !errors.Is(err, ErrLockExpired) || !errors.Is(err, recovery.ErrOrderStale) {
		t.Fatalf("expected ErrLockExpired, got %v", err)
	}
	if recovery.Classify(err).Remedy() != constants.RemedyReset {
		t.Fatalf("expired lock must route to reset")
	}
}

func TestSubmitPaymentPendingAndDeclined(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.advance(t)

	h.backend.set(func(b *fakeBackend) { b.charge = reply{http.StatusOK, `{"status":"PENDING"}`} })
	if _, err := h.orch.SubmitPayment(context.Background(), testCard); !errors.Is(err, ErrPaymentPending) {
		t.Fatalf("expected ErrPaymentPending, got %v", err)
	}
	if h.orch.State().Session.Step != constants.StepCollectingPayment {
		t.Fatalf("pending must keep collecting_payment")
	}

	h.backend.set(func(b *fakeBackend) { b.charge = reply{http.StatusOK, `{"transactionState":"DECLINED","message":"Fondos insuficientes"}`} })
	_, err := h.orch.SubmitPayment(context.Background(), testCard)
	var rejected *PaymentRejectedError
	if !errors.As(err, &rejected) || rejected.Message != "Fondos insuficientes" || errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected plain rejection, got %v", err)
	}
	if h.orch.State().Session.Step != constants.StepFailed {
		t.Fatalf("expected failed step")
	}
	if _, err := h.orch.SubmitPayment(context.Background(), testCard); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("submit from failed must require retry, got %v", err)
	}
	if err := h.orch.RetryPayment(); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if err := h.orch.RetryPayment(); !errors.Is(err, ErrInvalidStep) {
		t.Fatalf("expected ErrInvalidStep, got %v", err)
	}
	if _, err := h.orch.SubmitPayment(context.Background(), testCard); !errors.Is(err, recovery.ErrPaymentRejected) {
		t.Fatalf("expected rejection again, got %v", err)
	}
}

func TestSubmitPaymentNetworkErrorKeepsStep(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.advance(t)
	h.backend.set(func(b *fakeBackend) { b.charge = reply{http.StatusBadGateway, `{}`} })

	_, err := h.orch.SubmitPayment(context.Background(), testCard)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if h.orch.State().Session.Step != constants.StepCollectingPayment {
		t.Fatalf("transport failure must not move to failed")
	}
}

func TestClearFormCancelsPendingSync(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	if !h.orch.Sync().Pending() {
		t.Fatalf("expected pending sync after mutation")
	}
	h.orch.ClearForm()
	h.clock.Advance(time.Second)
	if h.backend.count("PUT /orders/cart/items") != 0 {
		t.Fatalf("cleared form must drop pending sync")
	}
}

func TestSyncCartBypassesDebounce(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 2)

	server, err := h.orch.SyncCart(context.Background())
	if err != nil {
		t.Fatalf("sync cart failed: %v", err)
	}
	if server == nil || server.TotalCents != 2000 {
		t.Fatalf("unexpected server cart: %+v", server)
	}
	if h.orch.Sync().Pending() {
		t.Fatalf("pending debounce must be cancelled")
	}
	h.clock.Advance(time.Second)
	if got := h.backend.count("PUT /orders/cart/items"); got != 1 {
		t.Fatalf("expected one PUT, got %d", got)
	}
	if got := h.backend.count("GET /orders/cart"); got != 1 {
		t.Fatalf("expected draft created once, got %d", got)
	}

	h.advance(t)
	puts := h.backend.count("PUT /orders/cart/items")
	server, err = h.orch.SyncCart(context.Background())
	if server != nil || err != nil {
		t.Fatalf("expected no-op sync while locked, got %v %v", server, err)
	}
	if got := h.backend.count("PUT /orders/cart/items"); got != puts {
		t.Fatalf("expected no PUT while locked, got %d (was %d)", got, puts)
	}
}

func TestCardDeclinesKeepLockedOrder(t *testing.T) {
	cases := []struct {
		name   string
		charge reply
	}{
		{name: "expired card", charge: reply{http.StatusOK, `{"transactionState":"DECLINED","message":"Tarjeta expirada"}`}},
		{name: "422 decline", charge: reply{http.StatusUnprocessableEntity, `{"message":"CVC incorrecto"}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.addProduct(t, 1)
			h.advance(t)
			h.backend.set(func(b *fakeBackend) { b.charge = tc.charge })

			_, err := h.orch.SubmitPayment(context.Background(), testCard)
			if !errors.Is(err, recovery.ErrPaymentRejected) {
				t.Fatalf("expected rejection, got %v", err)
			}
			if errors.Is(err, recovery.ErrOrderStale) || errors.Is(err, ErrDuplicateOrder) {
				t.Fatalf("card decline must not route to reset: %v", err)
			}
			c := recovery.Classify(err)
			if !c.CardFault || c.Remedy() != constants.RemedyRetry {
				t.Fatalf("expected card fault with retry remedy, got %+v remedy=%s", c, c.Remedy())
			}
			if h.orch.State().Session.LockedOrderID != "O1" {
				t.Fatalf("locked order must be kept after a card decline")
			}
		})
	}
}

func TestChargeResubmitReusesIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	h.addProduct(t, 1)
	h.advance(t)

	h.backend.set(func(b *fakeBackend) { b.charge = reply{http.StatusBadGateway, `{"message":"upstream"}`} })
	for i := 0; i < 2; i++ {
		if _, err := h.orch.SubmitPayment(context.Background(), testCard); !errors.Is(err, ErrGatewayUnavailable) {
			t.Fatalf("submit %d: expected ErrGatewayUnavailable, got %v", i, err)
		}
	}
	h.backend.set(func(b *fakeBackend) { b.charge = reply{http.StatusOK, `{"transactionState":"DECLINED","message":"Fondos insuficientes"}`} })
	if _, err := h.orch.SubmitPayment(context.Background(), testCard); !errors.Is(err, recovery.ErrPaymentRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if err := h.orch.RetryPayment(); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if _, err := h.orch.SubmitPayment(context.Background(), testCard); !errors.Is(err, recovery.ErrPaymentRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}

	keys := h.backend.keys("POST /payment/3ds")
	if len(keys) != 4 {
		t.Fatalf("expected 4 charge keys, got %v", keys)
	}
	if keys[0] != keys[1] || keys[1] != keys[2] {
		t.Fatalf("resubmits for the same lock must share a key: %v", keys)
	}
	if keys[3] == keys[2] {
		t.Fatalf("a new attempt after a decline needs a new key: %v", keys)
	}
}

func TestDraftIdempotencyKeyChangesOnReset(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.EnsureDraft(context.Background()); err != nil {
		t.Fatalf("ensure draft failed: %v", err)
	}
	if err := h.orch.ResetPaymentState(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	keys := h.backend.keys("GET /orders/cart")
	if len(keys) != 2 || keys[0] == "" || keys[0] == keys[1] {
		t.Fatalf("expected two distinct draft keys, got %v", keys)
	}
}
