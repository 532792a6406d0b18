package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/health"
	"github.com/algoease/backend/internal/infra/storage/memory"
)

const (
	testTxID       = "5NNAYY6WLPS3JH3XZATIO4O4AFRAJPMPIK4OFHPKHVLIMZ42P62Q"
	testActionTxID = "BUCT45KSOEILLRHDKFMD63IP7FOD5AOPV4VEIF4A4XW76YWHK56Q"
)

func testAddr(t *testing.T, fill byte) string {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	addr, err := domain.EncodeAddress(key)
	if err != nil {
		t.Fatalf("EncodeAddress() error = %v", err)
	}
	return addr
}

type stubReconciler struct {
	bounties      *memory.BountyRepo
	refunds       []string
	reconcileErr  error
	enqueueRefund error
}

func (s *stubReconciler) ReconcileNow(ctx context.Context, rowID string) (*domain.Bounty, error) {
	if s.reconcileErr != nil {
		return nil, s.reconcileErr
	}
	return s.bounties.GetByRowID(ctx, rowID)
}

func (s *stubReconciler) EnqueueRefund(ctx context.Context, rowID string) error {
	if s.enqueueRefund != nil {
		return s.enqueueRefund
	}
	s.refunds = append(s.refunds, rowID)
	return nil
}

type stubChecker struct {
	status health.SystemStatus
}

func (s *stubChecker) Check(ctx context.Context) *health.Report {
	return &health.Report{Status: s.status, CheckedAt: time.Now()}
}

type fixture struct {
	router     http.Handler
	bounties   *memory.BountyRepo
	reconciler *stubReconciler
	checker    *stubChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStorage()
	bounties := memory.NewBountyRepo(store)
	reconciler := &stubReconciler{bounties: bounties}
	checker := &stubChecker{status: health.StatusHealthy}

	h := NewHandler(bounties, reconciler, checker)
	return &fixture{
		router:     NewRouter(h, RouterConfig{}),
		bounties:   bounties,
		reconciler: reconciler,
		checker:    checker,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createBounty(t *testing.T, client string) *domain.Bounty {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/bounties", map[string]any{
		"title":          "build landing page",
		"description":    "responsive, dark mode",
		"amount":         5_000_000,
		"client_address": client,
		"create_txid":    testTxID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bounty: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var b domain.Bounty
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode bounty: %v", err)
	}
	return &b
}

func TestCreateBounty(t *testing.T) {
	f := newFixture(t)
	client := testAddr(t, 1)

	b := f.createBounty(t, client)
	if b.Status != domain.StatusOpen {
		t.Errorf("Status = %s, want %s", b.Status, domain.StatusOpen)
	}
	if b.BountyID != nil {
		t.Errorf("BountyID = %v, want nil until reconciled", *b.BountyID)
	}
	if b.ClientAddress != client {
		t.Errorf("ClientAddress = %s, want %s", b.ClientAddress, client)
	}
	if b.ID == "" {
		t.Error("ID is empty, want generated row id")
	}
}

func TestCreateBounty_Validation(t *testing.T) {
	f := newFixture(t)
	client := testAddr(t, 1)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{
			"amount": 1, "client_address": client, "create_txid": testTxID,
		}},
		{"zero amount", map[string]any{
			"title": "x", "amount": 0, "client_address": client, "create_txid": testTxID,
		}},
		{"negative amount", map[string]any{
			"title": "x", "amount": -5, "client_address": client, "create_txid": testTxID,
		}},
		{"bad address", map[string]any{
			"title": "x", "amount": 1, "client_address": "not-an-address", "create_txid": testTxID,
		}},
		{"bad txid", map[string]any{
			"title": "x", "amount": 1, "client_address": client, "create_txid": "short",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/bounties", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetBounty_ByRowIDAndOnChainID(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(t, testAddr(t, 1))

	rec := f.do(t, http.MethodGet, "/api/bounties/"+b.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by row id: status = %d", rec.Code)
	}

	if err := f.bounties.SetBountyID(context.Background(), b.ID, 7); err != nil {
		t.Fatalf("SetBountyID() error = %v", err)
	}
	rec = f.do(t, http.MethodGet, "/api/bounties/7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by on-chain id: status = %d", rec.Code)
	}
	var got domain.Bounty
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("ID = %s, want %s", got.ID, b.ID)
	}
}

func TestGetBounty_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/bounties/123", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/bounties/no-such-row", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListBounties_Filters(t *testing.T) {
	f := newFixture(t)
	clientA := testAddr(t, 1)
	clientB := testAddr(t, 2)

	b1 := f.createBounty(t, clientA)
	f.createBounty(t, clientB)

	freelancer := testAddr(t, 3)
	rec := f.do(t, http.MethodPost, "/api/bounties/"+b1.ID+"/accept", map[string]any{
		"txid":               testActionTxID,
		"freelancer_address": freelancer,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var list struct {
		Bounties []domain.Bounty `json:"bounties"`
		Count    int             `json:"count"`
	}
	decode := func(rec *httptest.ResponseRecorder) {
		t.Helper()
		if rec.Code != http.StatusOK {
			t.Fatalf("list: status = %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
	}

	decode(f.do(t, http.MethodGet, "/api/bounties", nil))
	if list.Count != 2 {
		t.Errorf("unfiltered count = %d, want 2", list.Count)
	}

	decode(f.do(t, http.MethodGet, "/api/bounties?status=accepted", nil))
	if list.Count != 1 || list.Bounties[0].ID != b1.ID {
		t.Errorf("status filter: count = %d, want exactly the accepted bounty", list.Count)
	}

	decode(f.do(t, http.MethodGet, "/api/bounties?client="+clientB, nil))
	if list.Count != 1 {
		t.Errorf("client filter count = %d, want 1", list.Count)
	}

	decode(f.do(t, http.MethodGet, "/api/bounties?freelancer="+freelancer, nil))
	if list.Count != 1 || list.Bounties[0].ID != b1.ID {
		t.Errorf("freelancer filter: count = %d, want 1", list.Count)
	}

	rec = f.do(t, http.MethodGet, "/api/bounties?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter: status = %d, want 400", rec.Code)
	}
}

func TestLifecycle_FullApprovalPath(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(t, testAddr(t, 1))
	freelancer := testAddr(t, 2)

	steps := []struct {
		path string
		body map[string]any
		want domain.Status
	}{
		{"accept", map[string]any{"txid": testActionTxID, "freelancer_address": freelancer}, domain.StatusAccepted},
		{"submit", map[string]any{"txid": testActionTxID}, domain.StatusSubmitted},
		{"approve", map[string]any{"txid": testActionTxID}, domain.StatusApproved},
		{"claim", map[string]any{"txid": testActionTxID}, domain.StatusClaimed},
	}
	for _, step := range steps {
		rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/bounties/%s/%s", b.ID, step.path), step.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, body = %s", step.path, rec.Code, rec.Body.String())
		}
		var got domain.Bounty
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Status != step.want {
			t.Errorf("%s: Status = %s, want %s", step.path, got.Status, step.want)
		}
	}
}

func TestReject_EnqueuesRefund(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(t, testAddr(t, 1))
	freelancer := testAddr(t, 2)

	for _, action := range []string{"accept", "submit"} {
		body := map[string]any{"txid": testActionTxID}
		if action == "accept" {
			body["freelancer_address"] = freelancer
		}
		rec := f.do(t, http.MethodPost, "/api/bounties/"+b.ID+"/"+action, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", action, rec.Code)
		}
	}

	rec := f.do(t, http.MethodPost, "/api/bounties/"+b.ID+"/reject",
		map[string]any{"txid": testActionTxID})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if len(f.reconciler.refunds) != 1 || f.reconciler.refunds[0] != b.ID {
		t.Errorf("refund queue = %v, want [%s]", f.reconciler.refunds, b.ID)
	}
}

func TestTransition_InvalidIsConflict(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(t, testAddr(t, 1))

	// submit straight from open
	rec := f.do(t, http.MethodPost, "/api/bounties/"+b.ID+"/submit",
		map[string]any{"txid": testActionTxID})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409; body = %s", rec.Code, rec.Body.String())
	}
}

func TestReconcileEndpoint(t *testing.T) {
	f := newFixture(t)
	b := f.createBounty(t, testAddr(t, 1))

	rec := f.do(t, http.MethodPost, "/api/bounties/"+b.ID+"/reconcile", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	f.checker.status = health.StatusCritical
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("critical status = %d, want 503", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/healthz/detailed", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("detailed critical status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("algoease_")) {
		t.Error("metrics output missing algoease_ series")
	}
}
