package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/middlewares"
	"github.com/mmdatafocus/ledger_backend/models"
	"github.com/mmdatafocus/ledger_backend/storage"
	"github.com/mmdatafocus/ledger_backend/storage/memstore"
	"github.com/mmdatafocus/ledger_backend/workflow"
	"github.com/sirupsen/logrus"
)

var errBoom = errors.New("boom")

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) (*gin.Engine, *memstore.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	logger.SetOutput(io.Discard)

	store := memstore.New()
	engine := workflow.NewEngine(store, workflow.WithLogger(logger))

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware(), middlewares.SessionMiddleware(nil, true))
	v1 := r.Group("/api/v1", middlewares.RequireUser())
	RegisterRoutes(v1, engine)
	return r, store
}

func do(t *testing.T, r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middlewares.UserHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func createAccount(t *testing.T, r *gin.Engine, name, currency, initial string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/accounts", "user-1", map[string]any{
		"name": name, "type": "checking", "currency": currency, "initial_balance": initial,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create account: status %d body %s", w.Code, w.Body.String())
	}
	return decode(t, w)["id"].(string)
}

var txnDate = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestAccountTransactionFlow(t *testing.T) {
	r, _ := newRouter(t)
	id := createAccount(t, r, "Wallet", "usd", "100")

	w := do(t, r, http.MethodPost, "/api/v1/transactions", "user-1", map[string]any{
		"account_id": id, "amount": "30", "type": "expense", "category": "food", "date": txnDate,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add transaction: status %d body %s", w.Code, w.Body.String())
	}

	account := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts/"+id, "user-1", nil))
	if account["calculated_balance"] != "70" || account["currency"] != "USD" {
		t.Fatalf("unexpected account %v", account)
	}

	rows := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts/"+id+"/transactions", "user-1", nil))
	if list, _ := rows["transactions"].([]any); len(list) != 1 {
		t.Fatalf("expected one transaction row, got %v", rows)
	}

	w = do(t, r, http.MethodPost, "/api/v1/accounts/"+id+"/recompute", "user-1", nil)
	if body := decode(t, w); w.Code != http.StatusOK || body["calculated_balance"] != "70" {
		t.Fatalf("recompute: status %d body %v", w.Code, body)
	}

	totals := decode(t, do(t, r, http.MethodGet, "/api/v1/totals", "user-1", nil))
	if list, _ := totals["totals"].([]any); len(list) != 1 {
		t.Fatalf("expected one currency total, got %v", totals)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	r, _ := newRouter(t)
	id := createAccount(t, r, "Wallet", "USD", "10")

	w := do(t, r, http.MethodGet, "/api/v1/accounts/"+id, "user-2", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's account, got %d", w.Code)
	}
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	r, _ := newRouter(t)
	if w := do(t, r, http.MethodGet, "/api/v1/accounts", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	r, _ := newRouter(t)
	usd := createAccount(t, r, "Checking", "USD", "100")
	other := createAccount(t, r, "Savings", "USD", "0")

	w := do(t, r, http.MethodPost, "/api/v1/transactions", "user-1", map[string]any{
		"account_id": usd, "amount": "30", "type": "expense", "date": txnDate,
	})
	txn := decode(t, w)["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
		field  string
	}{
		{
			name:   "zero amount",
			method: http.MethodPost, path: "/api/v1/transactions",
			body:   map[string]any{"account_id": usd, "amount": "0", "type": "income", "date": txnDate},
			status: http.StatusBadRequest, kind: "ValidationError", field: "amount",
		},
		{
			name:   "unknown enum is a bind error",
			method: http.MethodPost, path: "/api/v1/transactions",
			body:   map[string]any{"account_id": usd, "amount": "5", "type": "refund", "date": txnDate},
			status: http.StatusBadRequest, kind: "ValidationError",
		},
		{
			name:   "unknown account",
			method: http.MethodGet, path: "/api/v1/accounts/missing",
			status: http.StatusNotFound, kind: "ReferenceError",
		},
		{
			name:   "amount is immutable",
			method: http.MethodPatch, path: "/api/v1/transactions/" + txn,
			body:   map[string]any{"amount": "31"},
			status: http.StatusConflict, kind: "ImmutableFieldError", field: "amount",
		},
		{
			name:   "currency transfer between same-currency accounts",
			method: http.MethodPost, path: "/api/v1/transfers/currency",
			body:   map[string]any{"from_account_id": usd, "to_account_id": other, "from_amount": "10", "exchange_rate": "1", "date": txnDate},
			status: http.StatusBadRequest, kind: "WrongTransferType", field: "to_account_id",
		},
		{
			name:   "amount beyond stored scale",
			method: http.MethodPost, path: "/api/v1/transactions",
			body:   map[string]any{"account_id": usd, "amount": "0.00004", "type": "income", "date": txnDate},
			status: http.StatusBadRequest, kind: "ValidationError", field: "amount",
		},
		{
			name:   "malformed transfer id",
			method: http.MethodDelete, path: "/api/v1/transfers/" + txn,
			status: http.StatusBadRequest, kind: "ValidationError", field: "transfer_id",
		},
		{
			name:   "unknown transfer id",
			method: http.MethodDelete, path: "/api/v1/transfers/TXN-0000-0000-0000",
			status: http.StatusNotFound, kind: "ReferenceError",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, tc.method, tc.path, "user-1", tc.body)
			if w.Code != tc.status {
				t.Fatalf("expected %d, got %d body %s", tc.status, w.Code, w.Body.String())
			}
			body := decode(t, w)
			if body["kind"] != tc.kind {
				t.Fatalf("expected kind %s, got %v", tc.kind, body["kind"])
			}
			if tc.field != "" && body["field"] != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, body["field"])
			}
		})
	}
}

func TestWrongTransferTypeSuggestsAlternative(t *testing.T) {
	r, _ := newRouter(t)
	usd := createAccount(t, r, "Checking", "USD", "100")
	eur := createAccount(t, r, "Euro", "EUR", "0")

	w := do(t, r, http.MethodPost, "/api/v1/transfers/in-between", "user-1", map[string]any{
		"from_account_id": usd, "to_account_id": eur, "amount": "10", "date": txnDate,
	})
	body := decode(t, w)
	if w.Code != http.StatusBadRequest || body["suggested"] != "currency" {
		t.Fatalf("expected a currency suggestion, got %d %v", w.Code, body)
	}
}

func TestPersistenceFailureIsBadGateway(t *testing.T) {
	r, store := newRouter(t)
	id := createAccount(t, r, "Wallet", "USD", "10")
	store.FailAfter(storage.OpGetAccount, 0, errBoom)

	w := do(t, r, http.MethodGet, "/api/v1/accounts/"+id, "user-1", nil)
	if body := decode(t, w); w.Code != http.StatusBadGateway || body["kind"] != "PersistenceError" {
		t.Fatalf("expected 502 PersistenceError, got %d %v", w.Code, body)
	}
}

func TestTransferListAndDelete(t *testing.T) {
	r, _ := newRouter(t)
	from := createAccount(t, r, "Checking", "USD", "100")
	to := createAccount(t, r, "Savings", "USD", "0")

	w := do(t, r, http.MethodPost, "/api/v1/transfers/in-between", "user-1", map[string]any{
		"from_account_id": from, "to_account_id": to, "amount": "40", "date": txnDate,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("transfer: status %d body %s", w.Code, w.Body.String())
	}
	transferId := decode(t, w)["transfer_id"].(string)

	list := decode(t, do(t, r, http.MethodGet, "/api/v1/transfers", "user-1", nil))
	transfers, _ := list["transfers"].([]any)
	warnings, ok := list["warnings"].([]any)
	if len(transfers) != 1 || !ok || len(warnings) != 0 {
		t.Fatalf("unexpected transfer list %v", list)
	}

	if w := do(t, r, http.MethodDelete, "/api/v1/transfers/"+transferId, "user-1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete transfer: status %d body %s", w.Code, w.Body.String())
	}
	for id, want := range map[string]string{from: "100", to: "0"} {
		account := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts/"+id, "user-1", nil))
		if account["calculated_balance"] != want {
			t.Fatalf("account %s: expected %s, got %v", id, want, account["calculated_balance"])
		}
	}
}

func TestPurchaseLifecycle(t *testing.T) {
	r, _ := newRouter(t)
	account := createAccount(t, r, "Checking", "USD", "100")

	w := do(t, r, http.MethodPost, "/api/v1/purchases", "user-1", map[string]any{
		"item_name": "Desk lamp", "currency": "USD", "status": "planned",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("plan purchase: status %d body %s", w.Code, w.Body.String())
	}
	purchaseId := decode(t, w)["id"].(string)

	w = do(t, r, http.MethodPost, "/api/v1/purchases/"+purchaseId+"/purchase", "user-1", map[string]any{
		"account_id": account, "price": "USD 1,000.005",
	})
	if body := decode(t, w); w.Code != http.StatusBadRequest || body["field"] != "price" {
		t.Fatalf("price beyond scale: status %d body %v", w.Code, body)
	}
	w = do(t, r, http.MethodPost, "/api/v1/purchases/"+purchaseId+"/purchase", "user-1", map[string]any{
		"account_id": account, "price": "garbage",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unparseable price: status %d body %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/api/v1/purchases/"+purchaseId+"/purchase", "user-1", map[string]any{
		"account_id": account, "price": "USD 25.00",
	})
	if body := decode(t, w); w.Code != http.StatusOK || body["status"] != "purchased" || body["transaction_id"] == nil {
		t.Fatalf("transition: status %d body %v", w.Code, body)
	}
	if got := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts/"+account, "user-1", nil))["calculated_balance"]; got != "75" {
		t.Fatalf("expected 75 after purchase, got %v", got)
	}

	if w := do(t, r, http.MethodDelete, "/api/v1/purchases/"+purchaseId, "user-1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete purchase: status %d", w.Code)
	}
	if got := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts/"+account, "user-1", nil))["calculated_balance"]; got != "100" {
		t.Fatalf("expected 100 after delete, got %v", got)
	}
}

func TestDpsRoutes(t *testing.T) {
	r, _ := newRouter(t)
	main := createAccount(t, r, "Checking", "USD", "100")

	w := do(t, r, http.MethodPost, "/api/v1/accounts/"+main+"/dps", "user-1", map[string]any{
		"dps_type": "monthly", "dps_amount_type": "fixed", "dps_fixed_amount": "10",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("enable dps: status %d body %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/api/v1/transfers/dps", "user-1", map[string]any{
		"main_account_id": main, "amount": "10", "date": txnDate,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("dps transfer: status %d body %s", w.Code, w.Body.String())
	}

	visible := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts", "user-1", nil))
	all := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts?all=true", "user-1", nil))
	if v, a := len(visible["accounts"].([]any)), len(all["accounts"].([]any)); v != 1 || a != 2 {
		t.Fatalf("expected 1 visible and 2 total accounts, got %d and %d", v, a)
	}

	w = do(t, r, http.MethodPost, "/api/v1/accounts/"+main+"/dps/delete", "user-1", map[string]any{"destination": "main"})
	if body := decode(t, w); w.Code != http.StatusOK || body["amount"] != "10" {
		t.Fatalf("delete dps: status %d body %v", w.Code, body)
	}
	if got := decode(t, do(t, r, http.MethodGet, "/api/v1/accounts/"+main, "user-1", nil))["calculated_balance"]; got != "100" {
		t.Fatalf("expected the savings to return to main, got %v", got)
	}
}

func TestLendBorrowAndReconciliation(t *testing.T) {
	r, _ := newRouter(t)
	w := do(t, r, http.MethodPost, "/api/v1/lend-borrows", "user-1", map[string]any{
		"person_name": "Sam", "type": "lend", "amount": "50", "currency": "USD",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create lend: status %d body %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["id"].(string)

	w = do(t, r, http.MethodPost, fmt.Sprintf("/api/v1/lend-borrows/%s/settle", id), "user-1", nil)
	if body := decode(t, w); w.Code != http.StatusOK || body["status"] != "settled" {
		t.Fatalf("settle: status %d body %v", w.Code, body)
	}

	createAccount(t, r, "Wallet", "USD", "5")
	w = do(t, r, http.MethodPost, "/api/v1/reconciliation/run", "user-1", nil)
	if body := decode(t, w); w.Code != http.StatusOK || body["clean"] != true {
		t.Fatalf("reconciliation: status %d body %v", w.Code, body)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&models.WrongTransferTypeError{Requested: models.TransferKindCurrency, Suggested: models.TransferKindInBetween}, http.StatusBadRequest},
		{models.NewValidationError("name", "is required"), http.StatusBadRequest},
		{&models.ImmutableFieldError{Entity: "transaction", Field: "amount"}, http.StatusConflict},
		{&models.ReferenceError{Entity: "account", Id: "a"}, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", &models.PersistenceError{Op: "x", Err: errBoom}), http.StatusBadGateway},
		{&models.InvariantViolation{Check: models.CheckIncompleteStep}, http.StatusConflict},
		{errBoom, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if status, _ := statusOf(tc.err); status != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, status)
		}
	}
}
