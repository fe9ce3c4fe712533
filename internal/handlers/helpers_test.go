package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruralpay/microbank/internal/middleware"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

type testServer struct {
	resolver *MockResolver
	poster   *MockPoster
	fd       *MockFixedDeposits
	savings  *MockSavingsAccruals
	reports  *MockReporter
	handler  http.Handler
	auth     *middleware.Authenticator
}

var fixedNow = time.Date(2024, time.April, 10, 9, 0, 0, 0, time.UTC)

func newTestServer() *testServer {
	ts := &testServer{
		resolver: &MockResolver{},
		poster:   &MockPoster{},
		fd:       &MockFixedDeposits{},
		savings:  &MockSavingsAccruals{},
		reports:  &MockReporter{},
		auth:     middleware.NewAuthenticator(testSecret),
	}

	accruals := NewAccrualHandler(ts.savings, ts.fd)
	accruals.now = func() time.Time { return fixedNow }

	rt := &Router{
		Auth:          ts.auth,
		Transactions:  NewTransactionHandler(ts.resolver, ts.poster),
		FixedDeposits: NewFixedDepositHandler(ts.resolver, ts.fd),
		Accruals:      accruals,
		Reports:       NewReportHandler(ts.reports),
	}
	ts.handler = rt.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, caller middleware.Principal) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if caller.UserID != 0 {
		token, err := ts.auth.Sign(caller, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

var (
	teller  = middleware.Principal{UserID: 11, Role: "teller", BranchID: 1}
	manager = middleware.Principal{UserID: 12, Role: "manager", BranchID: 4}
	admin   = middleware.Principal{UserID: 13, Role: "admin"}
)
var noCaller = middleware.Principal{}
