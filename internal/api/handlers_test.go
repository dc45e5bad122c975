package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/metrics"
	"github.com/xtrntr/marketplace/internal/models"
)

type testUser struct {
	account models.AccountID
	token   string
}

type fixture struct {
	router *chi.Mux
	engine *marketplace.Engine
	wallet *marketplace.MemoryWallet
	auth   *auth.AuthService
	hub    *Hub
	owner  testUser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authService := auth.NewAuthService(auth.NewMemoryUserStore(), "test-secret-0123456789", time.Hour)
	f := &fixture{auth: authService, wallet: marketplace.NewMemoryWallet()}
	f.owner = f.user(t, "owner")

	m := metrics.New("test")
	var err error
	f.engine, err = marketplace.NewEngine(marketplace.Config{
		Owner:          f.owner.account,
		CommissionRate: marketplace.DefaultCommissionRate,
	}, f.wallet, marketplace.WithEmitter(m))
	require.NoError(t, err)
	m.TrackLedger("test", f.engine)

	f.hub = NewHub(f.engine.Stats, nil, nil)
	f.router = NewRouter(NewHandler(f.engine, authService, nil), RouterOptions{Metrics: m, Hub: f.hub})
	return f
}

func (f *fixture) user(t *testing.T, username string) testUser {
	t.Helper()
	ctx := context.Background()
	u, err := f.auth.Register(ctx, username, "password123")
	require.NoError(t, err)
	token, err := f.auth.Login(ctx, username, "password123")
	require.NoError(t, err)
	return testUser{account: u.Account, token: token}
}

func (f *fixture) do(t *testing.T, method, path string, as *testUser, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+as.token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

// shop registers seller as "Store A" with one product at price 100, stock 5.
func (f *fixture) shop(t *testing.T, seller testUser) models.Product {
	t.Helper()
	w := f.do(t, "POST", "/sellers", &seller, map[string]string{"name": "Store A"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(t, "POST", "/products", &seller, map[string]interface{}{
		"name":     "Lamp",
		"image":    "ipfs://lamp",
		"price":    100,
		"stock":    5,
		"category": models.CategoryHome,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p models.Product
	decodeBody(t, w, &p)
	return p
}

func TestHandler_Register(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name: "Success",
			requestBody: map[string]interface{}{
				"username": "testuser",
				"password": "testpass",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Missing Password",
			requestBody: map[string]interface{}{
				"username": "testuser",
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Username and password required",
		},
		{
			name: "Duplicate",
			requestBody: map[string]interface{}{
				"username": "owner",
				"password": "testpass",
			},
			expectedStatus: http.StatusConflict,
			expectedError:  "Username already taken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, "POST", "/auth/register", nil, tt.requestBody)
			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			decodeBody(t, w, &response)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, response["error"])
				return
			}
			assert.Equal(t, "testuser", response["username"])
			assert.NotEmpty(t, response["account"])
		})
	}
}

func TestHandler_Login(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/auth/login", nil, map[string]string{"username": "owner", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	decodeBody(t, w, &response)
	account, err := f.auth.AccountFromToken(response["token"])
	require.NoError(t, err)
	assert.Equal(t, f.owner.account, account)

	w = f.do(t, "POST", "/auth/login", nil, map[string]string{"username": "owner", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_AuthRequired(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, "POST", "/sellers", nil, map[string]string{"name": "Store"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad := testUser{token: "not-a-token"}
	w = f.do(t, "POST", "/sellers", &bad, map[string]string{"name": "Store"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_Scenario(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p := f.shop(t, alice)

	w := f.do(t, "GET", "/products", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.Product
	decodeBody(t, w, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, alice.account, listed[0].Seller)

	w = f.do(t, "POST", "/orders", &bob, map[string]uint64{"product_id": p.ID, "quantity": 2, "payment": 200})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	decodeBody(t, w, &order)
	assert.Equal(t, uint64(4), order.Fee)
	assert.Equal(t, uint64(196), order.SellerAmount)
	assert.Equal(t, models.OrderPending, order.Status)

	path := fmt.Sprintf("/orders/%d", order.ID)
	w = f.do(t, "POST", path+"/confirm", &bob, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = f.do(t, "POST", path+"/ship", &bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, "POST", path+"/ship", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, "POST", path+"/confirm", &bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &order)
	assert.Equal(t, models.OrderCompleted, order.Status)

	w = f.do(t, "GET", "/sellers/"+string(alice.account), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var seller models.Seller
	decodeBody(t, w, &seller)
	assert.Equal(t, uint64(196), seller.PendingWithdrawal)
	assert.Equal(t, uint64(196), seller.TotalEarnings)

	w = f.do(t, "POST", "/sellers/withdraw", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"amount":196}`, w.Body.String())
	assert.Equal(t, uint64(196), f.wallet.Balance(alice.account))

	w = f.do(t, "POST", "/sellers/withdraw", &alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, "POST", fmt.Sprintf("/products/%d/reviews", p.ID), &bob, map[string]interface{}{"rating": 4, "comment": "good"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(t, "GET", fmt.Sprintf("/products/%d", p.ID), nil, nil)
	var product models.Product
	decodeBody(t, w, &product)
	assert.Equal(t, uint64(400), product.Rating)
	assert.Equal(t, uint64(3), product.Stock)

	w = f.do(t, "POST", "/platform/withdraw", &alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, "POST", "/platform/withdraw", &f.owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"amount":4}`, w.Body.String())

	w = f.do(t, "GET", "/platform/audit", &f.owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var audit struct {
		Report   marketplace.EscrowReport `json:"report"`
		Balanced bool                     `json:"balanced"`
	}
	decodeBody(t, w, &audit)
	assert.True(t, audit.Balanced)
	assert.Equal(t, uint64(200), audit.Report.Received)
	assert.Equal(t, uint64(200), audit.Report.Withdrawn)

	w = f.do(t, "GET", "/stats", nil, nil)
	var stats models.PlatformStats
	decodeBody(t, w, &stats)
	assert.Equal(t, models.PlatformStats{TotalProducts: 1, TotalOrders: 1, TotalSellers: 1, CommissionRate: 2}, stats)
}

func TestHandler_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p := f.shop(t, alice)

	tests := []struct {
		name           string
		method         string
		path           string
		as             *testUser
		body           interface{}
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "DuplicateSeller",
			method:         "POST",
			path:           "/sellers",
			as:             &alice,
			body:           map[string]string{"name": "Again"},
			expectedStatus: http.StatusConflict,
			expectedCode:   "AlreadyRegistered",
		},
		{
			name:           "NotSeller",
			method:         "POST",
			path:           "/products",
			as:             &bob,
			body:           map[string]interface{}{"name": "X", "price": 1, "stock": 1},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "NotRegisteredSeller",
		},
		{
			name:           "ZeroPrice",
			method:         "POST",
			path:           "/products",
			as:             &alice,
			body:           map[string]interface{}{"name": "X", "price": 0, "stock": 1},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "InvalidPrice",
		},
		{
			name:           "WrongPayment",
			method:         "POST",
			path:           "/orders",
			as:             &bob,
			body:           map[string]uint64{"product_id": p.ID, "quantity": 1, "payment": 99},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "IncorrectPayment",
		},
		{
			name:           "OwnProduct",
			method:         "POST",
			path:           "/orders",
			as:             &alice,
			body:           map[string]uint64{"product_id": p.ID, "quantity": 1, "payment": 100},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "SellerCannotBuyOwnProduct",
		},
		{
			name:           "TooMany",
			method:         "POST",
			path:           "/orders",
			as:             &bob,
			body:           map[string]uint64{"product_id": p.ID, "quantity": 6, "payment": 600},
			expectedStatus: http.StatusConflict,
			expectedCode:   "InsufficientStock",
		},
		{
			name:           "ReviewWithoutPurchase",
			method:         "POST",
			path:           fmt.Sprintf("/products/%d/reviews", p.ID),
			as:             &bob,
			body:           map[string]interface{}{"rating": 5},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "PurchaseRequired",
		},
		{
			name:           "UnknownProduct",
			method:         "GET",
			path:           "/products/99",
			expectedStatus: http.StatusNotFound,
			expectedCode:   "ProductNotFound",
		},
		{
			name:           "UnknownSeller",
			method:         "GET",
			path:           "/sellers/nobody",
			expectedStatus: http.StatusNotFound,
			expectedCode:   "SellerNotFound",
		},
		{
			name:           "HiddenOrder",
			method:         "GET",
			path:           "/orders/1",
			as:             &bob,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "OrderNotFound",
		},
		{
			name:           "RateTooHigh",
			method:         "PUT",
			path:           "/platform/commission",
			as:             &f.owner,
			body:           map[string]int{"rate": 11},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "RateTooHigh",
		},
		{
			name:           "AuditNotOwner",
			method:         "GET",
			path:           "/platform/audit",
			as:             &alice,
			expectedStatus: http.StatusForbidden,
			expectedCode:   "NotOwner",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.as, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			var response map[string]string
			decodeBody(t, w, &response)
			assert.Equal(t, tt.expectedCode, response["code"])
			assert.NotEmpty(t, response["error"])
		})
	}

	assert.NoError(t, f.engine.CheckSolvency())
}

func TestHandler_BadInput(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	w := f.do(t, "GET", "/products/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest("POST", "/orders", strings.NewReader(`{"product_id": -1}`))
	req.Header.Set("Authorization", "Bearer "+alice.token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_SellerViewsAndToggle(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p := f.shop(t, alice)

	w := f.do(t, "PUT", fmt.Sprintf("/products/%d", p.ID), &alice, map[string]interface{}{
		"name": "Desk Lamp", "image": "ipfs://lamp2", "price": 150, "stock": 0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Product
	decodeBody(t, w, &updated)
	assert.Equal(t, "Desk Lamp", updated.Name)
	assert.Equal(t, models.CategoryHome, updated.Category)

	w = f.do(t, "POST", fmt.Sprintf("/products/%d/toggle", p.ID), &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active":false}`, w.Body.String())

	w = f.do(t, "GET", "/products", nil, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(t, "GET", "/sellers/me/products", &alice, nil)
	var mine []models.Product
	decodeBody(t, w, &mine)
	assert.Len(t, mine, 1)

	w = f.do(t, "GET", fmt.Sprintf("/products/%d/purchased", p.ID), &bob, nil)
	assert.JSONEq(t, `{"purchased":false}`, w.Body.String())

	w = f.do(t, "PUT", "/platform/sellers/"+string(alice.account)+"/active", &f.owner, map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, w.Code)
	var seller models.Seller
	decodeBody(t, w, &seller)
	assert.False(t, seller.Active)
}

func TestHandler_TransferFailure(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p := f.shop(t, alice)

	w := f.do(t, "POST", "/orders", &bob, map[string]uint64{"product_id": p.ID, "quantity": 1, "payment": 100})
	require.Equal(t, http.StatusCreated, w.Code)
	f.do(t, "POST", "/orders/1/ship", &alice, nil)
	f.do(t, "POST", "/orders/1/confirm", &bob, nil)

	f.wallet.FailNext(errors.New("bank offline"))
	w = f.do(t, "POST", "/sellers/withdraw", &alice, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	s, _ := f.engine.Seller(alice.account)
	assert.Equal(t, uint64(98), s.PendingWithdrawal)
}

func TestHandler_Metrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, "GET", "/products", nil, nil)

	w := f.do(t, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",route="/products",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "test_escrow_balanced 1")
}

func TestRouter_CORSCredentials(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name              string
		allowed           []string
		origin            string
		expectOrigin      string
		expectCredentials string
	}{
		{name: "DefaultWildcard", origin: "https://evil.example", expectOrigin: "*"},
		{name: "ExplicitWildcard", allowed: []string{"*"}, origin: "https://evil.example", expectOrigin: "*"},
		{name: "ListedOrigin", allowed: []string{"https://shop.example"}, origin: "https://shop.example",
			expectOrigin: "https://shop.example", expectCredentials: "true"},
		{name: "UnlistedOrigin", allowed: []string{"https://shop.example"}, origin: "https://evil.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewHandler(f.engine, f.auth, nil), RouterOptions{AllowedOrigins: tt.allowed})
			req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", "Authorization")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.expectCredentials, w.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestHub_Broadcast(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var engine *marketplace.Engine
	hub := NewHub(func() models.PlatformStats { return engine.Stats() }, []string{"*"}, nil)
	engine, err := marketplace.NewEngine(marketplace.Config{Owner: f.owner.account}, f.wallet, marketplace.WithEmitter(hub))
	require.NoError(t, err)
	go hub.Run(ctx, time.Hour)

	srv := httptest.NewServer(NewRouter(NewHandler(engine, f.auth, nil), RouterOptions{Hub: hub}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "stats", msg.Type)
	require.NotNil(t, msg.Stats)

	_, err = engine.RegisterSeller(context.Background(), "seller-1", "Store")
	require.NoError(t, err)

	var event Message
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "event", event.Type)
	require.NotNil(t, event.Event)
	assert.Equal(t, models.EventSellerRegistered, event.Event.Kind)
	assert.Equal(t, models.AccountID("seller-1"), event.Event.Caller)
	assert.Equal(t, 1, hub.Clients())
}
