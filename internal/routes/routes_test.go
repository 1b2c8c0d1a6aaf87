package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_back_end/internal/audit"
	"storefront_back_end/internal/auth"
	"storefront_back_end/internal/cache"
	"storefront_back_end/internal/cart"
	"storefront_back_end/internal/catalog"
	"storefront_back_end/internal/handlers"
	"storefront_back_end/internal/metrics"
	"storefront_back_end/internal/orders"
	"storefront_back_end/internal/store/memory"
)

type testServer struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, _ := test.NewNullLogger()
	st := memory.New()
	tokens := auth.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	authSvc := auth.NewService(st, tokens, cache.NewMemorySessions(), log)
	require.NoError(t, authSvc.EnsureAdmin(context.Background(), "admin", "adminpass"))

	m := metrics.New()
	events := cache.NewMemoryCartEvents()
	catalogSvc := catalog.NewService(st, nil, nil, log)
	orderSvc := orders.NewService(st, nil, m, orders.Options{}, log)
	cartSvc := cart.NewService(st, orderSvc, events, m, log)

	r := gin.New()
	RegisterRoutes(r, Deps{
		Tokens:     tokens,
		LoginGuard: cache.NewMemoryLoginGuard(),
		Audit:      audit.NewLogRecorder(log),
		Metrics:    m.Handler(),
		Auth:       handlers.NewAuthHandler(authSvc, m, false),
		Products:   handlers.NewProductHandler(catalogSvc, nil),
		Orders:     handlers.NewOrderHandler(orderSvc),
		Cart:       handlers.NewCartHandler(cartSvc),
		CartWS:     handlers.NewCartSocket(cartSvc, events, nil),
		Users:      handlers.NewUserHandler(authSvc),
		Health:     handlers.NewHealthHandler(map[string]handlers.Pinger{"store": st}),
	})
	return &testServer{router: r, store: st}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *testServer) login(t *testing.T, username, password string) (string, *http.Cookie) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		AccessToken string `json:"accessToken"`
	}
	decode(t, w, &res)
	require.NotEmpty(t, res.AccessToken)

	var refresh *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "jwt" {
			refresh = c
		}
	}
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/auth", refresh.Path)
	return res.AccessToken, refresh
}

func (s *testServer) register(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/register", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(t, w, &res)
	return res.User.ID
}

func (s *testServer) createProduct(t *testing.T, token, name string, price float64) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/products", token, gin.H{"name": name, "price": price, "imageUrl": "http://img/" + name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		Product struct {
			ID            string `json:"id"`
			ProductNumber int64  `json:"productNumber"`
		} `json:"product"`
	}
	decode(t, w, &res)
	return res.Product.ID
}

func TestCheckoutEndToEnd(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.login(t, "admin", "adminpass")
	x := s.createProduct(t, adminToken, "X", 10)
	y := s.createProduct(t, adminToken, "Y", 5)

	s.register(t, "alice", "secret1")
	token, _ := s.login(t, "alice", "secret1")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/cart", token, gin.H{"productId": x}).Code)
	w := s.do(t, http.MethodPost, "/cart", token, gin.H{"productId": y})
	require.Equal(t, http.StatusOK, w.Code)

	var view struct {
		Total float64 `json:"total"`
		Count int     `json:"count"`
	}
	decode(t, w, &view)
	assert.Equal(t, 15.0, view.Total)
	assert.Equal(t, 2, view.Count)

	w = s.do(t, http.MethodPost, "/cart/checkout", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		Order struct {
			ID         string        `json:"id"`
			TotalPrice float64       `json:"totalPrice"`
			Status     string        `json:"status"`
			Ticket     int64         `json:"ticket"`
			Products   []interface{} `json:"products"`
		} `json:"order"`
	}
	decode(t, w, &res)
	assert.Equal(t, 15.0, res.Order.TotalPrice)
	assert.Equal(t, "pending", res.Order.Status)
	assert.Equal(t, int64(100), res.Order.Ticket)
	assert.Len(t, res.Order.Products, 2)

	w = s.do(t, http.MethodGet, "/cart", token, nil)
	decode(t, w, &view)
	assert.Equal(t, 0, view.Count)

	w = s.do(t, http.MethodGet, "/orders/"+res.Order.ID+"/qrcode", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestCheckoutEmptyCart(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "secret1")
	token, _ := s.login(t, "alice", "secret1")

	w := s.do(t, http.MethodPost, "/cart/checkout", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	orders, _ := s.store.ListOrders(context.Background(), "")
	assert.Empty(t, orders)
}

func TestNonAdminCannotCreateProduct(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "secret1")
	token, _ := s.login(t, "alice", "secret1")

	w := s.do(t, http.MethodPost, "/products", token, gin.H{"name": "X", "price": 10, "imageUrl": "u"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	products, err := s.store.ListProducts(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, products)

	w = s.do(t, http.MethodPost, "/products", "", gin.H{"name": "X", "price": 10, "imageUrl": "u"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterDuplicate(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "secret1")

	w := s.do(t, http.MethodPost, "/auth/register", "", gin.H{"username": "ALICE", "password": "secret2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	var res struct {
		Message string `json:"message"`
	}
	decode(t, w, &res)
	assert.NotEmpty(t, res.Message)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "secret1")
	_, cookie := s.login(t, "alice", "secret1")

	w := s.do(t, http.MethodGet, "/auth/refresh", "", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/auth/logout", "", nil, cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/auth/refresh", "", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOrderVisibility(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.login(t, "admin", "adminpass")
	x := s.createProduct(t, adminToken, "X", 10)

	s.register(t, "alice", "secret1")
	bobID := s.register(t, "bob", "secret2")
	alice, _ := s.login(t, "alice", "secret1")
	bob, _ := s.login(t, "bob", "secret2")

	w := s.do(t, http.MethodPost, "/orders", alice, gin.H{"products": []gin.H{{"product": x, "quantity": 2}}, "user": bobID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/orders", alice, gin.H{"products": []gin.H{{"product": x, "quantity": 2}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	decode(t, w, &res)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/orders/"+res.Order.ID, bob, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/orders/"+res.Order.ID, alice, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/orders/"+res.Order.ID, adminToken, nil).Code)

	var list []interface{}
	decode(t, s.do(t, http.MethodGet, "/orders", bob, nil), &list)
	assert.Empty(t, list)
	w = s.do(t, http.MethodGet, "/orders", adminToken, nil)
	decode(t, w, &list)
	assert.Len(t, list, 1)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)
	decode(t, s.do(t, http.MethodGet, "/orders", alice, nil), &list)
	assert.Len(t, list, 1)
	assert.NotContains(t, s.do(t, http.MethodGet, "/orders", alice, nil).Body.String(), `"username"`)
	decode(t, s.do(t, http.MethodGet, "/orders?mine=true", adminToken, nil), &list)
	assert.Empty(t, list)

	w = s.do(t, http.MethodPatch, "/orders/status", alice, gin.H{"id": res.Order.ID, "status": "shipped"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodPatch, "/orders/status", adminToken, gin.H{"id": res.Order.ID, "status": "shipped"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(t, http.MethodPatch, "/orders/status", adminToken, gin.H{"id": res.Order.ID, "status": "processing"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnavailableProductHiddenFromPublic(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.login(t, "admin", "adminpass")
	id := s.createProduct(t, adminToken, "X", 10)

	w := s.do(t, http.MethodPatch, "/products", adminToken, gin.H{"id": id, "available": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/products/"+id, "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/products/"+id, adminToken, nil).Code)

	var list []interface{}
	decode(t, s.do(t, http.MethodGet, "/products/public", "", nil), &list)
	assert.Empty(t, list)
	decode(t, s.do(t, http.MethodGet, "/products", adminToken, nil), &list)
	assert.Len(t, list, 1)
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t)
	adminToken, _ := s.login(t, "admin", "adminpass")
	aliceID := s.register(t, "alice", "secret1")

	w := s.do(t, http.MethodPatch, "/users/"+aliceID+"/active", adminToken, gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/auth", "", gin.H{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPatch, "/users/"+aliceID+"/roles", adminToken, gin.H{"roles": []string{"Root"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func init() {
	logrus.SetLevel(logrus.PanicLevel)
}

func TestQueryTokenOnlyForCartSocket(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice", "secret1")
	alice, _ := s.login(t, "alice", "secret1")

	w := s.do(t, http.MethodGet, "/cart?access_token="+alice, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/orders?access_token="+alice, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Sans en-tête Upgrade la poignée de main échoue après l'authentification.
	w = s.do(t, http.MethodGet, "/cart/ws?access_token="+alice, "", nil)
	assert.NotEqual(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/cart/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
