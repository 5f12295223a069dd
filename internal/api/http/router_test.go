package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/product-catalog/internal/api/http"
	"github.com/spec-kit/product-catalog/internal/api/http/handlers"
	"github.com/spec-kit/product-catalog/internal/auth"
	"github.com/spec-kit/product-catalog/internal/domain"
	"github.com/spec-kit/product-catalog/internal/events"
	"github.com/spec-kit/product-catalog/internal/observability"
	"github.com/spec-kit/product-catalog/internal/repository"
	"github.com/spec-kit/product-catalog/internal/service"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	seq   int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	user.ID = fmt.Sprintf("user-%d", r.seq)
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *user
	return &cp, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

type memProductRepo struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	seq      int
}

func newMemProductRepo() *memProductRepo {
	return &memProductRepo{products: make(map[string]*domain.Product)}
}

func (r *memProductRepo) Create(_ context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	product.ID = fmt.Sprintf("product-%d", r.seq)
	cp := *product
	r.products[product.ID] = &cp
	return nil
}

func (r *memProductRepo) Update(_ context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *product
	r.products[product.ID] = &cp
	return nil
}

func (r *memProductRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *product
	return &cp, nil
}

func (r *memProductRepo) List(_ context.Context, _ repository.ProductFilter) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, product := range r.products {
		out = append(out, *product)
	}
	return out, nil
}

func (r *memProductRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.products, id)
	return nil
}

func (r *memProductRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.products)), nil
}

type testEnv struct {
	app      *fiber.App
	accounts *service.AccountsService
	metrics  *observability.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithProducts(t, newMemProductRepo(), 0)
}

func newTestEnvWithProducts(t *testing.T, products repository.ProductRepository, timeout time.Duration) *testEnv {
	t.Helper()

	users := newMemUserRepo()
	dispatcher := events.NewInMemoryDispatcher()

	accounts := service.NewAccountsServiceWithTokens(
		auth.NewTokenManager("test-secret", time.Hour),
		service.AccountsDependencies{
			UserRepo:   users,
			Throttle:   service.NewRedisLoginThrottle(nil, 10, time.Minute),
			Dispatcher: dispatcher,
		},
	)
	productService := service.NewProductService(products, dispatcher)
	authMiddleware := auth.NewAuthMiddleware(accounts.TokenManager(), users)

	app := fiber.New()
	metrics := observability.NewMetrics()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), metrics, timeout)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("test", "dev", nil, nil),
		Auth:           handlers.NewAuthHandler(accounts),
		Products:       handlers.NewProductsHandler(productService),
		AuthMiddleware: authMiddleware,
	})

	return &testEnv{app: app, accounts: accounts, metrics: metrics}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func (e *testEnv) registerAndLogin(t *testing.T, username string, role domain.Role) string {
	t.Helper()

	_, err := e.accounts.Register(context.Background(), username, "", "password-123", role)
	require.NoError(t, err)
	_, token, _, err := e.accounts.Login(context.Background(), username, "password-123", "127.0.0.1")
	require.NoError(t, err)
	return token
}

func TestProductWriteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	userToken := env.registerAndLogin(t, "alice", domain.RoleUser)
	adminToken := env.registerAndLogin(t, "bob", domain.RoleAdmin)

	payload := fiber.Map{"name": "Laptop", "price": 1299.00, "quantity": 2}

	resp, body := env.request(t, http.MethodPost, "/products/", userToken, payload)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "FORBIDDEN", errObj["code"])

	resp, body = env.request(t, http.MethodPost, "/products/", adminToken, payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["id"])
	assert.Equal(t, "Laptop", data["name"])
}

func TestProductReadRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/products/", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "UNAUTHORIZED", errObj["code"])

	userToken := env.registerAndLogin(t, "alice", domain.RoleUser)
	resp, _ = env.request(t, http.MethodGet, "/products/", userToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBadBearerToken(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/products/", nil)
	req.Header.Set("Authorization", "Token abcdef")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/products/", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProductCRUDFlow(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.registerAndLogin(t, "bob", domain.RoleAdmin)

	resp, body := env.request(t, http.MethodPost, "/products/", adminToken,
		fiber.Map{"name": "Monitor", "description": "27-inch", "price": 329.00, "quantity": 5})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["data"].(map[string]any)["id"].(string)

	resp, body = env.request(t, http.MethodGet, "/products/"+id, adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Monitor", data["name"])
	assert.Equal(t, 329.00, data["price"])

	resp, body = env.request(t, http.MethodPatch, "/products/"+id, adminToken,
		fiber.Map{"price": 299.00})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = body["data"].(map[string]any)
	assert.Equal(t, 299.00, data["price"])
	assert.Equal(t, "27-inch", data["description"])

	resp, _ = env.request(t, http.MethodDelete, "/products/"+id, adminToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.request(t, http.MethodGet, "/products/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.request(t, http.MethodDelete, "/products/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProductValidationError(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.registerAndLogin(t, "bob", domain.RoleAdmin)

	resp, body := env.request(t, http.MethodPost, "/products/", adminToken,
		fiber.Map{"name": "Laptop", "price": -1.00})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", errObj["code"])
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/auth/register", "",
		fiber.Map{"username": "carol", "password": "password-123"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "carol", data["username"])
	assert.Equal(t, "USER", data["role"])

	resp, body = env.request(t, http.MethodPost, "/auth/register", "",
		fiber.Map{"username": "carol", "password": "password-456"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "CONFLICT", errObj["code"])

	resp, _ = env.request(t, http.MethodPost, "/auth/register", "",
		fiber.Map{"username": "dave", "password": "short"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "alice", domain.RoleUser)

	resp, body := env.request(t, http.MethodPost, "/auth/login", "",
		fiber.Map{"username": "alice", "password": "password-123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	authData := data["auth"].(map[string]any)
	assert.NotEmpty(t, authData["token"])

	resp, _ = env.request(t, http.MethodPost, "/auth/login", "",
		fiber.Map{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice", domain.RoleUser)

	resp, body := env.request(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "alice", data["username"])

	resp, _ = env.request(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", body["status"])
}

// Mirrors the register/login/create scenario end to end.
func TestNonAdminCannotCreateAdminCan(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodPost, "/auth/register", "",
		fiber.Map{"username": "alice", "password": "password-pw1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := env.request(t, http.MethodPost, "/auth/login", "",
		fiber.Map{"username": "alice", "password": "password-pw1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	aliceToken := body["data"].(map[string]any)["auth"].(map[string]any)["token"].(string)

	resp, _ = env.request(t, http.MethodPost, "/products/", aliceToken,
		fiber.Map{"name": "Widget", "price": 1.00})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	bobToken := env.registerAndLogin(t, "bob", domain.RoleAdmin)
	resp, body = env.request(t, http.MethodPost, "/products/", bobToken,
		fiber.Map{"name": "Widget", "price": 1.00})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["data"].(map[string]any)["id"])
}

func TestRequestMetricsRecordErrorStatus(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.request(t, http.MethodGet, "/products/", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	requests, _ := env.metrics.Snapshot()
	assert.Equal(t, int64(1), requests["/products/|GET|401"])
	assert.NotContains(t, requests, "/products/|GET|200")
}

type deadlineRecordingRepo struct {
	*memProductRepo
	mu          sync.Mutex
	sawDeadline bool
}

func (r *deadlineRecordingRepo) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, error) {
	_, ok := ctx.Deadline()
	r.mu.Lock()
	r.sawDeadline = ok
	r.mu.Unlock()
	return r.memProductRepo.List(ctx, filter)
}

func TestRequestTimeoutReachesRepository(t *testing.T) {
	repo := &deadlineRecordingRepo{memProductRepo: newMemProductRepo()}
	env := newTestEnvWithProducts(t, repo, time.Second)

	token := env.registerAndLogin(t, "alice", domain.RoleUser)
	resp, _ := env.request(t, http.MethodGet, "/products/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.True(t, repo.sawDeadline)
}
