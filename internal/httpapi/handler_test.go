package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundscore/commerce_layer/internal/config"
	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
	"github.com/groundscore/commerce_layer/internal/pos"
	"github.com/groundscore/commerce_layer/internal/services/cart"
	paymentsvc "github.com/groundscore/commerce_layer/internal/services/payment"
	"github.com/groundscore/commerce_layer/internal/services/syncer"
	"github.com/groundscore/commerce_layer/internal/storage"
)

const handlerTestHash = "0x4e3a3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd"

type staticConfirmer struct {
	outcome paymentsvc.Outcome
}

func (s staticConfirmer) Confirm(context.Context, string) (paymentsvc.Outcome, error) {
	return s.outcome, nil
}

type fixture struct {
	router *gin.Engine
	store  *storage.Memory
	shop   shop.Shop
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemory()
	sh, err := store.UpsertShop(context.Background(), shop.Shop{
		Label: "Corner Roasters",
		Menu: map[string][]shop.Item{
			"Espresso": {
				{ID: "item-latte", Name: "Latte",
					Price: shop.Money{Amount: 550, Currency: "USD"}, Available: true},
			},
		},
		Source:        shop.SourceConfig{Type: shop.SourceSquare, ExternalID: "sq-1"},
		FundRecipient: "base:0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	})
	require.NoError(t, err)

	cartSvc := cart.New(store, store, staticConfirmer{outcome: paymentsvc.OutcomeConfirmed}, nil, nil)
	builder := paymentsvc.NewBuilder(config.ChainConfig{
		ChainID:      big.NewInt(8453),
		TokenAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		TokenName:    "USD Coin",
		TokenVersion: "2",
	}, nil)
	syncSvc := syncer.New(store, cartSvc, pos.NewRegistry(), nil)

	h := NewHandler(cartSvc, builder, syncSvc, store, store, opts, nil)
	return &fixture{router: h.Router(), store: store, shop: sh}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func addToCart(t *testing.T, f *fixture) order.Order {
	t.Helper()
	w := f.do(t, http.MethodPost, "/cart?userId=user-1", map[string]interface{}{
		"shopId":     f.shop.ID,
		"orderItems": []map[string]interface{}{{"itemId": "item-latte", "quantity": 2}},
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var o order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	return o
}

func TestCartAddAndGet(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})

	o := addToCart(t, f)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Len(t, o.Items, 1)

	w := f.do(t, http.MethodGet, "/cart?userId=user-1&shopId="+f.shop.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var active order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	assert.Equal(t, o.ID, active.ID)
}

func TestCartGetEmptyReturnsNull(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	w := f.do(t, http.MethodGet, "/cart?userId=user-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())
}

func TestCartRemoveAndDelete(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	o := addToCart(t, f)

	w := f.do(t, http.MethodPost, "/cart?userId=user-1", map[string]interface{}{
		"action":      "delete",
		"orderId":     o.ID,
		"orderItemId": o.Items[0].ID,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var after order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.Empty(t, after.Items)

	w = f.do(t, http.MethodDelete, "/cart?userId=user-1&shopId="+f.shop.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cleared order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.Equal(t, order.StatusCleared, cleared.Status)
}

func TestCartUnknownAction(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	w := f.do(t, http.MethodPost, "/cart?userId=user-1", map[string]interface{}{
		"action": "upsert",
		"shopId": f.shop.ID,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizationPayloadFlow(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	o := addToCart(t, f)

	w := f.do(t, http.MethodPost, "/orders/authorization-payload?userId=user-1", map[string]interface{}{
		"orderId":      o.ID,
		"payerAddress": "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		PrimaryType   string `json:"primaryType"`
		Authorization struct {
			Value string `json:"value"`
			To    string `json:"to"`
			Nonce string `json:"nonce"`
		} `json:"authorization"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "TransferWithAuthorization", resp.PrimaryType)
	assert.Equal(t, "1100", resp.Authorization.Value)
	assert.Equal(t, "0x036CbD53842c5426634e7929541eC2318f3dCF7e", resp.Authorization.To)
	assert.Len(t, resp.Authorization.Nonce, 66)

	// The order moved to awaiting-payment.
	stored, err := f.store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAwaitingPayment, stored.Status)
}

func TestPayOrder(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	o := addToCart(t, f)

	w := f.do(t, http.MethodPost, "/orders/pay?userId=user-1", map[string]interface{}{
		"orderId":         o.ID,
		"transactionHash": handlerTestHash,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &paid))
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, handlerTestHash, paid.TransactionHash)
}

func TestOrderStatusWithoutHash(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	o := addToCart(t, f)

	w := f.do(t, http.MethodPost, "/orders/status?userId=user-1", map[string]interface{}{
		"orderId": o.ID,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestForwardOrdersRequiresIDs(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	w := f.do(t, http.MethodPost, "/orders/sync-with-external-service?userId=user-1", map[string]interface{}{
		"orderIds": []string{},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShopsEndpoints(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})

	w := f.do(t, http.MethodGet, "/shops", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var shops []shop.Shop
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &shops))
	require.Len(t, shops, 1)

	w = f.do(t, http.MethodGet, "/shops/"+f.shop.ID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/shops/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncShopsReportsPerShopResults(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})

	// No adapter is registered for the shop's provider, so the run reports
	// a failure without erroring as a whole.
	w := f.do(t, http.MethodPost, "/shops/sync", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []syncer.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.False(t, resp.Results[0].Ok())
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	w := f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	f.do(t, http.MethodGet, "/healthz", nil, nil)
	w := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "commerce_layer_http_requests_total")
}

func TestErrorEnvelope(t *testing.T) {
	f := newFixture(t, Options{DevMode: true})
	w := f.do(t, http.MethodPost, "/cart?userId=user-1", map[string]interface{}{
		"shopId":     "missing-shop",
		"orderItems": []map[string]interface{}{{"itemId": "x", "quantity": 1}},
	}, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Message)
}

func signedToken(t *testing.T, secret, issuer, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthRequiredOutsideDevMode(t *testing.T) {
	f := newFixture(t, Options{JWTSecret: "sekret", JWTIssuer: "privy.io"})

	w := f.do(t, http.MethodGet, "/cart", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	header := http.Header{"Authorization": {"Bearer " + signedToken(t, "sekret", "privy.io", "user-9")}}
	w = f.do(t, http.MethodGet, "/cart", nil, header)
	assert.Equal(t, http.StatusOK, w.Code)

	// Wrong secret.
	header = http.Header{"Authorization": {"Bearer " + signedToken(t, "other", "privy.io", "user-9")}}
	w = f.do(t, http.MethodGet, "/cart", nil, header)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong issuer.
	header = http.Header{"Authorization": {"Bearer " + signedToken(t, "sekret", "elsewhere", "user-9")}}
	w = f.do(t, http.MethodGet, "/cart", nil, header)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenSubjectOverridesUserIDParam(t *testing.T) {
	f := newFixture(t, Options{JWTSecret: "sekret", JWTIssuer: "privy.io"})
	header := http.Header{"Authorization": {"Bearer " + signedToken(t, "sekret", "privy.io", "user-token")}}

	w := f.do(t, http.MethodPost, "/cart?userId=user-spoofed", map[string]interface{}{
		"userId":     "user-spoofed",
		"shopId":     f.shop.ID,
		"orderItems": []map[string]interface{}{{"itemId": "item-latte", "quantity": 1}},
	}, header)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var o order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, "user-token", o.UserID)
}
