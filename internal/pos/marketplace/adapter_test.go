package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

func sourceConfig() shop.SourceConfig {
	return shop.SourceConfig{Type: shop.SourceMarketplace, ExternalID: "store-7"}
}

func TestFetchStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storefronts/store-7", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`{
			"storefront": {
				"id": "store-7",
				"display_name": "Bean Supply",
				"currency": "EUR",
				"branding": {"logo_url": "https://img/l.png", "hero_url": "https://img/h.png"},
				"address": {"formatted": "Kastanienallee 1, Berlin", "lat": 52.5, "lng": 13.4}
			}
		}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "key-1")
	record, err := a.FetchStore(context.Background(), sourceConfig())
	require.NoError(t, err)
	assert.Equal(t, "store-7", record.ExternalID)
	assert.Equal(t, "Bean Supply", record.Name)
	assert.Equal(t, "EUR", record.Currency)

	details, err := a.FetchLocationDetails(context.Background(), sourceConfig())
	require.NoError(t, err)
	assert.Equal(t, "Kastanienallee 1, Berlin", details.Label)
	assert.Equal(t, 52.5, details.Latitude)
	assert.Equal(t, 13.4, details.Longitude)
}

func TestFetchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storefronts/store-7/products", r.URL.Path)
		w.Write([]byte(`{
			"products": [
				{
					"id": "p-1",
					"name": "Cold Brew",
					"price": {"amount_minor": 425, "currency": "USD"},
					"category": "Coffee",
					"sold_out": false,
					"options": [
						{"id": "opt-1", "name": "Large", "price": {"amount_minor": 100}}
					]
				},
				{
					"id": "p-2",
					"name": "Seasonal Blend",
					"price": {"amount_minor": 1600},
					"sold_out": true
				}
			]
		}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "key-1")
	products, err := a.FetchProducts(context.Background(), sourceConfig())
	require.NoError(t, err)
	require.Len(t, products, 2)

	brew := products[0]
	assert.Equal(t, int64(425), brew.PriceAmount)
	assert.Equal(t, "Coffee", brew.Category)
	assert.True(t, brew.Available)
	require.Len(t, brew.Mods, 1)
	// Option currency falls back to the product's.
	assert.Equal(t, "USD", brew.Mods[0].Currency)

	blend := products[1]
	assert.False(t, blend.Available)
	assert.Equal(t, "Other", blend.Category)
	assert.Equal(t, "USD", blend.Currency)
}

func TestCreateOrder(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"order": {"id": "mk-order-3"}}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "key-1")
	id, err := a.CreateOrder(context.Background(), sourceConfig(), order.Order{
		ID: "ord-9",
		Items: []order.LineItem{
			{Name: "Cold Brew", Quantity: 1, Price: shop.Money{Amount: 425, Currency: "USD"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "mk-order-3", id)
	assert.Equal(t, "ord-9", got["external_ref"])
	assert.Equal(t, "store-7", got["storefront_id"])
}

func TestCreateOrderMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order": {}}`))
	}))
	defer srv.Close()

	a := New(srv.URL, "key-1")
	_, err := a.CreateOrder(context.Background(), sourceConfig(), order.Order{ID: "ord-9"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeExternalService, apperr.CodeOf(err))
}

func TestNon2xxIsExternalServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := New(srv.URL, "key-1")
	_, err := a.FetchProducts(context.Background(), sourceConfig())
	require.Error(t, err)
	assert.Equal(t, apperr.CodeExternalService, apperr.CodeOf(err))
}
