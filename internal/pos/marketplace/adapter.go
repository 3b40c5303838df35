// Package marketplace adapts a marketplace-checkout POS (storefronts keyed
// by merchant id, loosely versioned JSON) into the provider-neutral
// capability set. Responses are extracted with gjson because the provider
// adds and moves fields between storefront versions.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
	"github.com/groundscore/commerce_layer/internal/pos"
)

// Adapter talks to the marketplace storefront API with an API key.
type Adapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ pos.Adapter = (*Adapter)(nil)

func New(baseURL, apiKey string) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

func (a *Adapter) Provider() shop.SourceType { return shop.SourceMarketplace }

func (a *Adapter) FetchStore(ctx context.Context, cfg shop.SourceConfig) (pos.StoreRecord, error) {
	body, err := a.get(ctx, fmt.Sprintf("/storefronts/%s", cfg.ExternalID))
	if err != nil {
		return pos.StoreRecord{}, err
	}
	root := gjson.ParseBytes(body)
	currency := root.Get("storefront.currency").String()
	if currency == "" {
		currency = "USD"
	}
	return pos.StoreRecord{
		ExternalID: root.Get("storefront.id").String(),
		Name:       root.Get("storefront.display_name").String(),
		Logo:       root.Get("storefront.branding.logo_url").String(),
		Background: root.Get("storefront.branding.hero_url").String(),
		Currency:   currency,
	}, nil
}

func (a *Adapter) FetchLocationDetails(ctx context.Context, cfg shop.SourceConfig) (pos.LocationDetails, error) {
	body, err := a.get(ctx, fmt.Sprintf("/storefronts/%s", cfg.ExternalID))
	if err != nil {
		return pos.LocationDetails{}, err
	}
	root := gjson.ParseBytes(body)
	return pos.LocationDetails{
		Label:     root.Get("storefront.address.formatted").String(),
		Latitude:  root.Get("storefront.address.lat").Float(),
		Longitude: root.Get("storefront.address.lng").Float(),
	}, nil
}

func (a *Adapter) FetchProducts(ctx context.Context, cfg shop.SourceConfig) ([]pos.ProductRecord, error) {
	body, err := a.get(ctx, fmt.Sprintf("/storefronts/%s/products", cfg.ExternalID))
	if err != nil {
		return nil, err
	}

	var products []pos.ProductRecord
	gjson.GetBytes(body, "products").ForEach(func(_, p gjson.Result) bool {
		record := pos.ProductRecord{
			ExternalID:  p.Get("id").String(),
			Name:        p.Get("name").String(),
			Description: p.Get("description").String(),
			Image:       p.Get("image_url").String(),
			PriceAmount: p.Get("price.amount_minor").Int(),
			Currency:    firstNonEmpty(p.Get("price.currency").String(), "USD"),
			Category:    firstNonEmpty(p.Get("category").String(), "Other"),
			Available:   !p.Get("sold_out").Bool(),
		}
		p.Get("options").ForEach(func(_, opt gjson.Result) bool {
			record.Mods = append(record.Mods, pos.ModRecord{
				ExternalID:  opt.Get("id").String(),
				Name:        opt.Get("name").String(),
				PriceAmount: opt.Get("price.amount_minor").Int(),
				Currency:    firstNonEmpty(opt.Get("price.currency").String(), record.Currency),
			})
			return true
		})
		products = append(products, record)
		return true
	})
	return products, nil
}

// CreateOrder forwards a paid order to the marketplace checkout flow. The
// provider dedupes on external_ref.
func (a *Adapter) CreateOrder(ctx context.Context, cfg shop.SourceConfig, o order.Order) (string, error) {
	type payloadLine struct {
		ProductID string `json:"product_id"`
		Name      string `json:"name"`
		Quantity  int    `json:"quantity"`
		UnitMinor int64  `json:"unit_minor"`
	}
	payload := struct {
		StorefrontID string        `json:"storefront_id"`
		ExternalRef  string        `json:"external_ref"`
		Lines        []payloadLine `json:"lines"`
	}{
		StorefrontID: cfg.ExternalID,
		ExternalRef:  o.ID,
	}
	for _, li := range o.Items {
		payload.Lines = append(payload.Lines, payloadLine{
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitMinor: li.Price.Amount,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := a.post(ctx, "/orders", body)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(resp, "order.id").String()
	if id == "" {
		return "", apperr.ExternalService(nil, "marketplace order response missing id")
	}
	return id, nil
}

func (a *Adapter) get(ctx context.Context, path string) ([]byte, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

func (a *Adapter) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return a.do(ctx, http.MethodPost, path, body)
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Api-Key", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ExternalService(err, "marketplace request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.ExternalService(err, "marketplace response read failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.ExternalService(fmt.Errorf("status %d", resp.StatusCode), "marketplace returned %d for %s", resp.StatusCode, path)
	}
	return payload, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
