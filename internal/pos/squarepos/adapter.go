// Package squarepos adapts a Square-style OAuth-token POS into the
// provider-neutral capability set.
package squarepos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
	"github.com/groundscore/commerce_layer/internal/pos"
)

// Adapter talks to the Square-style connect API with a merchant OAuth
// access token.
type Adapter struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

var _ pos.Adapter = (*Adapter)(nil)

// New creates the adapter. The limiter keeps catalog syncs inside the
// provider's rate budget.
func New(baseURL, accessToken string) *Adapter {
	return &Adapter{
		baseURL:     baseURL,
		accessToken: accessToken,
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
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

func (a *Adapter) Provider() shop.SourceType { return shop.SourceSquare }

type locationResponse struct {
	Location struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		LogoURL       string `json:"logo_url"`
		PosBackground string `json:"pos_background_url"`
		Currency      string `json:"currency"`
		Address       struct {
			AddressLine string `json:"address_line_1"`
			Locality    string `json:"locality"`
		} `json:"address"`
		Coordinates struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func (a *Adapter) FetchStore(ctx context.Context, cfg shop.SourceConfig) (pos.StoreRecord, error) {
	var resp locationResponse
	if err := a.get(ctx, "/locations/"+cfg.LocationID, &resp); err != nil {
		return pos.StoreRecord{}, err
	}
	currency := resp.Location.Currency
	if currency == "" {
		currency = "USD"
	}
	return pos.StoreRecord{
		ExternalID: resp.Location.ID,
		Name:       resp.Location.Name,
		Logo:       resp.Location.LogoURL,
		Background: resp.Location.PosBackground,
		Currency:   currency,
	}, nil
}

func (a *Adapter) FetchLocationDetails(ctx context.Context, cfg shop.SourceConfig) (pos.LocationDetails, error) {
	var resp locationResponse
	if err := a.get(ctx, "/locations/"+cfg.LocationID, &resp); err != nil {
		return pos.LocationDetails{}, err
	}
	label := resp.Location.Address.AddressLine
	if resp.Location.Address.Locality != "" {
		label += ", " + resp.Location.Address.Locality
	}
	return pos.LocationDetails{
		Label:     label,
		Latitude:  resp.Location.Coordinates.Latitude,
		Longitude: resp.Location.Coordinates.Longitude,
	}, nil
}

type catalogResponse struct {
	Objects []struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		ItemData struct {
			Name         string `json:"name"`
			Description  string `json:"description"`
			ImageURL     string `json:"image_url"`
			CategoryName string `json:"category_name"`
			Variations   []struct {
				ID                string `json:"id"`
				ItemVariationData struct {
					Name       string `json:"name"`
					PriceMoney struct {
						Amount   int64  `json:"amount"`
						Currency string `json:"currency"`
					} `json:"price_money"`
				} `json:"item_variation_data"`
			} `json:"variations"`
			ModifierListInfo []struct {
				ModifierListID string `json:"modifier_list_id"`
			} `json:"modifier_list_info"`
		} `json:"item_data"`
		ModifierListData struct {
			Name      string `json:"name"`
			Modifiers []struct {
				ID           string `json:"id"`
				ModifierData struct {
					Name       string `json:"name"`
					PriceMoney struct {
						Amount   int64  `json:"amount"`
						Currency string `json:"currency"`
					} `json:"price_money"`
				} `json:"modifier_data"`
			} `json:"modifiers"`
		} `json:"modifier_list_data"`
		PresentAtAllLocations bool     `json:"present_at_all_locations"`
		PresentAtLocationIDs  []string `json:"present_at_location_ids"`
		Cursor                string   `json:"-"`
	} `json:"objects"`
	Cursor string `json:"cursor"`
}

// FetchProducts lists the catalog, resolving modifier lists into inline
// mods and filtering objects not present at the shop's location.
func (a *Adapter) FetchProducts(ctx context.Context, cfg shop.SourceConfig) ([]pos.ProductRecord, error) {
	mods := make(map[string][]pos.ModRecord)
	var products []pos.ProductRecord
	modRefs := make(map[string][]string) // product external id -> modifier list ids

	cursor := ""
	for {
		path := "/catalog/list?types=ITEM,MODIFIER_LIST"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		var resp catalogResponse
		if err := a.get(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, obj := range resp.Objects {
			if !presentAt(obj.PresentAtAllLocations, obj.PresentAtLocationIDs, cfg.LocationID) {
				continue
			}
			switch obj.Type {
			case "MODIFIER_LIST":
				var list []pos.ModRecord
				for _, m := range obj.ModifierListData.Modifiers {
					list = append(list, pos.ModRecord{
						ExternalID:  m.ID,
						Name:        m.ModifierData.Name,
						PriceAmount: m.ModifierData.PriceMoney.Amount,
						Currency:    m.ModifierData.PriceMoney.Currency,
					})
				}
				mods[obj.ID] = list
			case "ITEM":
				if len(obj.ItemData.Variations) == 0 {
					continue
				}
				base := obj.ItemData.Variations[0].ItemVariationData
				product := pos.ProductRecord{
					ExternalID:  obj.ID,
					Name:        obj.ItemData.Name,
					Description: obj.ItemData.Description,
					Image:       obj.ItemData.ImageURL,
					PriceAmount: base.PriceMoney.Amount,
					Currency:    base.PriceMoney.Currency,
					Category:    obj.ItemData.CategoryName,
					Available:   true,
				}
				for _, ref := range obj.ItemData.ModifierListInfo {
					modRefs[obj.ID] = append(modRefs[obj.ID], ref.ModifierListID)
				}
				products = append(products, product)
			}
		}

		if resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}

	// Attach resolved modifier lists after the full catalog walk; the list
	// objects can arrive on any page.
	for i := range products {
		for _, listID := range modRefs[products[i].ExternalID] {
			products[i].Mods = append(products[i].Mods, mods[listID]...)
		}
	}
	return products, nil
}

type orderMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type orderLine struct {
	CatalogObjectID string     `json:"catalog_object_id,omitempty"`
	Name            string     `json:"name"`
	Quantity        string     `json:"quantity"`
	BasePriceMoney  orderMoney `json:"base_price_money"`
}

type createOrderRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Order          struct {
		LocationID  string      `json:"location_id"`
		ReferenceID string      `json:"reference_id"`
		LineItems   []orderLine `json:"line_items"`
	} `json:"order"`
}

type createOrderResponse struct {
	Order struct {
		ID string `json:"id"`
	} `json:"order"`
}

// CreateOrder forwards a paid order for fulfillment. The order id doubles
// as the idempotency key so a retried forward cannot duplicate tickets.
func (a *Adapter) CreateOrder(ctx context.Context, cfg shop.SourceConfig, o order.Order) (string, error) {
	req := createOrderRequest{IdempotencyKey: o.ID}
	req.Order.LocationID = cfg.LocationID
	req.Order.ReferenceID = o.ID
	for _, li := range o.Items {
		req.Order.LineItems = append(req.Order.LineItems, orderLine{
			Name:     li.Name,
			Quantity: fmt.Sprintf("%d", li.Quantity),
			BasePriceMoney: orderMoney{
				Amount:   li.Price.Amount,
				Currency: li.Price.Currency,
			},
		})
	}

	var resp createOrderResponse
	if err := a.post(ctx, "/orders", req, &resp); err != nil {
		return "", err
	}
	return resp.Order.ID, nil
}

func (a *Adapter) get(ctx context.Context, path string, dest interface{}) error {
	return a.do(ctx, http.MethodGet, path, nil, dest)
}

func (a *Adapter) post(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return a.do(ctx, http.MethodPost, path, payload, dest)
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte, dest interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apperr.ExternalService(err, "square request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.ExternalService(fmt.Errorf("status %d", resp.StatusCode), "square returned %d for %s", resp.StatusCode, path)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return apperr.ExternalService(err, "square response decode failed")
	}
	return nil
}

func presentAt(all bool, locationIDs []string, locationID string) bool {
	if all || locationID == "" {
		return true
	}
	for _, id := range locationIDs {
		if id == locationID {
			return true
		}
	}
	return false
}
