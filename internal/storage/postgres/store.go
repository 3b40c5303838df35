// Package postgres implements the storage interfaces on PostgreSQL.
// Structured order fields (line items, tip, distributions) live in JSONB
// columns rather than child tables, trading query-ability for a simple
// read path.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
	"github.com/groundscore/commerce_layer/internal/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.ShopStore = (*Store)(nil)
var _ storage.OrderStore = (*Store)(nil)
var _ storage.FarmerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and applies migrations.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// --- ShopStore --------------------------------------------------------------

func (s *Store) UpsertShop(ctx context.Context, sh shop.Shop) (shop.Shop, error) {
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	menuJSON, err := json.Marshal(sh.Menu)
	if err != nil {
		return shop.Shop{}, err
	}
	allocJSON, err := json.Marshal(sh.Allocations)
	if err != nil {
		return shop.Shop{}, err
	}
	sourceJSON, err := json.Marshal(sh.Source)
	if err != nil {
		return shop.Shop{}, err
	}
	locJSON, err := marshalNullable(sh.Location)
	if err != nil {
		return shop.Shop{}, err
	}
	tipJSON, err := marshalNullable(sh.Tip)
	if err != nil {
		return shop.Shop{}, err
	}
	rewardJSON, err := marshalNullable(sh.Reward)
	if err != nil {
		return shop.Shop{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shops (id, label, logo, background_image, location, menu,
		                   farmer_allocations, source_config, tip_config,
		                   reward_config, fund_recipient)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			logo = EXCLUDED.logo,
			background_image = EXCLUDED.background_image,
			location = EXCLUDED.location,
			menu = EXCLUDED.menu,
			farmer_allocations = EXCLUDED.farmer_allocations,
			source_config = EXCLUDED.source_config,
			tip_config = EXCLUDED.tip_config,
			reward_config = EXCLUDED.reward_config,
			fund_recipient = EXCLUDED.fund_recipient
	`, sh.ID, sh.Label, sh.Logo, sh.BackgroundImage, locJSON, menuJSON,
		allocJSON, sourceJSON, tipJSON, rewardJSON, sh.FundRecipient)
	if err != nil {
		return shop.Shop{}, err
	}
	return sh, nil
}

func (s *Store) GetShop(ctx context.Context, id string) (shop.Shop, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, label, logo, background_image, location, menu,
		       farmer_allocations, source_config, tip_config, reward_config,
		       fund_recipient
		FROM shops
		WHERE id = $1
	`, id)
	return scanShop(row)
}

func (s *Store) ListShops(ctx context.Context) ([]shop.Shop, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, label, logo, background_image, location, menu,
		       farmer_allocations, source_config, tip_config, reward_config,
		       fund_recipient
		FROM shops
		ORDER BY label
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []shop.Shop
	for rows.Next() {
		sh, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sh)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanShop(row rowScanner) (shop.Shop, error) {
	var (
		sh        shop.Shop
		locRaw    []byte
		menuRaw   []byte
		allocRaw  []byte
		sourceRaw []byte
		tipRaw    []byte
		rewardRaw []byte
	)
	err := row.Scan(&sh.ID, &sh.Label, &sh.Logo, &sh.BackgroundImage, &locRaw,
		&menuRaw, &allocRaw, &sourceRaw, &tipRaw, &rewardRaw, &sh.FundRecipient)
	if errors.Is(err, sql.ErrNoRows) {
		return shop.Shop{}, storage.ErrNotFound
	}
	if err != nil {
		return shop.Shop{}, err
	}
	if err := json.Unmarshal(menuRaw, &sh.Menu); err != nil {
		return shop.Shop{}, fmt.Errorf("decode menu: %w", err)
	}
	if err := json.Unmarshal(allocRaw, &sh.Allocations); err != nil {
		return shop.Shop{}, fmt.Errorf("decode allocations: %w", err)
	}
	if err := json.Unmarshal(sourceRaw, &sh.Source); err != nil {
		return shop.Shop{}, fmt.Errorf("decode source config: %w", err)
	}
	if err := unmarshalNullable(locRaw, &sh.Location); err != nil {
		return shop.Shop{}, fmt.Errorf("decode location: %w", err)
	}
	if err := unmarshalNullable(tipRaw, &sh.Tip); err != nil {
		return shop.Shop{}, fmt.Errorf("decode tip config: %w", err)
	}
	if err := unmarshalNullable(rewardRaw, &sh.Reward); err != nil {
		return shop.Shop{}, fmt.Errorf("decode reward config: %w", err)
	}
	return sh, nil
}

func (s *Store) UpsertItem(ctx context.Context, item shop.Item) (shop.Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	modsJSON, err := json.Marshal(item.Mods)
	if err != nil {
		return shop.Item{}, err
	}
	sourceJSON, err := json.Marshal(item.Source)
	if err != nil {
		return shop.Item{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, shop_id, name, description, image,
		                   price_amount, price_currency, category, available,
		                   mods, source_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			shop_id = EXCLUDED.shop_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			image = EXCLUDED.image,
			price_amount = EXCLUDED.price_amount,
			price_currency = EXCLUDED.price_currency,
			category = EXCLUDED.category,
			available = EXCLUDED.available,
			mods = EXCLUDED.mods,
			source_config = EXCLUDED.source_config
	`, item.ID, item.ShopID, item.Name, item.Description, item.Image,
		item.Price.Amount, item.Price.Currency, item.Category, item.Available,
		modsJSON, sourceJSON)
	if err != nil {
		return shop.Item{}, err
	}
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (shop.Item, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, shop_id, name, description, image, price_amount,
		       price_currency, category, available, mods, source_config
		FROM items
		WHERE id = $1
	`, id)
	return scanItem(row)
}

func (s *Store) ListItems(ctx context.Context, shopID string) ([]shop.Item, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, shop_id, name, description, image, price_amount,
		       price_currency, category, available, mods, source_config
		FROM items
		WHERE shop_id = $1
		ORDER BY category, name
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []shop.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func scanItem(row rowScanner) (shop.Item, error) {
	var (
		item      shop.Item
		modsRaw   []byte
		sourceRaw []byte
	)
	err := row.Scan(&item.ID, &item.ShopID, &item.Name, &item.Description,
		&item.Image, &item.Price.Amount, &item.Price.Currency, &item.Category,
		&item.Available, &modsRaw, &sourceRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return shop.Item{}, storage.ErrNotFound
	}
	if err != nil {
		return shop.Item{}, err
	}
	if err := json.Unmarshal(modsRaw, &item.Mods); err != nil {
		return shop.Item{}, fmt.Errorf("decode mods: %w", err)
	}
	if err := json.Unmarshal(sourceRaw, &item.Source); err != nil {
		return shop.Item{}, fmt.Errorf("decode source config: %w", err)
	}
	return item, nil
}

// --- OrderStore -------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 1

	itemsJSON, tipJSON, extJSON, distJSON, err := marshalOrderColumns(o)
	if err != nil {
		return order.Order{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, shop_id, user_id, status, order_items, tip,
		                    currency, transaction_hash, external_order_info,
		                    additional_distributions, version, created_at,
		                    updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, o.ID, o.ShopID, o.UserID, o.Status, itemsJSON, tipJSON, o.Currency,
		o.TransactionHash, extJSON, distJSON, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		// The partial unique index turns a second live cart for the same
		// (user, shop) into a constraint violation.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return order.Order{}, fmt.Errorf("user %s: %w", o.UserID, storage.ErrActiveOrderExists)
		}
		return order.Order{}, err
	}
	return o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	itemsJSON, tipJSON, extJSON, distJSON, err := marshalOrderColumns(o)
	if err != nil {
		return order.Order{}, err
	}
	previous := o.Version
	o.UpdatedAt = time.Now().UTC()
	o.Version++

	result, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, order_items = $3, tip = $4, currency = $5,
		    transaction_hash = $6, external_order_info = $7,
		    additional_distributions = $8, version = $9, updated_at = $10
		WHERE id = $1 AND version = $11
	`, o.ID, o.Status, itemsJSON, tipJSON, o.Currency, o.TransactionHash,
		extJSON, distJSON, o.Version, o.UpdatedAt, previous)
	if err != nil {
		return order.Order{}, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish a missing row from a stale version.
		if _, getErr := s.GetOrder(ctx, o.ID); errors.Is(getErr, storage.ErrNotFound) {
			return order.Order{}, storage.ErrNotFound
		}
		return order.Order{}, storage.ErrVersionConflict
	}
	return o, nil
}

const orderColumns = `id, shop_id, user_id, status, order_items, tip,
	currency, transaction_hash, external_order_info,
	additional_distributions, version, created_at, updated_at`

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)
	return scanOrder(row)
}

func (s *Store) GetActiveOrder(ctx context.Context, userID, shopID string) (order.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1 AND status IN ('pending', 'awaiting-payment')`
	args := []interface{}{userID}
	if shopID != "" {
		query += ` AND shop_id = $2`
		args = append(args, shopID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`
	return scanOrder(s.db.QueryRowxContext(ctx, query, args...))
}

func (s *Store) ListOrdersByIDs(ctx context.Context, ids []string) ([]order.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = ANY($1)
		ORDER BY created_at
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func marshalOrderColumns(o order.Order) (items, tip, ext, dist []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return
	}
	if tip, err = marshalNullable(o.Tip); err != nil {
		return
	}
	if ext, err = marshalNullable(o.External); err != nil {
		return
	}
	dist, err = json.Marshal(o.Distributions)
	return
}

func scanOrder(row rowScanner) (order.Order, error) {
	var (
		o        order.Order
		itemsRaw []byte
		tipRaw   []byte
		extRaw   []byte
		distRaw  []byte
	)
	err := row.Scan(&o.ID, &o.ShopID, &o.UserID, &o.Status, &itemsRaw,
		&tipRaw, &o.Currency, &o.TransactionHash, &extRaw, &distRaw,
		&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, storage.ErrNotFound
	}
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal(distRaw, &o.Distributions); err != nil {
		return order.Order{}, fmt.Errorf("decode distributions: %w", err)
	}
	if err := unmarshalNullable(tipRaw, &o.Tip); err != nil {
		return order.Order{}, fmt.Errorf("decode tip: %w", err)
	}
	if err := unmarshalNullable(extRaw, &o.External); err != nil {
		return order.Order{}, fmt.Errorf("decode external order info: %w", err)
	}
	return o, nil
}

// --- FarmerStore ------------------------------------------------------------

func (s *Store) UpsertFarmer(ctx context.Context, f shop.Farmer) (shop.Farmer, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO farmers (id, name, image, short_bio, country, wallet,
		                     info_url, campaign_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			short_bio = EXCLUDED.short_bio,
			country = EXCLUDED.country,
			wallet = EXCLUDED.wallet,
			info_url = EXCLUDED.info_url,
			campaign_id = EXCLUDED.campaign_id
	`, f.ID, f.Name, f.Image, f.ShortBio, f.Country, f.Wallet, f.InfoURL, f.CampaignID)
	if err != nil {
		return shop.Farmer{}, err
	}
	return f, nil
}

func (s *Store) GetFarmer(ctx context.Context, id string) (shop.Farmer, error) {
	var f shop.Farmer
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, name, image, short_bio, country, wallet, info_url, campaign_id
		FROM farmers
		WHERE id = $1
	`, id).Scan(&f.ID, &f.Name, &f.Image, &f.ShortBio, &f.Country, &f.Wallet,
		&f.InfoURL, &f.CampaignID)
	if errors.Is(err, sql.ErrNoRows) {
		return shop.Farmer{}, storage.ErrNotFound
	}
	if err != nil {
		return shop.Farmer{}, err
	}
	return f, nil
}

func (s *Store) ListFarmers(ctx context.Context) ([]shop.Farmer, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, name, image, short_bio, country, wallet, info_url, campaign_id
		FROM farmers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []shop.Farmer
	for rows.Next() {
		var f shop.Farmer
		if err := rows.Scan(&f.ID, &f.Name, &f.Image, &f.ShortBio, &f.Country,
			&f.Wallet, &f.InfoURL, &f.CampaignID); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](raw []byte, dest **T) error {
	if len(raw) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dest = &v
	return nil
}
