// Package httpapi exposes the checkout, payment, and synchronization
// operations over JSON/HTTP.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/domain/payment"
	"github.com/groundscore/commerce_layer/internal/metrics"
	"github.com/groundscore/commerce_layer/internal/services/cart"
	paymentsvc "github.com/groundscore/commerce_layer/internal/services/payment"
	"github.com/groundscore/commerce_layer/internal/services/syncer"
	"github.com/groundscore/commerce_layer/internal/storage"
	"github.com/groundscore/commerce_layer/pkg/logger"
)

// Handler holds the services behind the HTTP surface.
type Handler struct {
	cart    *cart.Service
	builder *paymentsvc.Builder
	syncer  *syncer.Service
	shops   storage.ShopStore
	farmers storage.FarmerStore
	log     *logger.Logger

	devMode   bool
	jwtSecret string
	jwtIssuer string
}

// Options carries the auth knobs for NewHandler.
type Options struct {
	DevMode   bool
	JWTSecret string
	JWTIssuer string
}

func NewHandler(cartSvc *cart.Service, builder *paymentsvc.Builder, syncSvc *syncer.Service, shops storage.ShopStore, farmers storage.FarmerStore, opts Options, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		cart:      cartSvc,
		builder:   builder,
		syncer:    syncSvc,
		shops:     shops,
		farmers:   farmers,
		log:       log,
		devMode:   opts.DevMode,
		jwtSecret: opts.JWTSecret,
		jwtIssuer: opts.JWTIssuer,
	}
}

// Router builds the gin engine with all routes attached.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metricsMiddleware())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	r.GET("/shops", h.listShops)
	r.GET("/shops/:id", h.getShop)
	r.POST("/shops/sync", h.syncShops)
	r.GET("/farmers", h.listFarmers)

	auth := r.Group("/", h.authMiddleware())
	auth.GET("/cart", h.getCart)
	auth.POST("/cart", h.mutateCart)
	auth.DELETE("/cart", h.deleteCart)
	auth.POST("/orders/authorization-payload", h.authorizationPayload)
	auth.POST("/orders/pay", h.payOrder)
	auth.POST("/orders/status", h.orderStatus)
	auth.POST("/orders/sync-with-external-service", h.forwardOrders)

	return r
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getCart(c *gin.Context) {
	userID, err := h.userID(c, c.Query("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	o, err := h.cart.GetActiveOrder(c.Request.Context(), userID, c.Query("shopId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if o == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, o)
}

type cartMutation struct {
	Action      string         `json:"action"`
	UserID      string         `json:"userId"`
	ShopID      string         `json:"shopId"`
	OrderID     string         `json:"orderId"`
	OrderItems  []cart.NewLine `json:"orderItems"`
	OrderItemID string         `json:"orderItemId"`
	TipAmount   *int64         `json:"tipAmount"`
}

func (h *Handler) mutateCart(c *gin.Context) {
	var req cartMutation
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}
	userID, err := h.userID(c, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()

	switch req.Action {
	case "", "add":
		if len(req.OrderItems) == 0 {
			writeError(c, apperr.BadRequest("orderItems is required"))
			return
		}
		o, err := h.cart.AddItems(ctx, userID, req.ShopID, req.OrderItems)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	case "delete":
		orderID, err := h.resolveOrderID(c, userID, req.OrderID, req.ShopID)
		if err != nil {
			writeError(c, err)
			return
		}
		o, err := h.cart.RemoveItem(ctx, orderID, req.OrderItemID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	case "tip":
		if req.TipAmount == nil {
			writeError(c, apperr.BadRequest("tipAmount is required"))
			return
		}
		orderID, err := h.resolveOrderID(c, userID, req.OrderID, req.ShopID)
		if err != nil {
			writeError(c, err)
			return
		}
		o, err := h.cart.SetTip(ctx, orderID, *req.TipAmount)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	default:
		writeError(c, apperr.BadRequest("unknown action %q", req.Action))
	}
}

func (h *Handler) deleteCart(c *gin.Context) {
	userID, err := h.userID(c, c.Query("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	orderID, err := h.resolveOrderID(c, userID, "", c.Query("shopId"))
	if err != nil {
		writeError(c, err)
		return
	}
	o, err := h.cart.Delete(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// resolveOrderID accepts an explicit order id or falls back to the user's
// active cart in the given shop.
func (h *Handler) resolveOrderID(c *gin.Context, userID, orderID, shopID string) (string, error) {
	if orderID != "" {
		return orderID, nil
	}
	o, err := h.cart.GetActiveOrder(c.Request.Context(), userID, shopID)
	if err != nil {
		return "", err
	}
	if o == nil {
		return "", apperr.NotFound("no active cart for user %s", userID)
	}
	return o.ID, nil
}

type authorizationRequest struct {
	OrderID      string `json:"orderId"`
	PayerAddress string `json:"payerAddress"`
}

type authorizationResponse struct {
	Domain        payment.TypedDataDomain             `json:"domain"`
	Types         map[string][]payment.TypedDataField `json:"types"`
	PrimaryType   string                              `json:"primaryType"`
	Message       payment.TransferAuthorization       `json:"message"`
	Authorization payment.TransferAuthorization       `json:"authorization"`
}

func (h *Handler) authorizationPayload(c *gin.Context) {
	var req authorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}
	if req.OrderID == "" {
		writeError(c, apperr.BadRequest("orderId is required"))
		return
	}
	ctx := c.Request.Context()

	o, err := h.cart.BeginPayment(ctx, req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}
	sh, err := h.shops.GetShop(ctx, o.ShopID)
	if err != nil {
		writeError(c, apperr.NotFound("shop %s not found", o.ShopID))
		return
	}
	payload, err := h.builder.Build(ctx, &o, &sh, req.PayerAddress)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, authorizationResponse{
		Domain:        payload.Domain,
		Types:         payload.Types,
		PrimaryType:   payload.PrimaryType,
		Message:       payload.Message,
		Authorization: payload.Message,
	})
}

type payRequest struct {
	OrderID         string `json:"orderId"`
	TransactionHash string `json:"transactionHash"`
}

func (h *Handler) payOrder(c *gin.Context) {
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}
	o, err := h.cart.MarkPaid(c.Request.Context(), req.OrderID, req.TransactionHash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type statusRequest struct {
	OrderID string `json:"orderId"`
}

func (h *Handler) orderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}
	o, err := h.cart.RecheckPayment(c.Request.Context(), req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type forwardRequest struct {
	OrderIDs []string `json:"orderIds"`
}

func (h *Handler) forwardOrders(c *gin.Context) {
	var req forwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(c, apperr.BadRequest("orderIds is required"))
		return
	}
	orders, results, err := h.syncer.ForwardOrders(c.Request.Context(), req.OrderIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "results": results})
}

func (h *Handler) syncShops(c *gin.Context) {
	results, err := h.syncer.SyncAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) listShops(c *gin.Context) {
	shops, err := h.shops.ListShops(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, shops)
}

func (h *Handler) getShop(c *gin.Context) {
	sh, err := h.shops.GetShop(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == storage.ErrNotFound {
			writeError(c, apperr.NotFound("shop %s not found", c.Param("id")))
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

func (h *Handler) listFarmers(c *gin.Context) {
	farmers, err := h.farmers.ListFarmers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, farmers)
}
