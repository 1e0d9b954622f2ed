package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/reservations/internal/domain"
	"github.com/Domenick1991/reservations/internal/service/catalog"
	"github.com/Domenick1991/reservations/internal/service/reservation"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

// InventoryHandler serves setup and read endpoints for products, slots and pools.
type InventoryHandler struct {
	catalog catalog.CatalogUseCase
	pools   reservation.UseCase
}

func NewInventoryHandler(catalog catalog.CatalogUseCase, pools reservation.UseCase) *InventoryHandler {
	return &InventoryHandler{catalog: catalog, pools: pools}
}

func (h *InventoryHandler) Register(router *gin.RouterGroup) {
	router.POST("/products", h.createProduct)
	router.GET("/products/:id", h.getProduct)
	router.POST("/products/:id/slots", h.createSlot)
	router.GET("/products/:id/slots", h.listSlots)
	router.GET("/slots/:id", h.getSlot)
	router.PUT("/slots/:id/open", h.setSlotOpen)
	router.GET("/pools/:id", h.getPool)
	router.PUT("/pools/:id/capacity", h.resizePool)
}

func (h *InventoryHandler) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), catalog.CreateProductInput{
		Kind: domain.ProductKind(req.Kind),
		Name: req.Name,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond[productResponse](c, http.StatusCreated, product)
}

func (h *InventoryHandler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond[productResponse](c, http.StatusOK, product)
}

func (h *InventoryHandler) createSlot(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	var req createSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	input := catalog.CreateSlotInput{
		ProductID: productID,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Closed:    req.Closed,
	}
	for _, p := range req.Pools {
		input.Pools = append(input.Pools, catalog.PoolInput{Category: p.Category, Total: p.Total, UnitLabels: p.UnitLabels})
	}

	snap, err := h.catalog.CreateSlot(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	respond[slotSnapshotResponse](c, http.StatusCreated, snap)
}

func (h *InventoryHandler) listSlots(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	slots, err := h.catalog.ListSlots(c.Request.Context(), productID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond[[]slotResponse](c, http.StatusOK, slots)
}

func (h *InventoryHandler) getSlot(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	snap, err := h.catalog.GetSlotSnapshot(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond[slotSnapshotResponse](c, http.StatusOK, snap)
}

func (h *InventoryHandler) setSlotOpen(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req setOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	slot, err := h.catalog.SetSlotOpen(c.Request.Context(), id, *req.Open)
	if err != nil {
		writeError(c, err)
		return
	}
	respond[slotResponse](c, http.StatusOK, slot)
}

func (h *InventoryHandler) getPool(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	snap, err := h.catalog.GetPoolSnapshot(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond[poolSnapshotResponse](c, http.StatusOK, snap)
}

func (h *InventoryHandler) resizePool(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req resizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	snap, err := h.pools.ResizePool(c.Request.Context(), id, *req.Total)
	if err != nil {
		writeError(c, err)
		return
	}
	respond[poolSnapshotResponse](c, http.StatusOK, snap)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, errors.Newf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func respond[T any](c *gin.Context, status int, from any) {
	resp, err := toResponse[T](from)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, resp)
}
