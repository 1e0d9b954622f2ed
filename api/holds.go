package api

import (
	"net/http"

	"github.com/Domenick1991/reservations/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

type HoldsHandler struct {
	service reservation.UseCase
}

func NewHoldsHandler(service reservation.UseCase) *HoldsHandler {
	return &HoldsHandler{service: service}
}

func (h *HoldsHandler) Register(router *gin.RouterGroup) {
	router.POST("/holds", h.create)
	router.GET("/holds/:token", h.get)
	router.POST("/holds/:token/confirm", h.confirm)
	router.POST("/holds/:token/cancel", h.cancel)
	router.DELETE("/holds/:token", h.release)
}

func (h *HoldsHandler) create(c *gin.Context) {
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.service.Hold(c.Request.Context(), reservation.HoldInput{
		Token:    req.Token,
		PoolID:   req.PoolID,
		Quantity: req.Quantity,
		UnitIDs:  req.UnitIDs,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respond[holdResponse](c, status, &res.Hold)
}

func (h *HoldsHandler) get(c *gin.Context) {
	hold, err := h.service.GetHold(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond[holdResponse](c, http.StatusOK, hold)
}

func (h *HoldsHandler) confirm(c *gin.Context) {
	hold, err := h.service.Confirm(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond[holdResponse](c, http.StatusOK, hold)
}

func (h *HoldsHandler) cancel(c *gin.Context) {
	hold, err := h.service.Cancel(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond[holdResponse](c, http.StatusOK, hold)
}

func (h *HoldsHandler) release(c *gin.Context) {
	if err := h.service.Release(c.Request.Context(), c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
