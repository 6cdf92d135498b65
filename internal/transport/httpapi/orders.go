package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/commerce/internal/service/order"
)

func (h *Handler) listOrders(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	orders, err := h.svc.Orders.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrders(orders))
}

func (h *Handler) listUserOrders(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	orders, err := h.svc.Orders.ListByUser(c.Request.Context(), c.Param("userId"), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrders(orders))
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.svc.Orders.CreateOrder(c.Request.Context(), order.CreateOrderRequest{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Status:    req.Status,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toOrder(created))
}

func (h *Handler) getOrder(c *gin.Context) {
	found, err := h.svc.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(found))
}

func (h *Handler) replaceOrder(c *gin.Context) {
	var req replaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	replaced, err := h.svc.Orders.Replace(c.Request.Context(), c.Param("id"), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(replaced))
}

func (h *Handler) patchOrder(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	replaced, err := h.svc.Orders.ChangeQuantity(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(replaced))
}

func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.svc.Orders.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) completeOrder(c *gin.Context) {
	completed, err := h.svc.Orders.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(completed))
}

// cancelOrder принимает необязательное тело {"reason": "..."}.
func (h *Handler) cancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	cancelled, err := h.svc.Orders.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(cancelled))
}
