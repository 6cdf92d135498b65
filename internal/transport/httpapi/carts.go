package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.svc.Carts.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCart(cart))
}

func (h *Handler) deleteCart(c *gin.Context) {
	if err := h.svc.Carts.Delete(c.Request.Context(), c.Param("userId")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cart, err := h.svc.Carts.AddItem(c.Request.Context(), c.Param("userId"), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCart(cart))
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cart, err := h.svc.Carts.UpdateItem(c.Request.Context(), c.Param("userId"), c.Param("productId"), req.Quantity)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toCart(cart))
}

func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.svc.Carts.RemoveItem(c.Request.Context(), c.Param("userId"), c.Param("productId")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.svc.Carts.Clear(c.Request.Context(), c.Param("userId")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) cartTotal(c *gin.Context) {
	userID := c.Param("userId")
	total, err := h.svc.Carts.Total(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "total": total})
}

func (h *Handler) checkout(c *gin.Context) {
	orders, err := h.svc.Orders.Checkout(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toOrders(orders))
}
