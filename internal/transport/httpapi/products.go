package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/commerce/internal/service/catalog"
)

const stockHistoryLimit = 20

func (h *Handler) listProducts(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	products, err := h.svc.Catalog.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProduct(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	product, err := h.svc.Catalog.Create(c.Request.Context(), catalog.CreateProductRequest{
		Name:     req.Name,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toProduct(product))
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.svc.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(product))
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req productPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	product, err := h.svc.Catalog.Update(c.Request.Context(), c.Param("id"), catalog.UpdateProductRequest{
		Name:     req.Name,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(product))
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getStock(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	if limit == 0 {
		limit = stockHistoryLimit
	}

	available, err := h.svc.Stock.Available(ctx, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	movements, err := h.svc.Stock.History(ctx, id, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	resp := stockResponse{ProductID: id, Available: available}
	for _, m := range movements {
		resp.History = append(resp.History, movementResponse{
			ID:            m.ID,
			Delta:         m.Delta,
			Reason:        string(m.Reason),
			OrderID:       m.OrderID,
			QuantityAfter: m.QuantityAfter,
			CreatedAt:     m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) adjustStock(c *gin.Context) {
	var req stockAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	available, err := h.svc.Stock.Adjust(c.Request.Context(), id, req.Delta)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stockResponse{ProductID: id, Available: available})
}
