package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const codeInsufficientStock = "insufficient_stock"

// apiError: ответ API со статусом 4xx/5xx.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

func isInsufficientStock(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Code == codeInsufficientStock
}

type apiClient struct {
	base string
	http *http.Client
	col  *collector
}

func newAPIClient(baseURL string, timeout time.Duration, col *collector) *apiClient {
	return &apiClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		col:  col,
	}
}

type productRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type idResponse struct {
	ID string `json:"id"`
}

type stockResponse struct {
	Available int64 `json:"available"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *apiClient) createProduct(ctx context.Context, name string, price decimal.Decimal, quantity int64) (string, error) {
	var out idResponse
	err := c.call(ctx, "CreateProduct", http.MethodPost, "/api/products", productRequest{Name: name, Price: price, Quantity: quantity}, &out)
	return out.ID, err
}

func (c *apiClient) available(ctx context.Context, productID string) (int64, error) {
	var out stockResponse
	err := c.call(ctx, "GetStock", http.MethodGet, "/api/products/"+productID+"/stock?limit=1", nil, &out)
	return out.Available, err
}

func (c *apiClient) createOrder(ctx context.Context, userID, productID string, quantity int64) (string, error) {
	var out idResponse
	err := c.call(ctx, "CreateOrder", http.MethodPost, "/api/orders", map[string]any{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   quantity,
	}, &out)
	return out.ID, err
}

func (c *apiClient) cancelOrder(ctx context.Context, orderID string) error {
	return c.call(ctx, "CancelOrder", http.MethodPost, "/api/orders/"+orderID+"/cancel", map[string]string{"reason": "load-cancel"}, nil)
}

func (c *apiClient) addToCart(ctx context.Context, userID, productID string, quantity int64) error {
	return c.call(ctx, "AddCartItem", http.MethodPost, "/api/carts/"+userID+"/items", map[string]any{
		"product_id": productID,
		"quantity":   quantity,
	}, nil)
}

func (c *apiClient) checkout(ctx context.Context, userID string) (int, error) {
	var out []idResponse
	err := c.call(ctx, "Checkout", http.MethodPost, "/api/carts/"+userID+"/checkout", nil, &out)
	return len(out), err
}

// call выполняет запрос и учитывает его в коллекторе под именем name.
func (c *apiClient) call(ctx context.Context, name, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", name, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(name, time.Since(start), 0)
		return fmt.Errorf("%s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.col.record(name, time.Since(start), resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorBody
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}
