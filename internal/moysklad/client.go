// Package moysklad is a thin client for the MoySklad JSON API 1.2,
// covering the two document types this integration manages: customer
// orders (reservations) and demands (shipments).
package moysklad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"marketsync/internal/model"
)

// Meta is the MoySklad resource locator attached to every entity.
type Meta struct {
	Href string `json:"href"`
	Type string `json:"type"`
}

// Ref is a composite reference to another entity.
type Ref struct {
	Meta Meta `json:"meta"`
}

// Entity is the subset of a MoySklad document this integration reads back.
type Entity struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ExternalNumber string `json:"externalNumber"`
	Meta           Meta   `json:"meta"`
}

// Product is a MoySklad catalog item; the mapping generator matches these
// against marketplace offers.
type Product struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Article      string `json:"article"`
	Code         string `json:"code"`
	ExternalCode string `json:"externalCode"`
}

// APIError is returned for non-2xx responses with full request context so
// operators can correlate failures to orders from logs alone.
type APIError struct {
	Op             string
	ExternalNumber string
	StatusCode     int
	Body           string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moysklad %s: orderId=%q statusCode=%d body=%s", e.Op, e.ExternalNumber, e.StatusCode, e.Body)
}

// Client issues authenticated calls against a MoySklad account. The JSON
// API enforces 45 requests per 3 seconds per token, so every call waits on
// a client-side limiter instead of burning quota on 429 retries.
type Client struct {
	Base    string
	Token   string
	OrgID   string
	StoreID string
	AgentID string
	HTTP    *http.Client

	limiter *rate.Limiter
}

func New(base, token, orgID, storeID, agentID string) *Client {
	return &Client{
		Base:    base,
		Token:   token,
		OrgID:   orgID,
		StoreID: storeID,
		AgentID: agentID,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(3*time.Second/45), 45),
	}
}

type positionBody struct {
	Quantity   int `json:"quantity"`
	Assortment Ref `json:"assortment"`
}

type documentBody struct {
	Name           string         `json:"name"`
	ExternalNumber string         `json:"externalNumber"`
	Organization   Ref            `json:"organization"`
	Agent          Ref            `json:"agent"`
	Store          Ref            `json:"store"`
	Description    string         `json:"description,omitempty"`
	Positions      []positionBody `json:"positions"`
	CustomerOrder  *Ref           `json:"customerOrder,omitempty"`
}

type rowsResponse struct {
	Rows []Entity `json:"rows"`
}

func (c *Client) entityRef(kind, id string) Ref {
	return Ref{Meta: Meta{Href: fmt.Sprintf("%s/entity/%s/%s", c.Base, kind, id), Type: kind}}
}

func (c *Client) document(name, externalNumber, description string, positions []model.Position) documentBody {
	body := documentBody{
		Name:           name,
		ExternalNumber: externalNumber,
		Organization:   c.entityRef("organization", c.OrgID),
		Agent:          c.entityRef("counterparty", c.AgentID),
		Store:          c.entityRef("store", c.StoreID),
		Description:    description,
	}
	for _, p := range positions {
		body.Positions = append(body.Positions, positionBody{
			Quantity:   p.Quantity,
			Assortment: c.entityRef("product", p.ProductID),
		})
	}
	return body
}

func validatePositions(op, externalNumber string, positions []model.Position) error {
	if externalNumber == "" {
		return fmt.Errorf("%s: external number required", op)
	}
	if len(positions) == 0 {
		return fmt.Errorf("%s: orderId=%q: positions must be non-empty", op, externalNumber)
	}
	for i, p := range positions {
		if p.ProductID == "" || p.Quantity <= 0 {
			return fmt.Errorf("%s: orderId=%q: invalid position at index %d: missing productId or quantity", op, externalNumber, i)
		}
	}
	return nil
}

// CreateCustomerOrder creates the reservation document for an order.
// Positions are validated locally first; malformed input never reaches the
// backend.
func (c *Client) CreateCustomerOrder(ctx context.Context, externalNumber string, positions []model.Position, description string) (Entity, error) {
	if err := validatePositions("create_customer_order", externalNumber, positions); err != nil {
		return Entity{}, err
	}
	if description == "" {
		description = "Reserve for Yandex order " + externalNumber
	}
	body := c.document("Reserve "+externalNumber, externalNumber, description, positions)
	var ent Entity
	if err := c.do(ctx, http.MethodPost, c.Base+"/entity/customerorder", "create_customer_order", externalNumber, body, &ent); err != nil {
		return Entity{}, err
	}
	log.Printf("[MOYSKLAD] Customer Order created: orderId=%q entityId=%q entityHref=%q", externalNumber, ent.ID, ent.Meta.Href)
	return ent, nil
}

// CreateDemand creates the shipment document. When the matching customer
// order exists it is attached as a back-reference; a failed lookup is
// logged and the demand is created without the link.
func (c *Client) CreateDemand(ctx context.Context, externalNumber string, positions []model.Position, description string) (Entity, error) {
	if err := validatePositions("create_demand", externalNumber, positions); err != nil {
		return Entity{}, err
	}
	if description == "" {
		description = "Shipment (demand) for Yandex order " + externalNumber
	}
	body := c.document("Shipment "+externalNumber, externalNumber, description, positions)
	co, err := c.FindCustomerOrderByExternalNumber(ctx, externalNumber)
	switch {
	case err != nil:
		log.Printf("[MOYSKLAD] Failed to search Customer Order for linking: orderId=%q error=%q, creating Demand without link", externalNumber, err)
	case co == nil:
		log.Printf("[MOYSKLAD] Customer Order not found: orderId=%q, creating Demand without link", externalNumber)
	default:
		body.CustomerOrder = &Ref{Meta: Meta{Href: co.Meta.Href, Type: "customerorder"}}
	}
	var ent Entity
	if err := c.do(ctx, http.MethodPost, c.Base+"/entity/demand", "create_demand", externalNumber, body, &ent); err != nil {
		return Entity{}, err
	}
	log.Printf("[MOYSKLAD] Demand created: orderId=%q entityId=%q entityHref=%q", externalNumber, ent.ID, ent.Meta.Href)
	return ent, nil
}

// FindCustomerOrderByExternalNumber returns the first customer order whose
// externalNumber equals the key, or nil when none exists. This lookup is
// the idempotency mechanism for the reserve transition.
func (c *Client) FindCustomerOrderByExternalNumber(ctx context.Context, externalNumber string) (*Entity, error) {
	return c.findByExternalNumber(ctx, "customerorder", "find_customer_order", externalNumber)
}

// FindDemandByExternalNumber is the shipment-side idempotency lookup.
func (c *Client) FindDemandByExternalNumber(ctx context.Context, externalNumber string) (*Entity, error) {
	return c.findByExternalNumber(ctx, "demand", "find_demand", externalNumber)
}

func (c *Client) findByExternalNumber(ctx context.Context, kind, op, externalNumber string) (*Entity, error) {
	u := fmt.Sprintf("%s/entity/%s?filter=%s", c.Base, kind, url.QueryEscape("externalNumber="+externalNumber))
	var res rowsResponse
	if err := c.do(ctx, http.MethodGet, u, op, externalNumber, nil, &res); err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return &res.Rows[0], nil
}

// DeleteCustomerOrder removes a reservation by its resource href; MoySklad
// releases the reserved stock automatically.
func (c *Client) DeleteCustomerOrder(ctx context.Context, href string) error {
	if href == "" {
		return fmt.Errorf("delete_customer_order: empty href")
	}
	return c.do(ctx, http.MethodDelete, href, "delete_customer_order", "", nil, nil)
}

// ListProducts pages through the product catalog; used by cmd/genmapping.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	const pageSize = 1000
	var out []Product
	for offset := 0; ; offset += pageSize {
		u := fmt.Sprintf("%s/entity/product?limit=%d&offset=%d", c.Base, pageSize, offset)
		var res struct {
			Rows []Product `json:"rows"`
		}
		if err := c.do(ctx, http.MethodGet, u, "list_products", "", nil, &res); err != nil {
			return nil, err
		}
		out = append(out, res.Rows...)
		if len(res.Rows) < pageSize {
			return out, nil
		}
	}
}

// Ping verifies credentials with a cheap catalog query.
func (c *Client) Ping(ctx context.Context) error {
	var res rowsResponse
	return c.do(ctx, http.MethodGet, c.Base+"/entity/product?limit=1", "ping", "", nil, &res)
}

func (c *Client) do(ctx context.Context, method, u, op, externalNumber string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json;charset=utf-8")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Printf("[MOYSKLAD] Request failed: operation=%q orderId=%q error=%q", op, externalNumber, err)
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// MoySklad error bodies are small JSON arrays; cap reads anyway.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		apiErr := &APIError{Op: op, ExternalNumber: externalNumber, StatusCode: resp.StatusCode, Body: string(b)}
		log.Printf("[MOYSKLAD] Failed: operation=%q orderId=%q statusCode=%d responseBody=%s", op, externalNumber, resp.StatusCode, string(b))
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
