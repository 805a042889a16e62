// Package yandex is a minimal Yandex.Market partner API client: just the
// order listing used by the fallback poller and the offer listing used by
// the mapping generator. It is not a general marketplace client.
package yandex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"marketsync/internal/model"
)

const DefaultBase = "https://api.partner.market.yandex.ru"

// Order is a marketplace order as returned by the campaign orders listing.
// Unlike webhook status updates, polled orders carry their full item list.
type Order struct {
	ID     model.FlexID      `json:"id"`
	Status string            `json:"status"`
	Items  []model.OrderItem `json:"items"`
}

// Offer is a campaign catalog entry.
type Offer struct {
	OfferID string `json:"offerId"`
	ShopSKU string `json:"shopSku"`
	Name    string `json:"name"`
}

type Client struct {
	Base       string
	Token      string
	CampaignID string
	HTTP       *http.Client
}

func New(token, campaignID string) *Client {
	return &Client{
		Base:       DefaultBase,
		Token:      token,
		CampaignID: campaignID,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

// ListOrders returns campaign orders in the given status (FBS flow).
func (c *Client) ListOrders(ctx context.Context, status string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	u := fmt.Sprintf("%s/campaigns/%s/orders?status=%s&limit=%d", c.Base, c.CampaignID, url.QueryEscape(status), limit)
	var res struct {
		Orders []Order `json:"orders"`
	}
	if err := c.get(ctx, u, &res); err != nil {
		return nil, err
	}
	return res.Orders, nil
}

// ListOffers pages through the campaign offer catalog. The API caps pages
// at 200 offers; pagination params travel as query parameters on a POST.
func (c *Client) ListOffers(ctx context.Context) ([]Offer, error) {
	const maxPages = 50
	var out []Offer
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		u := fmt.Sprintf("%s/campaigns/%s/offers?limit=200", c.Base, c.CampaignID)
		if pageToken != "" {
			u += "&page_token=" + url.QueryEscape(pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
		if err != nil {
			return nil, err
		}
		c.auth(req)
		req.Header.Set("Content-Type", "application/json")
		var res struct {
			Result struct {
				Offers []Offer `json:"offers"`
				Paging struct {
					NextPageToken string `json:"nextPageToken"`
				} `json:"paging"`
			} `json:"result"`
		}
		if err := c.roundTrip(req, &res); err != nil {
			return nil, err
		}
		out = append(out, res.Result.Offers...)
		pageToken = res.Result.Paging.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.auth(req)
	return c.roundTrip(req, out)
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return fmt.Errorf("yandex %s %s: statusCode=%d body=%s", req.Method, req.URL.Path, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
