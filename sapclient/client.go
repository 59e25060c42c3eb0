package sapclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrNotConfigured = errors.New("sap api base url is empty")

// Client is the ERP boundary used by the reconciliation workflows.
type Client interface {
	GetGoodsIssueEvents(ctx context.Context) ([]GoodsIssueEvent, error)
	GetOrderItems(ctx context.Context, salesOrder string) ([]OrderItem, error)
}

type Option func(*sapClient)

func WithHTTPClient(h *http.Client) Option {
	return func(c *sapClient) { c.http = h }
}

func WithRateLimit(perMinute int) Option {
	return func(c *sapClient) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

type sapClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   *rate.Limiter
}

// New builds a client for baseURL. An empty apiKey sends no key header.
func New(baseURL string, apiKey string, opts ...Option) (Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	c := &sapClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(apiKey),
		apiKeyHdr: "X-API-Key",
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromEnv reads SAP_API_BASE_URL, SAP_API_KEY, SAP_API_KEY_HEADER and
// SAP_RATE_LIMIT_PER_MIN.
func NewFromEnv() (Client, error) {
	var opts []Option
	if v := strings.TrimSpace(os.Getenv("SAP_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts = append(opts, WithRateLimit(n))
		}
	}
	if hdr := strings.TrimSpace(os.Getenv("SAP_API_KEY_HEADER")); hdr != "" {
		opts = append(opts, func(c *sapClient) { c.apiKeyHdr = hdr })
	}
	return New(os.Getenv("SAP_API_BASE_URL"), os.Getenv("SAP_API_KEY"), opts...)
}

func (c *sapClient) GetGoodsIssueEvents(ctx context.Context) ([]GoodsIssueEvent, error) {
	var parsed goodsIssueResponse
	if err := c.get(ctx, "/goods-issues/pending", nil, &parsed); err != nil {
		return nil, err
	}
	events := make([]GoodsIssueEvent, 0, len(parsed.Results))
	for _, row := range parsed.Results {
		ev, err := row.toEvent()
		if err != nil {
			return nil, fmt.Errorf("goods issue %s/%s: %w", row.SalesOrder, row.SalesOrderItem, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *sapClient) GetOrderItems(ctx context.Context, salesOrder string) ([]OrderItem, error) {
	var parsed orderItemsResponse
	params := url.Values{}
	params.Set("sales_order", salesOrder)
	if err := c.get(ctx, "/sales-orders/items", params, &parsed); err != nil {
		return nil, err
	}
	items := make([]OrderItem, 0, len(parsed.Results))
	for _, row := range parsed.Results {
		items = append(items, row.toItem())
	}
	return items, nil
}

func (c *sapClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sap api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
