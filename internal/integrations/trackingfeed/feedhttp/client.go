package feedhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/integrations/trackingfeed"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type feedResp struct {
	Status string `json:"status"`
	Data   struct {
		StatusText string   `json:"statusText"`
		Location   string   `json:"location"`
		Progress   *int32   `json:"progress"`
		StatusAt   string   `json:"statusAt"`
	} `json:"data"`
}

func (c *Client) GetShipmentStatus(ctx context.Context, trackingNumber string) (trackingfeed.Result, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return trackingfeed.Result{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/shipment-status"

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("trackingNumber", trackingNumber)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return trackingfeed.Result{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Таймаут и сетевые сбои — восстановимые: следующий свип повторит.
		return trackingfeed.Result{}, errs.Wrap(errs.KindExternalFetch, err, "tracking feed request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return trackingfeed.Result{}, errs.New(errs.KindExternalFetch, fmt.Sprintf("tracking feed http %d", resp.StatusCode))
	}

	var r feedResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return trackingfeed.Result{}, errs.Wrap(errs.KindExternalFetch, err, "decode tracking feed response")
	}
	if r.Status != "ok" {
		return trackingfeed.Result{}, errs.New(errs.KindExternalFetch, fmt.Sprintf("tracking feed status=%s", r.Status))
	}

	out := trackingfeed.Result{
		StatusRaw: r.Data.StatusText,
		Progress:  r.Data.Progress,
	}
	if r.Data.Location != "" {
		loc := r.Data.Location
		out.Location = &loc
	}
	if r.Data.StatusAt != "" {
		if t, err := time.Parse(time.RFC3339, r.Data.StatusAt); err == nil {
			t = t.UTC()
			out.StatusAt = &t
		}
	}
	return out, nil
}
