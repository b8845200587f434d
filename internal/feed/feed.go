package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"transit-ingest/internal/record"
)

// Client fetches per-vehicle breadcrumb arrays from the upstream transit
// API. Thin I/O on purpose: fetch, decode, hand off.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchVehicle returns the day's breadcrumb records for one vehicle.
func (c *Client) FetchVehicle(ctx context.Context, vehicleID int) ([]record.Raw, error) {
	url := fmt.Sprintf("%s?vehicle_id=%d", c.baseURL, vehicleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch vehicle %d: %w", vehicleID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch vehicle %d: status %s", vehicleID, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vehicle %d: %w", vehicleID, err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var recs []record.Raw
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode vehicle %d: %w", vehicleID, err)
	}
	return recs, nil
}
