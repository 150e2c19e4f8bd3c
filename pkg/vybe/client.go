package vybe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrUnavailable means the API could not serve the request this cycle.
// Callers treat it as "no data", never as fatal.
var ErrUnavailable = errors.New("vybe: data unavailable")

// Client talks to the Vybe REST API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// TokenPrice fetches the current price record for a mint.
func (c *Client) TokenPrice(ctx context.Context, mint string) (*TokenPrice, error) {
	var p TokenPrice
	if err := c.getJSON(ctx, "/token/"+url.PathEscape(mint), &p); err != nil {
		return nil, err
	}
	if p.MintAddress == "" {
		p.MintAddress = mint
	}
	return &p, nil
}

// RecentTransfers fetches the most recent transfers touching a wallet,
// newest first.
func (c *Client) RecentTransfers(ctx context.Context, wallet string, limit int) ([]Transfer, error) {
	var resp struct {
		Transfers []Transfer `json:"transfers"`
	}
	path := fmt.Sprintf("/token/transfers?feePayer=%s&limit=%d&sortByDesc=blockTime", url.QueryEscape(wallet), limit)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

// RecentSignatures is a cheaper probe than RecentTransfers: signatures only,
// newest first. Used to short-circuit reconciliation when nothing changed.
func (c *Client) RecentSignatures(ctx context.Context, wallet string, limit int) ([]string, error) {
	var resp struct {
		Transfers []struct {
			Signature string `json:"signature"`
		} `json:"transfers"`
	}
	path := fmt.Sprintf("/token/transfers?feePayer=%s&limit=%d&sortByDesc=blockTime&fields=signature", url.QueryEscape(wallet), limit)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	sigs := make([]string, 0, len(resp.Transfers))
	for _, t := range resp.Transfers {
		sigs = append(sigs, t.Signature)
	}
	return sigs, nil
}

// KnownAccounts fetches labeled accounts, e.g. label "kol" for ranked traders.
func (c *Client) KnownAccounts(ctx context.Context, label string) ([]KnownAccount, error) {
	var resp struct {
		Accounts []KnownAccount `json:"accounts"`
	}
	if err := c.getJSON(ctx, "/account/known-accounts?labels="+url.QueryEscape(label), &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return nil
}
