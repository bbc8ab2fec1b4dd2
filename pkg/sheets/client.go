// Package sheets is a minimal Google Sheets v4 values client, covering only
// the range reads and writes the purchase ledger needs.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
)

const baseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// scope limits the service account to spreadsheet access.
const scope = "https://www.googleapis.com/auth/spreadsheets"

// Client talks to the Sheets values API for one spreadsheet.
type Client struct {
	spreadsheetID string
	httpClient    *http.Client
}

// ClientConfig holds configuration for the Sheets client.
type ClientConfig struct {
	SpreadsheetID   string
	CredentialsFile string // service-account JSON key
	Timeout         time.Duration
}

// ValueRange is one rectangular block of cell values.
type ValueRange struct {
	Range  string  `json:"range"`
	Values [][]any `json:"values"`
}

// NewClient creates a Sheets client authenticated as a service account.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("service account credentials file is required")
	}

	keyData, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(keyData, scope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := jwtConfig.Client(ctx)
	httpClient.Timeout = timeout

	log.Debug().
		Str("spreadsheet", cfg.SpreadsheetID).
		Str("serviceAccount", jwtConfig.Email).
		Msg("Sheets client configured")

	return &Client{
		spreadsheetID: cfg.SpreadsheetID,
		httpClient:    httpClient,
	}, nil
}

// ReadRange fetches all cell values in an A1 range. Cells are returned as
// strings; trailing empty cells are omitted by the API.
func (c *Client) ReadRange(ctx context.Context, rangeA1 string) ([][]string, error) {
	path := fmt.Sprintf("/%s/values/%s", c.spreadsheetID, url.PathEscape(rangeA1))

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Values [][]any `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode values response: %w", err)
	}

	rows := make([][]string, len(result.Values))
	for i, raw := range result.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = fmt.Sprintf("%v", cell)
		}
		rows[i] = row
	}
	return rows, nil
}

// UpdateRange overwrites one A1 range with raw (unparsed) values.
func (c *Client) UpdateRange(ctx context.Context, rangeA1 string, values [][]any) error {
	path := fmt.Sprintf("/%s/values/%s?valueInputOption=RAW", c.spreadsheetID, url.PathEscape(rangeA1))

	body, err := json.Marshal(ValueRange{Range: rangeA1, Values: values})
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// BatchUpdate overwrites several ranges in one API call.
func (c *Client) BatchUpdate(ctx context.Context, ranges []ValueRange) error {
	if len(ranges) == 0 {
		return nil
	}

	path := fmt.Sprintf("/%s/values:batchUpdate", c.spreadsheetID)
	body, err := json.Marshal(struct {
		ValueInputOption string       `json:"valueInputOption"`
		Data             []ValueRange `json:"data"`
	}{
		ValueInputOption: "RAW",
		Data:             ranges,
	})
	if err != nil {
		return err
	}

	resp, err := c.request(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

// request performs an API request and normalizes error responses.
func (c *Client) request(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		err := fmt.Errorf("sheets API error %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == 401 || resp.StatusCode == 403 {
			return nil, fmt.Errorf("authentication error: %w", err)
		}
		if resp.StatusCode == 429 {
			return nil, fmt.Errorf("rate limited: %w", err)
		}
		return nil, err
	}

	return resp, nil
}
