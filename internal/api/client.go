// ABOUTME: Signed HTTP client for the CloudStack-style management API.
// ABOUTME: Commands are GET requests with a command parameter; responses are wrapped in "<command>response".

package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
	"go.uber.org/zap"

	"github.com/2389/consoleview/internal/engine"
	"github.com/2389/consoleview/plugins/core"
)

// DefaultTimeout applies when Config.Timeout is zero
const DefaultTimeout = 30 * time.Second

// Config configures a Client
type Config struct {
	BaseURL   string // e.g. http://localhost:8080/client/api
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// Client calls management API commands
type Client struct {
	baseURL   string
	apiKey    string
	secretKey string
	http      *httpclient.Client
}

// Error is an error response from the management API
type Error struct {
	Command    string
	StatusCode int
	Code       int
	Text       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed (%d): %s", e.Command, e.Code, e.Text)
}

// NewClient creates a client. Dispatches are never retried automatically.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(timeout),
			httpclient.WithRetryCount(0),
		),
	}
}

// Call runs a command and returns the body of its "<command>response" envelope.
func (c *Client) Call(ctx context.Context, command string, params url.Values) (map[string]any, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("command", command)
	q.Set("response", "json")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
		q.Set("signature", Sign(q, c.secretKey))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+encode(q), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", command, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if resp == nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	zap.L().Debug("management api call",
		zap.String("command", command),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if readErr != nil {
		return nil, fmt.Errorf("read %s response: %w", command, readErr)
	}

	inner, decodeErr := unwrap(body)
	if apiErr := errorFrom(command, resp.StatusCode, inner); apiErr != nil {
		return nil, apiErr
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &Error{Command: command, StatusCode: resp.StatusCode, Code: resp.StatusCode, Text: http.StatusText(resp.StatusCode)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s response: %w", command, decodeErr)
	}
	return inner, nil
}

// Invoke dispatches an action command with its payload.
func (c *Client) Invoke(ctx context.Context, api string, payload engine.Payload) (engine.Result, error) {
	params := url.Values{}
	for k, v := range payload {
		params.Set(k, engine.FormatValue(v))
	}

	inner, err := c.Call(ctx, api, params)
	if err != nil {
		return engine.Result{}, err
	}

	res := engine.Result{Data: inner}
	if jobID, ok := inner["jobid"].(string); ok {
		res.JobID = jobID
	}
	return res, nil
}

// List runs a list command and returns its records and reported count.
func (c *Client) List(ctx context.Context, api string, params url.Values) ([]core.Record, int, error) {
	inner, err := c.Call(ctx, api, params)
	if err != nil {
		return nil, 0, err
	}

	var records []core.Record
	for k, v := range inner {
		items, ok := v.([]any)
		if !ok || k == "uuidList" {
			continue
		}
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				records = append(records, core.Record(m))
			}
		}
		break
	}

	count := len(records)
	if n, ok := inner["count"].(float64); ok {
		count = int(n)
	}
	return records, count, nil
}

// Get fetches a single record by id using a list command.
func (c *Client) Get(ctx context.Context, api, id string) (core.Record, error) {
	records, _, err := c.List(ctx, api, url.Values{"id": {id}})
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, &Error{Command: api, StatusCode: http.StatusNotFound, Code: 431, Text: fmt.Sprintf("unable to find resource with id %s", id)}
}

// Sign computes the request signature: HMAC-SHA1 over the sorted,
// lowercased query string, base64 encoded.
func Sign(q url.Values, secret string) string {
	unsigned := url.Values{}
	for k, v := range q {
		if k == "signature" {
			continue
		}
		unsigned[k] = v
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(strings.ToLower(encode(unsigned))))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// encode is url.Values.Encode with spaces as %20.
func encode(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escape(k))
			b.WriteByte('=')
			b.WriteString(escape(v))
		}
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// unwrap returns the object under the single "*response" key.
func unwrap(body []byte) (map[string]any, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	for k, raw := range envelope {
		if !strings.HasSuffix(strings.ToLower(k), "response") {
			continue
		}
		var inner map[string]any
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		if inner == nil {
			inner = map[string]any{}
		}
		return inner, nil
	}
	return nil, fmt.Errorf("no response envelope in %d bytes", len(body))
}

func errorFrom(command string, status int, inner map[string]any) *Error {
	if inner == nil {
		return nil
	}
	code, ok := inner["errorcode"].(float64)
	if !ok {
		return nil
	}
	text, _ := inner["errortext"].(string)
	return &Error{Command: command, StatusCode: status, Code: int(code), Text: text}
}
