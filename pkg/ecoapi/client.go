// Package ecoapi is the HTTP client for the recycling backend: image
// classification, point balances, rewards, history and form records.
package ecoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/ecorecycle/pkg/types"
)

const (
	defaultTimeout = 15 * time.Second
	// maxErrorBody bounds how much of an error response is kept in APIError
	maxErrorBody = 512
)

// APIError is returned for non-2xx responses and for 2xx bodies carrying an
// "error" field.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: server returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Client talks to the recycling backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a backend client for serverURL
func NewClient(serverURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q (only http and https are supported)", parsed.Scheme)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(parsed.String(), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized server URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

type classifyResponse struct {
	Resultado *struct {
		PredictedClass string          `json:"predicted_class"`
		Confidence     json.RawMessage `json:"confidence"`
	} `json:"resultado"`
	// some deployments answer with the prediction at the top level
	PredictedClass string          `json:"predicted_class"`
	Confidence     json.RawMessage `json:"confidence"`
	Filename       string          `json:"filename"`
	Fecha          string          `json:"fecha"`
	Error          string          `json:"error"`
}

func (r classifyResponse) result() *types.ClassificationResult {
	res := &types.ClassificationResult{
		RawLabel:   r.PredictedClass,
		Confidence: rawNumber(r.Confidence),
		Filename:   r.Filename,
		Date:       r.Fecha,
		ReceivedAt: time.Now(),
	}
	if r.Resultado != nil {
		res.RawLabel = r.Resultado.PredictedClass
		res.Confidence = rawNumber(r.Resultado.Confidence)
	}
	return res
}

// Classify uploads a photo to POST /classify as multipart field "file"
func (c *Client) Classify(ctx context.Context, filename string, image []byte) (*types.ClassificationResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/classify", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}

	var resp classifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse classify response: %w", err)
	}
	if resp.Error != "" {
		return nil, &APIError{StatusCode: http.StatusOK, Endpoint: "/classify", Message: resp.Error}
	}
	return resp.result(), nil
}

// Balance returns the spendable balance of a user
func (c *Client) Balance(ctx context.Context, email string) (int, error) {
	fields, err := c.getObject(ctx, "/usuarios/"+url.PathEscape(email)+"/puntos")
	if err != nil {
		return 0, err
	}
	return intField(fields, "puntos"), nil
}

// LifetimeTotal returns the points a user has ever earned
func (c *Client) LifetimeTotal(ctx context.Context, email string) (int, error) {
	fields, err := c.getObject(ctx, "/usuarios/"+url.PathEscape(email)+"/puntos-acumulados")
	if err != nil {
		return 0, err
	}
	return intField(fields, "puntos_acumulados"), nil
}

// AddPoints credits points to a user
func (c *Client) AddPoints(ctx context.Context, email string, points int, detail string) error {
	payload := struct {
		Correo  string `json:"correo"`
		Puntos  int    `json:"puntos"`
		Detalle string `json:"detalle,omitempty"`
	}{email, points, detail}
	_, err := c.postJSON(ctx, "/puntos/agregar", payload)
	return err
}

// Redeem spends points on a reward identified by name. A rejection comes back
// as an *APIError whose Message is the backend's explanation.
func (c *Client) Redeem(ctx context.Context, email, reward string) (string, error) {
	payload := struct {
		Correo string `json:"correo"`
		Premio string `json:"premio"`
	}{email, reward}
	body, err := c.postJSON(ctx, "/puntos/canjear", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Mensaje string `json:"mensaje"`
		Error   string `json:"error"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to parse redeem response: %w", err)
		}
	}
	if resp.Error != "" {
		return "", &APIError{StatusCode: http.StatusOK, Endpoint: "/puntos/canjear", Message: resp.Error}
	}
	return resp.Mensaje, nil
}

// Rewards returns the reward catalog. IDs are assigned 1..n in server order.
func (c *Client) Rewards(ctx context.Context) ([]types.Reward, error) {
	body, err := c.do(ctx, http.MethodGet, "/premios", "", nil)
	if err != nil {
		return nil, err
	}
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rewards: %w", err)
	}
	rewards := make([]types.Reward, 0, len(raw))
	for i, r := range raw {
		stock := intField(r, "stock")
		if stock < 0 {
			stock = 0
		}
		rewards = append(rewards, types.Reward{
			ID:             i + 1,
			Name:           stringField(r, "nombre"),
			RequiredPoints: intField(r, "puntos_necesarios"),
			Stock:          stock,
			Partner:        stringField(r, "partner"),
		})
	}
	return rewards, nil
}

// History returns the raw points ledger of a user
func (c *Client) History(ctx context.Context, email string) ([]types.RawHistoryEntry, error) {
	body, err := c.do(ctx, http.MethodGet, "/historial/"+url.PathEscape(email), "", nil)
	if err != nil {
		return nil, err
	}
	var entries []types.RawHistoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	return entries, nil
}

// Classifications returns past classifications. limit > 0 uses the filtered endpoint.
func (c *Client) Classifications(ctx context.Context, limit int) ([]types.ClassificationResult, error) {
	path := "/clasificaciones"
	if limit > 0 {
		path = "/clasificaciones/filtradas?limite=" + strconv.Itoa(limit)
	}
	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var raw []classifyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse classifications: %w", err)
	}
	out := make([]types.ClassificationResult, 0, len(raw))
	for _, r := range raw {
		out = append(out, *r.result())
	}
	return out, nil
}

// SaveRecord uploads a submitted recycling form
func (c *Client) SaveRecord(ctx context.Context, rec types.RecyclingRecord) error {
	_, err := c.postJSON(ctx, "/save-recycling-record", rec)
	return err
}

func (c *Client) getObject(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(body)) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		// a non-object body carries no usable fields
		c.logger.Debug("non-object response", zap.String("path", path), zap.Error(err))
		return map[string]json.RawMessage{}, nil
	}
	return fields, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data))
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: path, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

// errorMessage extracts "error" or "detail" from a JSON error body
func errorMessage(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}

// intField reads a count. Values outside the int32 range are malformed and
// read as 0.
func intField(fields map[string]json.RawMessage, key string) int {
	f := rawNumber(fields[key])
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		return ""
	}
	return s
}

// rawNumber coerces a JSON value to a number: numbers and numeric strings are
// parsed, anything else (absent, null, malformed, NaN, infinite) is 0.
func rawNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}
