// Package backend talks to the AgroScan HTTP API: field metadata,
// evidence image upload and detection record creation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/errors"
	"github.com/agroscan/leafscan-go/internal/logging"
	"github.com/agroscan/leafscan-go/internal/synthesis"
)

// Field is the backend's field metadata as used by the synthesizer.
type Field struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	PlantCount int    `json:"cant_plants"`
}

// Client is the HTTP client for the AgroScan backend.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	fieldCache *gocache.Cache
	log        *slog.Logger
}

// New creates a backend client from settings.
func New(settings *conf.BackendSettings) *Client {
	log := logging.ForService("backend")
	if log == nil {
		log = slog.Default().With("service", "backend")
	}
	return &Client{
		BaseURL:    strings.TrimRight(settings.BaseURL, "/"),
		Token:      settings.Token,
		HTTPClient: &http.Client{Timeout: settings.Timeout},
		fieldCache: gocache.New(settings.FieldCacheTTL, 2*settings.FieldCacheTTL),
		log:        log,
	}
}

// GetField fetches field metadata, serving repeat lookups from a TTL cache.
func (c *Client) GetField(ctx context.Context, fieldID int) (*Field, error) {
	cacheKey := fmt.Sprintf("field-%d", fieldID)
	if cached, found := c.fieldCache.Get(cacheKey); found {
		return cached.(*Field), nil
	}

	endpoint := fmt.Sprintf("%s/fields/%d", c.BaseURL, fieldID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryHTTP).
			NetworkContext(endpoint, c.HTTPClient.Timeout).
			Build()
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, c.handleNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServerRejectedError{Code: resp.StatusCode, Body: string(body)}
	}

	var field Field
	if err := json.NewDecoder(resp.Body).Decode(&field); err != nil {
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryHTTP).
			Context("endpoint", endpoint).
			Build()
	}

	c.fieldCache.Set(cacheKey, &field, gocache.DefaultExpiration)
	c.log.Debug("Fetched field metadata", "field_id", fieldID, "plant_count", field.PlantCount)
	return &field, nil
}

// UploadImage uploads one evidence image as multipart form data and
// returns the server-assigned image id.
func (c *Client) UploadImage(ctx context.Context, path string, plaguePercentage float64) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryUpload).
			FileContext(path, int64(len(data))).
			Build()
	}
	if _, err := part.Write(data); err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryUpload).
			FileContext(path, int64(len(data))).
			Build()
	}
	if err := writer.WriteField("porcentaje_plaga", fmt.Sprintf("%.2f", plaguePercentage)); err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryUpload).
			Build()
	}
	if err := writer.Close(); err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryUpload).
			Build()
	}

	endpoint := c.BaseURL + "/photo/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryUpload).
			NetworkContext(endpoint, c.HTTPClient.Timeout).
			Build()
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, c.handleNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &ServerRejectedError{Code: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		IDImage int `json:"id_image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryUpload).
			Context("endpoint", endpoint).
			Build()
	}

	c.log.Debug("Uploaded evidence image", "path", path, "id_image", payload.IDImage)
	return payload.IDImage, nil
}

// CreateDetection persists the synthesized record and returns the
// server-assigned detection id. The client does not retry this call.
func (c *Client) CreateDetection(ctx context.Context, record *synthesis.Record) (int, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategorySynthesis).
			Build()
	}

	endpoint := c.BaseURL + "/detection/create"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryHTTP).
			NetworkContext(endpoint, c.HTTPClient.Timeout).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, c.handleNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &ServerRejectedError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, errors.New(err).
			Component("backend").
			Category(errors.CategoryHTTP).
			Context("endpoint", endpoint).
			Build()
	}

	c.log.Info("Detection record created",
		"detection_id", payload.ID,
		"field_id", record.FieldID,
		"result", record.Result,
		"images", len(record.ImageIDs))
	return payload.ID, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// handleNetworkError maps transport failures onto the upload error
// taxonomy and logs them with enough detail to triage connectivity issues.
func (c *Client) handleNetworkError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.log.Warn("Network request timed out", "error", err)
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) {
			c.log.Error("DNS resolution failed", "url", urlErr.URL, "error", err)
			return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
		}
	}
	c.log.Error("Network error occurred", "error", err)
	return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
}
