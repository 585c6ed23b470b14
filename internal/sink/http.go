package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"notespresence/internal/models"
)

const requestTimeout = 10 * time.Second

// HTTPWriter patches presence on a profile service.
type HTTPWriter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWriter targets the profile service at baseURL.
func NewHTTPWriter(baseURL string) *HTTPWriter {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPWriter{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Transport: transport, Timeout: requestTimeout},
	}
}

// Write sends PATCH /api/presence authenticated with the report's token.
func (w *HTTPWriter) Write(ctx context.Context, report models.PresenceReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode presence: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, w.baseURL+"/api/presence", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+report.Token)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnknownToken
	case resp.StatusCode >= 300:
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return nil
}

// Profile fetches the profile for token, mirroring the lookup the app does
// before its first presence write.
func (w *HTTPWriter) Profile(ctx context.Context, token string) (models.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/api/profile", nil)
	if err != nil {
		return models.UserProfile{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.client.Do(req)
	if err != nil {
		return models.UserProfile{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.UserProfile{}, ErrUnknownToken
	case resp.StatusCode >= 300:
		return models.UserProfile{}, fmt.Errorf("http %d", resp.StatusCode)
	}
	var profile models.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return models.UserProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}
