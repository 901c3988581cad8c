package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthChecker answers readiness probes against Ollama's /api/tags endpoint.
type HealthChecker struct {
	BaseURL string
	Client  *http.Client
}

func NewHealthChecker(baseURL string, timeout time.Duration, client ...*http.Client) *HealthChecker {
	var c *http.Client
	if len(client) > 0 && client[0] != nil {
		c = client[0]
	} else {
		c = &http.Client{Timeout: timeout}
	}
	return &HealthChecker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  c,
	}
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of the models the gateway has locally.
func (h *HealthChecker) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/api/tags", h.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tags request: %w", err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call tags endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tags endpoint returned status %d", resp.StatusCode)
	}

	var respBody tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}
	names := make([]string, 0, len(respBody.Models))
	for _, m := range respBody.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping reports whether the gateway is reachable and, when models are given,
// whether each of them is present. Model names match on the part before the
// tag, so "nomic-embed-text" accepts "nomic-embed-text:latest".
func (h *HealthChecker) Ping(ctx context.Context, models ...string) error {
	available, err := h.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, want := range models {
		if want == "" {
			continue
		}
		found := false
		for _, name := range available {
			if name == want || strings.SplitN(name, ":", 2)[0] == want {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("model %q not available on gateway", want)
		}
	}
	return nil
}
