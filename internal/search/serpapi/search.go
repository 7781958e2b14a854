package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sira-labs/sira/internal/search/models"
)

// Search fetches Google results through SerpAPI.
// https://serpapi.com/search-api
type Search struct {
	ApiKey string
	Client *http.Client
}

func (s Search) Fetch(ctx context.Context, topic string, k int) ([]models.Result, error) {
	if s.ApiKey == "" {
		return nil, fmt.Errorf("serpapi: api key missing")
	}
	q := url.Values{}
	q.Set("q", topic)
	q.Set("api_key", s.ApiKey)
	q.Set("engine", "google")
	q.Set("num", fmt.Sprintf("%d", k))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://serpapi.com/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi: status %d", resp.StatusCode)
	}

	var raw struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, r := range raw.OrganicResults {
		if k > 0 && i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}
