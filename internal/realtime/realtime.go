// Package realtime routes topics to domain-specific live data feeds
// (pricing, weather, news) by keyword. Feeds fail soft: any error yields an
// empty list and the caller falls through to provider search.
package realtime

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sira-labs/sira/internal/search/models"
)

// Category names returned by Route.
const (
	CategoryCrypto      = "crypto"
	CategoryForex       = "forex"
	CategoryWeather     = "weather"
	CategoryEarthquakes = "earthquakes"
	CategoryNews        = "news"
)

// Dispatcher fetches live data for recognised topic categories.
type Dispatcher struct {
	client            *http.Client
	openWeatherAPIKey string
	weatherCity       string
	logger            *log.Logger
}

func NewDispatcher(client *http.Client, openWeatherAPIKey, weatherCity string, logger *log.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if weatherCity == "" {
		weatherCity = "Pune"
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[REALTIME] ", log.LstdFlags)
	}
	return &Dispatcher{
		client:            client,
		openWeatherAPIKey: openWeatherAPIKey,
		weatherCity:       weatherCity,
		logger:            logger,
	}
}

// Route maps a topic to a feed category by keyword. Unknown topics default
// to crypto, matching the dispatcher's historical behaviour.
func Route(topic string) string {
	t := strings.ToLower(topic)
	switch {
	case containsAny(t, "btc", "eth", "crypto", "bitcoin", "ethereum"):
		return CategoryCrypto
	case containsAny(t, "forex", "usd", "inr", "currency", "exchange rate"):
		return CategoryForex
	case containsAny(t, "weather", "temperature", "rain", "climate"):
		return CategoryWeather
	case containsAny(t, "earthquake", "seismic"):
		return CategoryEarthquakes
	case containsAny(t, "news", "headlines", "trending"):
		return CategoryNews
	default:
		return CategoryCrypto
	}
}

// Fetch returns live results for the topic's category.
func (d *Dispatcher) Fetch(ctx context.Context, topic string) []models.Result {
	switch Route(topic) {
	case CategoryForex:
		return d.fetchForex(ctx)
	case CategoryWeather:
		return d.fetchWeather(ctx, d.weatherCity)
	case CategoryEarthquakes:
		return d.fetchEarthquakes(ctx)
	case CategoryNews:
		return d.fetchTrendingNews(ctx)
	default:
		return d.fetchCrypto(ctx)
	}
}

func (d *Dispatcher) fetchCrypto(ctx context.Context) []models.Result {
	var out []models.Result
	for _, symbol := range []struct{ pair, name string }{
		{"BTCUSDT", "Bitcoin (BTC)"},
		{"ETHUSDT", "Ethereum (ETH)"},
	} {
		var ticker struct {
			Price string `json:"price"`
		}
		endpoint := "https://api.binance.com/api/v3/ticker/price?symbol=" + symbol.pair
		if err := d.getJSON(ctx, endpoint, &ticker); err != nil {
			continue
		}
		out = append(out, models.Result{
			Title:    "Live " + symbol.name + " Price",
			URL:      endpoint,
			Snippet:  fmt.Sprintf("%s: %s", symbol.pair, ticker.Price),
			Provider: "binance",
		})
	}
	return out
}

func (d *Dispatcher) fetchForex(ctx context.Context) []models.Result {
	var fx struct {
		Rates map[string]float64 `json:"rates"`
	}
	endpoint := "https://api.exchangerate.host/latest?base=USD&symbols=INR"
	if err := d.getJSON(ctx, endpoint, &fx); err != nil {
		return nil
	}
	rate, ok := fx.Rates["INR"]
	if !ok {
		return nil
	}
	return []models.Result{{
		Title:    "USD/INR Forex Rate",
		URL:      endpoint,
		Snippet:  fmt.Sprintf("USD -> INR: %g", rate),
		Provider: "exchangerate.host",
	}}
}

func (d *Dispatcher) fetchWeather(ctx context.Context, city string) []models.Result {
	if d.openWeatherAPIKey == "" {
		d.logger.Printf("openweather api key missing")
		return nil
	}
	var data struct {
		ID   int `json:"id"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}
	endpoint := fmt.Sprintf("https://api.openweathermap.org/data/2.5/weather?q=%s&appid=%s&units=metric",
		url.QueryEscape(city), d.openWeatherAPIKey)
	if err := d.getJSON(ctx, endpoint, &data); err != nil {
		return nil
	}
	desc := ""
	if len(data.Weather) > 0 {
		desc = data.Weather[0].Description
	}
	return []models.Result{{
		Title:    "Weather in " + city,
		URL:      fmt.Sprintf("https://openweathermap.org/city/%d", data.ID),
		Snippet:  fmt.Sprintf("%s. Temp: %.1f C, Feels like: %.1f C, Humidity: %d%%", desc, data.Main.Temp, data.Main.FeelsLike, data.Main.Humidity),
		Provider: "openweather",
	}}
}

func (d *Dispatcher) fetchEarthquakes(ctx context.Context) []models.Result {
	var eq struct {
		Features []struct {
			Properties struct {
				Mag   float64 `json:"mag"`
				Place string  `json:"place"`
				URL   string  `json:"url"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := d.getJSON(ctx, "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson", &eq); err != nil {
		return nil
	}
	var out []models.Result
	for i, f := range eq.Features {
		if i >= 5 {
			break
		}
		out = append(out, models.Result{
			Title:    fmt.Sprintf("Earthquake M%.1f", f.Properties.Mag),
			URL:      f.Properties.URL,
			Snippet:  fmt.Sprintf("Magnitude %.1f near %s", f.Properties.Mag, f.Properties.Place),
			Provider: "usgs",
		})
	}
	return out
}

func (d *Dispatcher) fetchTrendingNews(ctx context.Context) []models.Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://news.google.com/rss?hl=en-IN&gl=IN&ceid=IN:en", nil)
	if err != nil {
		return nil
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Printf("news feed fetch failed: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var feed struct {
		Channel struct {
			Items []struct {
				Title       string `xml:"title"`
				Link        string `xml:"link"`
				Description string `xml:"description"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil
	}
	var out []models.Result
	for i, item := range feed.Channel.Items {
		if i >= 5 {
			break
		}
		snippet := item.Description
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		out = append(out, models.Result{
			Title:    item.Title,
			URL:      item.Link,
			Snippet:  snippet,
			Provider: "google-news",
		})
	}
	return out
}

func (d *Dispatcher) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Printf("fetch failed for %s: %v", endpoint, err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
