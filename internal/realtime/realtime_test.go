package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteKeywords(t *testing.T) {
	t.Parallel()
	cases := []struct{ topic, want string }{
		{"BTC price today", CategoryCrypto},
		{"ethereum merge", CategoryCrypto},
		{"USD to INR exchange rate", CategoryForex},
		{"weather in pune", CategoryWeather},
		{"recent earthquake activity", CategoryEarthquakes},
		{"trending headlines", CategoryNews},
		{"something unrecognised", CategoryCrypto},
	}
	for _, c := range cases {
		if got := Route(c.topic); got != c.want {
			t.Fatalf("Route(%q) = %q, want %q", c.topic, got, c.want)
		}
	}
}

func TestFetchWeatherRequiresKey(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil, "", "Pune", nil)
	if got := d.fetchWeather(context.Background(), "Pune"); got != nil {
		t.Fatalf("expected nil without api key, got %+v", got)
	}
}

func TestGetJSONRejectsNon200(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.Client(), "", "", nil)
	var out map[string]any
	if err := d.getJSON(context.Background(), srv.URL, &out); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestGetJSONDecodes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"price": "65000.10"})
	}))
	defer srv.Close()

	d := NewDispatcher(srv.Client(), "", "", nil)
	var out struct {
		Price string `json:"price"`
	}
	if err := d.getJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if out.Price != "65000.10" {
		t.Fatalf("price = %q", out.Price)
	}
}
