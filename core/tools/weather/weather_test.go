package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newOpenMeteoStub(t *testing.T, geocodeBody string) (*httptest.Server, *int) {
	t.Helper()
	forecastCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "" {
			t.Errorf("expected name query parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geocodeBody))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		forecastCalls++
		if r.URL.Query().Get("latitude") != "47.6062" {
			t.Errorf("expected geocoded latitude, got %q", r.URL.Query().Get("latitude"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current_weather":{"temperature":52,"windspeed":10.5,"winddirection":180,"weathercode":3,"time":"2024-03-09T18:00"}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &forecastCalls
}

func TestWeatherGeocodesThenForecasts(t *testing.T) {
	server, forecastCalls := newOpenMeteoStub(t, `{"results":[{"name":"Seattle","country":"United States","latitude":47.6062,"longitude":-122.3321}]}`)
	client := NewClient(WithBaseURLs(server.URL, server.URL), WithHTTPClient(server.Client()))

	result, err := client.Lookup(context.Background(), Params{City: "Seattle"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if *forecastCalls != 1 {
		t.Fatalf("expected 1 forecast call, got %d", *forecastCalls)
	}
	if result.WeatherData.Temperature != 52 {
		t.Fatalf("expected temperature 52, got %v", result.WeatherData.Temperature)
	}
	if result.WeatherData.Location != "Seattle, United States" {
		t.Fatalf("expected location label, got %q", result.WeatherData.Location)
	}
}

func TestWeatherUnknownCity(t *testing.T) {
	server, forecastCalls := newOpenMeteoStub(t, `{}`)
	client := NewClient(WithBaseURLs(server.URL, server.URL), WithHTTPClient(server.Client()))

	_, err := client.Lookup(context.Background(), Params{City: "Atlantis"})
	if !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected location not found, got %v", err)
	}
	if *forecastCalls != 0 {
		t.Fatalf("expected no forecast call, got %d", *forecastCalls)
	}
}

func TestWeatherRequiresLocation(t *testing.T) {
	if _, err := NewClient().Lookup(context.Background(), Params{}); err == nil {
		t.Fatalf("expected error without a location")
	}
}

func TestWeatherToolThroughExecute(t *testing.T) {
	server, _ := newOpenMeteoStub(t, `{"results":[{"name":"Seattle","latitude":47.6062,"longitude":-122.3321}]}`)
	tool := New(WithBaseURLs(server.URL, server.URL), WithHTTPClient(server.Client()))

	output, err := tool.Execute(context.Background(), `{"city":"Seattle"}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output.(Result).WeatherData.WeatherCode != 3 {
		t.Fatalf("unexpected output %+v", output)
	}
}

func TestWeatherRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(WithBaseURLs(server.URL, server.URL), WithHTTPClient(server.Client()), WithRequestTimeout(20*time.Millisecond))
	latitude, longitude := 1.0, 2.0
	if _, err := client.Lookup(context.Background(), Params{Latitude: &latitude, Longitude: &longitude}); err == nil {
		t.Fatalf("expected timeout error")
	}
}
