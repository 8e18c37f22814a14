// Package weather provides the getWeatherTool tool backed by the Open-Meteo
// geocoding and forecast APIs.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koscakluka/ema-sonic/core/tools"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	Name        = "getWeatherTool"
	description = "Get the current weather for a city, or for a latitude and longitude when they are known."

	defaultGeocodingURL   = "https://geocoding-api.open-meteo.com"
	defaultForecastURL    = "https://api.open-meteo.com"
	defaultRequestTimeout = 3 * time.Second
)

var ErrLocationNotFound = errors.New("location not found")

type Params struct {
	City      string   `json:"city,omitempty" jsonschema:"description=Name of the city"`
	Latitude  *float64 `json:"latitude,omitempty" jsonschema:"description=Geographical WGS84 latitude of the location"`
	Longitude *float64 `json:"longitude,omitempty" jsonschema:"description=Geographical WGS84 longitude of the location"`
}

type Result struct {
	WeatherData Data `json:"weather_data"`
}

type Data struct {
	Location      string  `json:"location,omitempty"`
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection float64 `json:"winddirection"`
	WeatherCode   int     `json:"weathercode"`
	Time          string  `json:"time"`
}

type Client struct {
	httpClient   *http.Client
	geocodingURL string
	forecastURL  string
	timeout      time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURLs points the client at different geocoding and forecast hosts.
func WithBaseURLs(geocodingURL, forecastURL string) Option {
	return func(c *Client) {
		c.geocodingURL = strings.TrimRight(geocodingURL, "/")
		c.forecastURL = strings.TrimRight(forecastURL, "/")
	}
}

// WithRequestTimeout bounds each HTTP request made by the tool.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		geocodingURL: defaultGeocodingURL,
		forecastURL:  defaultForecastURL,
		timeout:      defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return "weather " + request.URL.Path
			}))}
	}
	return c
}

func New(opts ...Option) tools.Tool {
	client := NewClient(opts...)
	return tools.New(Name, description, client.Lookup)
}

// Lookup resolves the location if needed and fetches its current weather.
func (c *Client) Lookup(ctx context.Context, params Params) (Result, error) {
	var (
		latitude, longitude float64
		location            string
	)
	switch {
	case params.Latitude != nil && params.Longitude != nil:
		latitude, longitude = *params.Latitude, *params.Longitude
	case strings.TrimSpace(params.City) != "":
		place, err := c.geocode(ctx, strings.TrimSpace(params.City))
		if err != nil {
			return Result{}, err
		}
		latitude, longitude = place.Latitude, place.Longitude
		location = place.label()
	default:
		return Result{}, fmt.Errorf("either city or latitude and longitude are required")
	}

	current, err := c.forecast(ctx, latitude, longitude)
	if err != nil {
		return Result{}, err
	}
	current.Location = location
	return Result{WeatherData: current}, nil
}

type place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p place) label() string {
	if p.Country == "" {
		return p.Name
	}
	return p.Name + ", " + p.Country
}

func (c *Client) geocode(ctx context.Context, city string) (place, error) {
	query := url.Values{}
	query.Set("name", city)
	query.Set("count", "1")

	var response struct {
		Results []place `json:"results"`
	}
	if err := c.get(ctx, c.geocodingURL+"/v1/search?"+query.Encode(), &response); err != nil {
		return place{}, fmt.Errorf("failed to geocode %q: %w", city, err)
	}
	if len(response.Results) == 0 {
		return place{}, fmt.Errorf("%w: %s", ErrLocationNotFound, city)
	}
	return response.Results[0], nil
}

func (c *Client) forecast(ctx context.Context, latitude, longitude float64) (Data, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	query.Set("current_weather", "true")

	var response struct {
		CurrentWeather *Data `json:"current_weather"`
	}
	if err := c.get(ctx, c.forecastURL+"/v1/forecast?"+query.Encode(), &response); err != nil {
		return Data{}, fmt.Errorf("failed to fetch forecast: %w", err)
	}
	if response.CurrentWeather == nil {
		return Data{}, fmt.Errorf("forecast response has no current weather")
	}
	return *response.CurrentWeather, nil
}

func (c *Client) get(ctx context.Context, rawURL string, target any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
