package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"moradia/api/internal/config"
)

// ErrNoResults means the geocoding provider resolved nothing for the input.
var ErrNoResults = errors.New("no geocoding results")

const addressFallback = "Endereço não encontrado."

// Geocoder resolves coordinates against nominatim, caching responses in
// redis so repeated edits of the same location do not hit the provider.
type Geocoder struct {
	http  *http.Client
	cache *redis.Client
	cfg   config.GeocodeConfig
	log   zerolog.Logger
}

func NewGeocoder(cfg config.GeocodeConfig, cache *redis.Client, log zerolog.Logger) *Geocoder {
	return &Geocoder{
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cache,
		cfg:   cfg,
		log:   log,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road          string `json:"road"`
		HouseNumber   string `json:"house_number"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		State         string `json:"state"`
		Postcode      string `json:"postcode"`
	} `json:"address"`
}

// ReverseGeocode returns a formatted street address for the coordinates.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	cacheKey := fmt.Sprintf("geo:rev:%.6f:%.6f", lat, lng)
	if cached, err := g.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
		return cached, nil
	}

	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	var payload reverseResponse
	if err := g.get(ctx, "/reverse", query, &payload); err != nil {
		return "", err
	}

	address := formatAddress(payload)

	if err := g.cache.Set(ctx, cacheKey, address, g.cfg.CacheTTL).Err(); err != nil {
		g.log.Warn().Err(err).Msg("geocode cache write failed")
	}

	return address, nil
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Search forward-geocodes a free-form address into coordinates.
func (g *Geocoder) Search(ctx context.Context, address string) (lat string, lng string, err error) {
	cacheKey := "geo:fwd:" + address
	if cached, cerr := g.cache.Get(ctx, cacheKey).Result(); cerr == nil && cached != "" {
		var result searchResult
		if jerr := json.Unmarshal([]byte(cached), &result); jerr == nil {
			return result.Lat, result.Lon, nil
		}
	}

	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")

	var results []searchResult
	if err := g.get(ctx, "/search", query, &results); err != nil {
		return "", "", err
	}
	if len(results) == 0 {
		return "", "", ErrNoResults
	}

	if encoded, jerr := json.Marshal(results[0]); jerr == nil {
		if cerr := g.cache.Set(ctx, cacheKey, encoded, g.cfg.CacheTTL).Err(); cerr != nil {
			g.log.Warn().Err(cerr).Msg("geocode cache write failed")
		}
	}

	return results[0].Lat, results[0].Lon, nil
}

func (g *Geocoder) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode geocode response: %w", err)
	}
	return nil
}

func formatAddress(payload reverseResponse) string {
	a := payload.Address

	suburb := a.Suburb
	if suburb == "" {
		suburb = a.Neighbourhood
	}
	city := a.City
	if city == "" {
		city = a.Town
	}
	if city == "" {
		city = a.Village
	}

	parts := make([]string, 0, 6)
	for _, part := range []string{a.Road, a.HouseNumber, suburb, city, a.State, a.Postcode} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	if len(parts) == 0 {
		if payload.DisplayName != "" {
			return payload.DisplayName
		}
		return addressFallback
	}

	return strings.Join(parts, ", ")
}
