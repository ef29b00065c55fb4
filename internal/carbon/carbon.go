// Package carbon looks up the regional carbon intensity forecast of the GB
// electricity grid from the National Grid ESO carbon intensity API.
package carbon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public carbon intensity API.
const DefaultBaseURL = "https://api.carbonintensity.org.uk"

// Period is the length of one forecast window.
const Period = 30 * time.Minute

// MaxSpan is the longest range requested in one call. The API rejects
// ranges of 14 days or more.
const MaxSpan = 13 * 24 * time.Hour

const (
	timeFormat = "2006-01-02T15:04Z"
	fetchSpan  = 2 * time.Hour
	cacheTTL   = time.Hour
)

// ErrNoData is returned when the API has no forecast for a window.
var ErrNoData = errors.New("carbon: no intensity data for window")

var outwardCode = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]?$`)

// ValidOutwardCode reports whether pc looks like the outward part of a UK
// postcode, e.g. "RH13" or "SW1A".
func ValidOutwardCode(pc string) bool {
	return outwardCode.MatchString(strings.ToUpper(strings.TrimSpace(pc)))
}

// Intensity is the forecast for one half-hour window.
type Intensity struct {
	From     time.Time
	Forecast int    // gCO2/kWh
	Index    string // "very low" .. "very high"
}

// Grams returns the emissions for kwh consumed in this window.
func (i Intensity) Grams(kwh float64) float64 {
	return float64(i.Forecast) * kwh
}

// Window returns the start of the half-hour window containing t.
func Window(t time.Time) time.Time {
	return t.UTC().Truncate(Period)
}

// Client fetches regional forecasts for one outward postcode and caches
// them per window.
type Client struct {
	baseURL  string
	postcode string
	http     *http.Client
	cache    *ttlcache.Cache[int64, Intensity]
	log      zerolog.Logger
}

// New creates a Client. An empty baseURL uses DefaultBaseURL.
func New(baseURL, postcode string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		postcode: strings.ToUpper(strings.TrimSpace(postcode)),
		http:     &http.Client{Timeout: 10 * time.Second},
		cache: ttlcache.New[int64, Intensity](
			ttlcache.WithTTL[int64, Intensity](cacheTTL),
			ttlcache.WithCapacity[int64, Intensity](1024),
		),
		log: log,
	}
}

// Lookup returns the forecast for the window containing t. A miss fetches
// the next couple of hours so later readings are served from the cache.
func (c *Client) Lookup(ctx context.Context, t time.Time) (Intensity, error) {
	w := Window(t)
	if item := c.cache.Get(w.Unix()); item != nil {
		return item.Value(), nil
	}

	if _, err := c.Fetch(ctx, w, w.Add(fetchSpan)); err != nil {
		return Intensity{}, err
	}
	if item := c.cache.Get(w.Unix()); item != nil {
		return item.Value(), nil
	}
	return Intensity{}, fmt.Errorf("%w %s", ErrNoData, w.Format(timeFormat))
}

// Fetch returns every forecast window between from and to, requesting at
// most MaxSpan per call. Results are cached.
func (c *Client) Fetch(ctx context.Context, from, to time.Time) ([]Intensity, error) {
	from, to = from.UTC(), to.UTC()
	if !to.After(from) {
		return nil, fmt.Errorf("carbon: empty range %s to %s", from.Format(timeFormat), to.Format(timeFormat))
	}

	var out []Intensity
	seen := make(map[int64]bool)
	for start := from; start.Before(to); start = start.Add(MaxSpan) {
		end := start.Add(MaxSpan)
		if end.After(to) {
			end = to
		}
		chunk, err := c.fetchRange(ctx, start, end)
		if err != nil {
			return nil, err
		}
		// Neighbouring chunks share a boundary window.
		for _, in := range chunk {
			if seen[in.From.Unix()] {
				continue
			}
			seen[in.From.Unix()] = true
			c.cache.Set(in.From.Unix(), in, ttlcache.DefaultTTL)
			out = append(out, in)
		}
	}
	return out, nil
}

type regionalResponse struct {
	Data struct {
		RegionID  int    `json:"regionid"`
		ShortName string `json:"shortname"`
		Data      []struct {
			From      string `json:"from"`
			Intensity struct {
				Forecast int    `json:"forecast"`
				Index    string `json:"index"`
			} `json:"intensity"`
		} `json:"data"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) fetchRange(ctx context.Context, from, to time.Time) ([]Intensity, error) {
	u := fmt.Sprintf("%s/regional/intensity/%s/%s/postcode/%s",
		c.baseURL, from.Format(timeFormat), to.Format(timeFormat), c.postcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get carbon intensity: %w", err)
	}
	defer resp.Body.Close()

	var body regionalResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && body.Error != nil {
			return nil, fmt.Errorf("get carbon intensity: %s: %s", body.Error.Code, body.Error.Message)
		}
		return nil, fmt.Errorf("get carbon intensity: unexpected status %s", resp.Status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode carbon intensity: %w", decodeErr)
	}

	out := make([]Intensity, 0, len(body.Data.Data))
	for _, d := range body.Data.Data {
		at, err := time.Parse(timeFormat, d.From)
		if err != nil {
			return nil, fmt.Errorf("decode carbon intensity: bad window %q: %w", d.From, err)
		}
		out = append(out, Intensity{From: at, Forecast: d.Intensity.Forecast, Index: d.Intensity.Index})
	}

	c.log.Debug().
		Str("postcode", c.postcode).
		Str("region", body.Data.ShortName).
		Time("from", from).
		Time("to", to).
		Int("windows", len(out)).
		Msg("fetched carbon intensity")
	return out, nil
}
