package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nidhogg/agri-assist/internal/config"
)

const dailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum,relative_humidity_2m_mean"

// archiveLag is how far behind today the reanalysis archive is complete.
const archiveLag = 2 * 24 * time.Hour

// OpenMeteo fetches weather for one location from the Open-Meteo forecast
// and archive APIs. No API key is needed.
type OpenMeteo struct {
	endpoint string
	archive  string
	lat, lon float64
	location string
	client   *http.Client
	now      func() time.Time
}

// NewOpenMeteo creates a client from the realtime config section.
func NewOpenMeteo(cfg config.RealtimeConfig) *OpenMeteo {
	return &OpenMeteo{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		archive:  strings.TrimRight(cfg.ArchiveEndpoint, "/"),
		lat:      cfg.Latitude,
		lon:      cfg.Longitude,
		location: cfg.Location,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

type currentResp struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WeatherCode   int     `json:"weather_code"`
	} `json:"current"`
}

type dailyResp struct {
	Daily struct {
		Time          []string  `json:"time"`
		TempMax       []float64 `json:"temperature_2m_max"`
		TempMin       []float64 `json:"temperature_2m_min"`
		Precipitation []float64 `json:"precipitation_sum"`
		Humidity      []float64 `json:"relative_humidity_2m_mean"`
	} `json:"daily"`
}

// Current returns the live conditions.
func (o *OpenMeteo) Current(ctx context.Context) (*Document, error) {
	q := o.baseQuery()
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,weather_code")

	var resp currentResp
	if err := o.get(ctx, o.endpoint+"/forecast", q, &resp); err != nil {
		return nil, fmt.Errorf("current weather: %w", err)
	}
	c := resp.Current
	if c.Time == "" {
		return nil, nil
	}
	text := fmt.Sprintf(
		"Current weather in %s (%s): %s, temperature %.1f°C, humidity %.0f%%, precipitation %.1f mm, wind %.1f km/h.",
		o.location, c.Time, describeCode(c.WeatherCode), c.Temperature, c.Humidity, c.Precipitation, c.WindSpeed)
	return o.document(text, DataTypeLive, c.Time), nil
}

// Forecast returns the 7-day daily outlook.
func (o *OpenMeteo) Forecast(ctx context.Context) (*Document, error) {
	q := o.baseQuery()
	q.Set("daily", dailyFields)
	q.Set("forecast_days", "7")

	var resp dailyResp
	if err := o.get(ctx, o.endpoint+"/forecast", q, &resp); err != nil {
		return nil, fmt.Errorf("weather forecast: %w", err)
	}
	if len(resp.Daily.Time) == 0 {
		return nil, nil
	}
	text := renderDaily("7-day forecast for "+o.location, resp)
	return o.document(text, DataTypeForecast, resp.Daily.Time[0]), nil
}

// History returns the most recent seven archived days.
func (o *OpenMeteo) History(ctx context.Context) (*Document, error) {
	end := o.now().UTC().Add(-archiveLag)
	start := end.AddDate(0, 0, -6)
	q := o.baseQuery()
	q.Set("daily", dailyFields)
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", end.Format(time.DateOnly))

	var resp dailyResp
	if err := o.get(ctx, o.archive+"/archive", q, &resp); err != nil {
		return nil, fmt.Errorf("weather history: %w", err)
	}
	if len(resp.Daily.Time) == 0 {
		return nil, nil
	}
	text := renderDaily("Past 7 days weather in "+o.location, resp)
	return o.document(text, DataTypeHistory, resp.Daily.Time[0]), nil
}

func (o *OpenMeteo) baseQuery() url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(o.lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(o.lon, 'f', 4, 64))
	q.Set("timezone", "auto")
	return q
}

func (o *OpenMeteo) document(text, dataType, observed string) *Document {
	return &Document{
		Text: text,
		Metadata: map[string]string{
			"source":    SourceWeather,
			"data_type": dataType,
			"location":  o.location,
			"observed":  observed,
		},
	}
}

func (o *OpenMeteo) get(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("open-meteo %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func renderDaily(title string, r dailyResp) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString(":")
	d := r.Daily
	for i, day := range d.Time {
		fmt.Fprintf(&b, "\n%s: %.1f-%.1f°C, rain %.1f mm", day, at(d.TempMin, i), at(d.TempMax, i), at(d.Precipitation, i))
		if i < len(d.Humidity) {
			fmt.Fprintf(&b, ", humidity %.0f%%", d.Humidity[i])
		}
	}
	return b.String()
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// describeCode maps WMO weather codes to a short phrase.
func describeCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	}
	return "unsettled"
}
