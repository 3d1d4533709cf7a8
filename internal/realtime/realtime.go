package realtime

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Data types carried in Document metadata under "data_type".
const (
	DataTypeLive     = "live_weather"
	DataTypeForecast = "weather_forecast"
	DataTypeHistory  = "weather_history"

	SourceWeather = "weather"
)

// Document is one real-time snapshot rendered as a context passage.
type Document struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Provider supplies live data for the configured location. Each method
// returns nil without error when nothing is available.
type Provider interface {
	Current(ctx context.Context) (*Document, error)
	Forecast(ctx context.Context) (*Document, error)
	History(ctx context.Context) (*Document, error)
}

// Snapshots fetches current, forecast and history concurrently and returns
// the non-nil ones in that order. A failing fetch is dropped; the first
// error is returned only when nothing could be fetched.
func Snapshots(ctx context.Context, p Provider) ([]Document, error) {
	fetchers := []func(context.Context) (*Document, error){p.Current, p.Forecast, p.History}
	docs := make([]*Document, len(fetchers))
	errs := make([]error, len(fetchers))

	var g errgroup.Group
	for i, fetch := range fetchers {
		g.Go(func() error {
			docs[i], errs[i] = fetch(ctx)
			return nil
		})
	}
	g.Wait()

	var out []Document
	var firstErr error
	for i, d := range docs {
		if errs[i] != nil && firstErr == nil {
			firstErr = errs[i]
		}
		if d != nil {
			out = append(out, *d)
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
