package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nidhogg/agri-assist/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func newOpenMeteoServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("current") != "":
			w.Write([]byte(`{"current":{"time":"2026-10-15T09:00","temperature_2m":29.4,"relative_humidity_2m":78,"precipitation":0.2,"wind_speed_10m":6.1,"weather_code":61}}`))
		case r.URL.Path == "/archive":
			w.Write([]byte(`{"daily":{"time":["2026-10-07","2026-10-08"],"temperature_2m_max":[32,31],"temperature_2m_min":[24,23.5],"precipitation_sum":[0,12.4]}}`))
		default:
			w.Write([]byte(`{"daily":{"time":["2026-10-15","2026-10-16"],"temperature_2m_max":[31,30],"temperature_2m_min":[24,24],"precipitation_sum":[3,8],"relative_humidity_2m_mean":[80,85]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func testClient(srvURL string) *OpenMeteo {
	om := NewOpenMeteo(config.RealtimeConfig{
		Endpoint:        srvURL,
		ArchiveEndpoint: srvURL,
		Latitude:        21.33,
		Longitude:       83.62,
		Location:        "Bargarh, Odisha",
	})
	om.now = func() time.Time { return time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC) }
	return om
}

func TestOpenMeteoDocuments(t *testing.T) {
	srv, paths := newOpenMeteoServer(t)
	om := testClient(srv.URL)
	ctx := context.Background()

	cur, err := om.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, DataTypeLive, cur.Metadata["data_type"])
	assert.Equal(t, SourceWeather, cur.Metadata["source"])
	assert.Contains(t, cur.Text, "rain")
	assert.Contains(t, cur.Text, "29.4°C")

	fc, err := om.Forecast(ctx)
	require.NoError(t, err)
	assert.Equal(t, DataTypeForecast, fc.Metadata["data_type"])
	assert.Contains(t, fc.Text, "2026-10-16: 24.0-30.0°C, rain 8.0 mm, humidity 85%")

	hist, err := om.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, DataTypeHistory, hist.Metadata["data_type"])
	assert.Contains(t, hist.Text, "rain 12.4 mm")
	assert.NotContains(t, hist.Text, "humidity")

	require.Len(t, *paths, 3)
	assert.Contains(t, (*paths)[2], "start_date=2026-10-07")
	assert.Contains(t, (*paths)[2], "end_date=2026-10-13")
}

func TestOpenMeteoErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Current(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type stubProvider struct {
	current, forecast, history *Document
	err                        error
	calls                      atomic.Int32
}

func (s *stubProvider) Current(context.Context) (*Document, error) {
	s.calls.Add(1)
	return s.current, nil
}

func (s *stubProvider) Forecast(context.Context) (*Document, error) {
	s.calls.Add(1)
	return s.forecast, s.err
}

func (s *stubProvider) History(context.Context) (*Document, error) {
	s.calls.Add(1)
	return s.history, nil
}

func doc(kind string) *Document {
	return &Document{Text: kind, Metadata: map[string]string{"data_type": kind}}
}

func TestSnapshotsOrderAndPartialFailure(t *testing.T) {
	p := &stubProvider{current: doc(DataTypeLive), history: doc(DataTypeHistory), err: errors.New("timeout")}
	docs, err := Snapshots(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, DataTypeLive, docs[0].Text)
	assert.Equal(t, DataTypeHistory, docs[1].Text)

	_, err = Snapshots(context.Background(), &stubProvider{err: errors.New("down")})
	assert.EqualError(t, err, "down")

	docs, err = Snapshots(context.Background(), &stubProvider{})
	assert.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDescribeCode(t *testing.T) {
	assert.Equal(t, "clear sky", describeCode(0))
	assert.Equal(t, "rain", describeCode(81))
	assert.Equal(t, "thunderstorm", describeCode(95))
	assert.True(t, strings.HasPrefix(describeCode(200), "thunder"))
}

func TestCacheServesFromRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })
	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { rdb.Close() })

	up := &stubProvider{current: doc(DataTypeLive)}
	c := NewCache(up, rdb, "agri:weather:", time.Minute, zap.NewNop())

	first, err := c.Current(ctx)
	require.NoError(t, err)
	second, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), up.calls.Load())

	ttl, err := rdb.TTL(ctx, "agri:weather:"+DataTypeLive).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// nil snapshots are not cached
	none, err := c.Forecast(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, int64(0), rdb.Exists(ctx, "agri:weather:"+DataTypeForecast).Val())
}

func TestCacheFallsThroughWhenRedisDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	up := &stubProvider{history: doc(DataTypeHistory)}
	c := NewCache(up, rdb, "k:", time.Minute, zap.NewNop())
	got, err := c.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DataTypeHistory, got.Text)
}
