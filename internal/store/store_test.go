package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() Record {
	return Record{
		Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Device:    "f8:04:7f:c2:35:10",
		RSSI:      -67,
		Battery:   87,
		Count:     42,
		Rate:      100,
		TotalKWh:  0.042,
		KWh:       0.001,
		KW:        0.1,
	}
}

func TestPointLineProtocol(t *testing.T) {
	line := write.PointToLineProtocol(Point(testRecord()), time.Second)

	assert.Contains(t, line, "energy,device=f8:04:7f:c2:35:10 ")
	assert.Contains(t, line, "battery=87i")
	assert.Contains(t, line, "count=42i")
	assert.Contains(t, line, "rate=100i")
	assert.Contains(t, line, "rssi=-67i")
	assert.Contains(t, line, "total_kwh=0.042")
	assert.Contains(t, line, "kwh=0.001")
	assert.Contains(t, line, "kw=0.1")
	assert.Contains(t, line, " 1772357400")
}

func TestPointCarbonFields(t *testing.T) {
	r := testRecord()
	line := write.PointToLineProtocol(Point(r), time.Second)
	assert.NotContains(t, line, "carbon")

	r.Carbon = &Carbon{Intensity: 180, Index: "moderate", Grams: 0.18}
	line = write.PointToLineProtocol(Point(r), time.Second)
	assert.Contains(t, line, "carbon_intensity=180i")
	assert.Contains(t, line, `intensity_index="moderate"`)
	assert.Contains(t, line, "carbon_g=0.18")
}

func TestInfluxWriterWritesLineProtocol(t *testing.T) {
	var body []byte
	var gotOrg, gotBucket, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		gotOrg = r.URL.Query().Get("org")
		gotBucket = r.URL.Query().Get("bucket")
		gotAuth = r.Header.Get("Authorization")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewInfluxWriter(InfluxConfig{URL: srv.URL, Token: "secret", Org: "home", Bucket: "energy"})
	defer w.Close()

	require.NoError(t, w.Write(context.Background(), testRecord()))
	assert.Equal(t, "home", gotOrg)
	assert.Equal(t, "energy", gotBucket)
	assert.Equal(t, "Token secret", gotAuth)
	assert.Contains(t, string(body), "energy,device=f8:04:7f:c2:35:10")
}

func TestInfluxWriterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"unauthorized","message":"unauthorized access"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewInfluxWriter(InfluxConfig{URL: srv.URL, Token: "bad", Org: "home", Bucket: "energy"})
	defer w.Close()

	assert.Error(t, w.Write(context.Background(), testRecord()))
}

func TestFormPoster(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = r.PostForm.Get("kW")
	}))
	defer srv.Close()

	p := NewFormPoster(srv.URL)
	require.NoError(t, p.Write(context.Background(), testRecord()))
	assert.Equal(t, "0.1", got)
	assert.NoError(t, p.Close())
}

func TestFormPosterRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewFormPoster(srv.URL).Write(context.Background(), testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFakeWriter(t *testing.T) {
	f := NewFakeWriter()
	require.NoError(t, f.Write(context.Background(), testRecord()))
	assert.Len(t, f.Written(), 1)

	f.WriteError = errors.New("disk full")
	assert.Error(t, f.Write(context.Background(), testRecord()))
	assert.Len(t, f.Written(), 1)

	require.NoError(t, f.Close())
	assert.True(t, f.Closed)
}
