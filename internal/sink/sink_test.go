package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensilo/sensilo/internal/ble"
	"github.com/sensilo/sensilo/internal/ingest"
	"github.com/sensilo/sensilo/internal/wire"
)

func testSamples(t *testing.T) []ingest.Sample {
	t.Helper()
	addr, err := ble.ParseAddress("864fe067997a")
	require.NoError(t, err)
	at := time.Date(2021, 3, 14, 9, 26, 53, 589, time.UTC)
	return []ingest.Sample{
		{
			Device: "Sensilo1", Location: "Kitchen", Address: addr,
			ReceivedAt: at, Kind: wire.KindTemperature, Value: 22500,
			Counter: 5, RSSI: -61,
		},
		{
			Device: "Sensilo1", Location: "Living Room", Address: addr,
			ReceivedAt: at, Kind: wire.KindHumidity, Value: 45000,
			Counter: 5, RSSI: -61,
		},
	}
}

func TestInfluxWrite(t *testing.T) {
	var gotPath, gotQuery, gotUser, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUser, _, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewInflux(InfluxConfig{URL: srv.URL, Database: "sensilo", User: "gw", Pass: "secret"})
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), testSamples(t)))

	assert.Equal(t, "/write", gotPath)
	assert.Equal(t, "db=sensilo", gotQuery)
	assert.Equal(t, "gw", gotUser)

	lines := strings.Split(strings.TrimSpace(gotBody), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0],
		"temperature,address=864fe067997a,device=Sensilo1,location=Kitchen value=22500i,counter=5i,rssi=-61i"),
		"got line: %s", lines[0])
	assert.Contains(t, lines[1], `location=Living\ Room`, "tag values are escaped")
	assert.Contains(t, lines[1], "value=45000i")
}

func TestInfluxWriteErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
	}{
		{"database missing", http.StatusNotFound},
		{"bad request", http.StatusBadRequest},
		{"server error", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()
			s, err := NewInflux(InfluxConfig{URL: srv.URL, Database: "sensilo"})
			require.NoError(t, err)
			assert.Error(t, s.Write(context.Background(), testSamples(t)))
		})
	}
}

func TestSqliteWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := NewSqlite(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), testSamples(t)))

	var count int
	var batchIDs int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT batch_id) FROM samples`).Scan(&count, &batchIDs))
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, batchIDs, "one batch ID per write")

	var device, kind string
	var value int64
	require.NoError(t, s.db.QueryRow(
		`SELECT device, kind, value FROM samples WHERE kind = 'temperature'`).Scan(&device, &kind, &value))
	assert.Equal(t, "Sensilo1", device)
	assert.Equal(t, int64(22500), value)
}
