package obis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"obiscatalog/internal/fetch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/node", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total": 2, "results": [{"id": "n1", "name": "EurOBIS"}, {"id": "n2", "name": "OBIS-USA"}]}`))
	})
	mux.HandleFunc("/institute", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [
			{"id": 10, "name": "VLIZ"},
			{"id": null, "name": "nobody"},
			{"id": 20, "name": "IOC"},
			{"name": "missing id"},
			{"id": 30, "name": "NOAA"}
		]}`))
	})
	mux.HandleFunc("/oe/institute/", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		switch r.URL.Path {
		case "/oe/institute/10.json":
			w.Write([]byte(`{"instName": "Flanders Marine Institute"}`))
		case "/oe/institute/30.json":
			w.Write([]byte(`{"instName": "National Oceanic and Atmospheric Administration"}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *Client {
	return &Client{
		HTTP:           fetch.NewClient("catalog-test", 5*time.Second, 0),
		APIURL:         srv.URL + "/",
		OceanExpertURL: srv.URL + "/oe",
		Concurrency:    2,
	}
}

func TestFetchNodes(t *testing.T) {
	srv := newServer(t, nil)
	c := newClient(srv)

	nodes, err := c.FetchNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, Count(nodes))

	path := filepath.Join(t.TempDir(), "data", "obis-nodes.json")
	require.NoError(t, Save(path, nodes))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"results\": [")

	var round map[string]any
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Len(t, round["results"], 2)
}

func TestFetchInstitutes_Plain(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)

	insts, err := newClient(srv).FetchInstitutes(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	assert.Equal(t, "VLIZ", insts[0]["name"])
	assert.Equal(t, "IOC", insts[1]["name"])
	assert.Equal(t, "NOAA", insts[2]["name"])
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestFetchInstitutes_Enriched(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)

	insts, err := newClient(srv).FetchInstitutes(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, insts, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	assert.Equal(t, map[string]any{"instName": "Flanders Marine Institute"}, insts[0]["oceanexpert"])
	assert.NotContains(t, insts[1], "oceanexpert", "failed lookups keep the plain entry")
	assert.Equal(t, "IOC", insts[1]["name"])
	assert.Contains(t, insts[2], "oceanexpert")
}

func TestFetchInstitutes_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newClient(srv).FetchInstitutes(context.Background(), true)
	require.Error(t, err)
	assert.True(t, fetch.IsNotFound(err))
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "", idString(nil))
	assert.Equal(t, "", idString(""))
	assert.Equal(t, "", idString(json.Number("0")))
	assert.Equal(t, "12", idString(json.Number("12")))
	assert.Equal(t, "abc", idString("abc"))
}
