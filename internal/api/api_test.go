package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapvis/internal/doc"
	"mapvis/internal/geocoder"
	"mapvis/internal/regioncache"
	"mapvis/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	datasets map[string][]byte
	queries  map[string]*int64
}

func newMemStore() *memStore {
	return &memStore{datasets: map[string][]byte{}, queries: map[string]*int64{}}
}

func (m *memStore) SaveDataset(_ context.Context, ds *doc.Dataset) error {
	b, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[ds.ID] = b
	return nil
}

func (m *memStore) DatasetJSON(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.datasets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (m *memStore) DatasetCount(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.datasets)), nil
}

func (m *memStore) LookupQuery(_ context.Context, q string) (*int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.queries[q]
	return id, ok, nil
}

func (m *memStore) SaveQuery(_ context.Context, q string, id *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[q] = id
	return nil
}

type memRegions struct {
	mu sync.Mutex
	m  map[int64]doc.Region
}

func (m *memRegions) Get(_ context.Context, id int64) (*doc.Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.m[id]
	if !ok {
		return nil, regioncache.ErrMiss
	}
	return &r, nil
}

func (m *memRegions) Put(_ context.Context, r *doc.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[r.OSMID] = *r
	return nil
}

type fakeGeo struct {
	mu    sync.Mutex
	calls map[string]int
}

var georgia = doc.Region{
	OSMID: 28699, PlaceRank: 4, Name: "Georgia",
	SimplePath:  "M 40 -41 L 46 -41 46 -43 Z",
	BoundingBox: doc.BBox{41, 43, 40, 46},
}

func (g *fakeGeo) Lookup(_ context.Context, q string) (*doc.Region, error) {
	g.mu.Lock()
	g.calls[q]++
	g.mu.Unlock()
	switch q {
	case "Georgia":
		r := georgia
		return &r, nil
	case "Flaky":
		return nil, errors.New("geocoder: status 503")
	}
	return nil, geocoder.ErrNoMatch
}

func (g *fakeGeo) count(q string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[q]
}

type fixture struct {
	mux     *http.ServeMux
	store   *memStore
	regions *memRegions
	geo     *fakeGeo
}

func newFixture() *fixture {
	f := &fixture{store: newMemStore(), regions: &memRegions{m: map[int64]doc.Region{}}, geo: &fakeGeo{calls: map[string]int{}}}
	n := 0
	f.mux = BuildRoutes(Deps{
		Store: f.store, Regions: f.regions, Geocoder: f.geo,
		Concurrency: 2, MaxUpload: 1 << 20, RenderW: 900, RenderH: 300,
		NewID: func() string { n++; return "ds" + string(rune('0'+n)) },
	})
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

const votesCSV = "Country,Votes\nGeorgia,\"1,250\"\nAtlantis,3\nGeorgia,5\nFlaky,1\n"

func TestUploadRaw(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodPost, "/upload?filename=votes.csv", strings.NewReader(votesCSV)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ds, err := doc.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "ds1", ds.ID)
	assert.Equal(t, "votes.csv", ds.Name)
	require.Len(t, ds.Headings, 2)
	assert.Equal(t, doc.KindRegionMarker, ds.Headings[0].Kind)
	assert.Equal(t, doc.KindInt, ds.Headings[1].Kind)
	assert.Equal(t, 1250.0, *ds.Headings[1].Max)
	require.Len(t, ds.Records, 4)
	assert.Equal(t, int64(28699), *ds.Records[0].RegionID)
	assert.Nil(t, ds.Records[1].RegionID)
	assert.Equal(t, int64(28699), *ds.Records[2].RegionID)
	assert.Nil(t, ds.Records[3].RegionID)
	assert.Equal(t, doc.Value("1,250"), ds.Records[0].Row[1])
	assert.Equal(t, georgia.BoundingBox, ds.BBox)

	assert.Equal(t, 1, f.geo.count("Georgia"), "duplicate queries geocoded once")
	_, found, _ := f.store.LookupQuery(context.Background(), "Atlantis")
	assert.True(t, found, "no-match is cached")
	_, found, _ = f.store.LookupQuery(context.Background(), "Flaky")
	assert.False(t, found, "transient failures are not cached")

	rec = f.do(httptest.NewRequest(http.MethodPost, "/upload?filename=votes.csv", strings.NewReader(votesCSV)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.geo.count("Georgia"))
	assert.Equal(t, 1, f.geo.count("Atlantis"))
	assert.Equal(t, 2, f.geo.count("Flaky"))
}

func TestUploadRejects(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name, url, body string
		want            int
	}{
		{"missing filename", "/upload", votesCSV, http.StatusBadRequest},
		{"unsupported type", "/upload?filename=v.xlsx", votesCSV, http.StatusBadRequest},
		{"no data rows", "/upload?filename=v.csv", "Country,Votes\n", http.StatusBadRequest},
		{"too large", "/upload?filename=v.csv", strings.Repeat("x", 2<<20), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodPost, tc.url, strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"ok":false`)
		})
	}
}

func TestUploadMultipartRedirect(t *testing.T) {
	f := newFixture()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("data", "votes.tsv")
	require.NoError(t, err)
	_, _ = io.WriteString(fw, "Country\tVotes\nGeorgia\t3\n")
	require.NoError(t, mw.WriteField("redirect", "1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/doc/ds1", rec.Header().Get("Location"))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/ds1.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"votes.tsv"`)
}

func TestDocRoutes(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodPost, "/upload?filename=votes.csv", strings.NewReader(votesCSV)))
	require.Equal(t, http.StatusOK, rec.Code)
	saved := rec.Body.String()

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/ds1.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, saved, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/nope.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/ds1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "<h1>votes.csv</h1>")
	assert.Contains(t, page, `href="/doc/ds1?record=0"`)
	assert.Contains(t, page, "Atlantis (not found)")
	assert.Contains(t, page, `src="/doc/ds1.svg"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/ds1?record=2", nil))
	assert.Contains(t, rec.Body.String(), `src="/doc/ds1.svg?record=2"`)
}

func TestDocSVG(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodPost, "/upload?filename=votes.csv", strings.NewReader(votesCSV)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/ds1.svg", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("content-type"))
	out := rec.Body.String()
	assert.Contains(t, out, "<svg")
	assert.Contains(t, out, `d="M 40 -41 L 46 -41 46 -43 Z"`)
	assert.Contains(t, out, `id="region-0"`)
	assert.Contains(t, out, `id="region-2"`)
	assert.NotContains(t, out, `id="region-1"`)
	assert.Contains(t, out, "Tap the map...")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/ds1.svg?record=0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out = rec.Body.String()
	assert.NotContains(t, out, "Tap the map...")
	assert.Contains(t, out, ">Georgia</text>")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/doc/nope.svg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegionStatsAndIndex(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.regions.Put(context.Background(), &georgia))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/region/28699", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got doc.Region
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, georgia, got)

	assert.Equal(t, http.StatusNotFound, f.do(httptest.NewRequest(http.MethodGet, "/region/5", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(httptest.NewRequest(http.MethodGet, "/region/abc", nil)).Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.JSONEq(t, `{"ok":true,"datasets":0}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="data"`)

	assert.Equal(t, http.StatusNotFound, f.do(httptest.NewRequest(http.MethodGet, "/nowhere", nil)).Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))
	r.Header.Set("Forwarded", `for="192.0.2.60";proto=http`)
	assert.Equal(t, "192.0.2.60", clientIP(r))
	r.Header.Set("Forwarded", `proto=https; For= "192.0.2.61" , for=198.51.100.17`)
	assert.Equal(t, "192.0.2.61", clientIP(r))
	r.Header.Set("Forwarded", `for="[2001:db8:cafe::17]:4711"`)
	assert.Equal(t, "2001:db8:cafe::17", clientIP(r))
	r.Header.Set("Forwarded", `for=192.0.2.43`)
	assert.Equal(t, "192.0.2.43", clientIP(r))
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))
}
