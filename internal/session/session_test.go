package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapvis/internal/doc"
	"mapvis/internal/metrics"
	"mapvis/internal/resolver"
	"mapvis/internal/upload"
)

const docA = `{
  "name": "Elections",
  "dataset_id": "A",
  "headings": [
    {"label": "Country", "kind": "region-marker"},
    {"label": "Votes", "kind": "int", "max": 200},
    {"label": "Turnout", "kind": "percent"},
    {"label": "Party", "kind": "text"}
  ],
  "records": [
    {"row": ["Georgia", "1,250", "45.7%", "Dream"], "region_id": 1, "query": "Georgia"},
    {"row": ["Armenia", "50", "61.2%", "Civil"], "region_id": 2, "query": "Armenia"},
    {"row": ["Atlantis", "0", "0%", "None"], "region_id": null, "query": "Atlantis"}
  ],
  "bbox": [0, 10, 0, 20]
}`

const docB = `{
  "name": "Rivers",
  "dataset_id": "B",
  "headings": [{"label": "Place", "kind": "region-marker"}],
  "records": [{"row": ["Kura"], "region_id": 50, "query": "Kura"}],
  "bbox": [0, 1, 0, 1]
}`

type fakeClient struct {
	mu       sync.Mutex
	gates    map[int64]chan struct{}
	docGates map[string]chan struct{}
	docs     map[string]string
	uploads  map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		gates:    map[int64]chan struct{}{},
		docGates: map[string]chan struct{}{},
		docs:     map[string]string{"A": docA, "B": docB},
		uploads:  map[string]int{},
	}
}

// holdDoc makes Document for id block until releaseDoc
func (c *fakeClient) holdDoc(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docGates[id] = make(chan struct{})
}

func (c *fakeClient) releaseDoc(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.docGates[id])
}

// hold makes FetchRegion for id block until release; it ignores cancellation to model a late reply
func (c *fakeClient) hold(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gates[id] = make(chan struct{})
}

func (c *fakeClient) release(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.gates[id])
}

func (c *fakeClient) FetchRegion(ctx context.Context, id int64) (*doc.Region, error) {
	c.mu.Lock()
	g := c.gates[id]
	c.mu.Unlock()
	if g != nil {
		<-g
	}
	return &doc.Region{
		OSMID:       id,
		Name:        fmt.Sprintf("region %d", id),
		SimplePath:  fmt.Sprintf("M %d 0 L 1 -1 Z", id),
		BoundingBox: doc.BBox{0, 1, 0, 1},
	}, nil
}

func (c *fakeClient) Document(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	g := c.docGates[id]
	c.mu.Unlock()
	if g != nil {
		<-g
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("http status %d", http.StatusNotFound)
	}
	return []byte(d), nil
}

func (c *fakeClient) Upload(ctx context.Context, name string, body io.Reader, size int64, onProgress func(loaded, total int64), onSent func()) (int, []byte, error) {
	b, _ := io.ReadAll(body)
	onProgress(int64(len(b)), size)
	onSent()
	c.mu.Lock()
	c.uploads[name]++
	c.mu.Unlock()
	switch name {
	case "broken.csv":
		return http.StatusInternalServerError, []byte("geocoder down"), nil
	case "a.csv":
		return http.StatusOK, []byte(docA), nil
	}
	return http.StatusOK, nil, nil
}

type alerts struct {
	mu   sync.Mutex
	errs []error
}

func (a *alerts) Alert(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *alerts) list() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]error(nil), a.errs...)
}

func start(t *testing.T, c *fakeClient) (*Session, *alerts, context.Context) {
	t.Helper()
	al := &alerts{}
	s := New(Config{Width: 900, Height: 300, FadeDelay: 5 * time.Millisecond}, c, al)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(cancel)
	return s, al, ctx
}

func classes(t *testing.T, s *Session, ctx context.Context, id string) []string {
	t.Helper()
	var out []string
	require.NoError(t, s.Do(ctx, func() error {
		if n, ok := s.sc.Lookup(id); ok {
			out = append(out, n.Classes...)
		}
		return nil
	}))
	return out
}

func TestLoadResolveAndSelect(t *testing.T) {
	s, al, ctx := start(t, newFakeClient())
	s.Load([]byte(docA))
	require.NoError(t, s.WaitSettled(ctx))

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", st.DatasetID)
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 2, st.Resolved, "records without region_id stay unresolved")
	assert.Equal(t, 2, st.Regions)
	assert.Equal(t, Placeholder, st.Title)
	assert.Equal(t, -1, st.ActiveRecord)
	// map area 900-300=600 wide, 300 high: min(600/20, 300/10) = 30
	assert.Equal(t, "scale(30) translate(-10 5)", st.Transform)

	s.Activate(resolver.RegionID(0))
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.ActiveRecord)
	assert.Equal(t, "Georgia", st.Title)
	assert.Equal(t, "region 1", st.Subtitle)
	assert.Equal(t, []string{"region", "active"}, classes(t, s, ctx, "region-0"))

	s.Activate(resolver.RegionID(1))
	s.Activate(resolver.RegionID(1))
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActiveRecord)
	assert.Equal(t, []string{"region"}, classes(t, s, ctx, "region-0"))
	assert.Equal(t, []string{"region", "active"}, classes(t, s, ctx, "region-1"))

	s.Activate("region-2")
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActiveRecord, "unresolved record has no shape to activate")
	assert.Empty(t, al.list())
}

func TestHeadingSelectionSurvivesRecordSwitch(t *testing.T) {
	s, _, ctx := start(t, newFakeClient())
	s.Load([]byte(docA))
	require.NoError(t, s.WaitSettled(ctx))

	s.Activate(resolver.RegionID(0))
	s.Activate("stat-2")
	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ActiveHeading)
	assert.Contains(t, classes(t, s, ctx, "stat-2"), "active")

	s.Activate(resolver.RegionID(1))
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActiveRecord)
	assert.Equal(t, 2, st.ActiveHeading)
	assert.Contains(t, classes(t, s, ctx, "stat-2"), "active", "active heading is re-marked on redraw")
	assert.NotContains(t, classes(t, s, ctx, "stat-1"), "active")
}

func TestEscapeClearsSelection(t *testing.T) {
	s, _, ctx := start(t, newFakeClient())
	s.Load([]byte(docA))
	require.NoError(t, s.WaitSettled(ctx))
	s.Activate(resolver.RegionID(0))
	s.Activate("stat-1")
	s.Key(KeyEscape)

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, st.ActiveRecord)
	assert.Equal(t, -1, st.ActiveHeading)
	assert.Equal(t, Placeholder, st.Title)
	assert.Equal(t, []string{"region"}, classes(t, s, ctx, "region-0"))
	assert.Empty(t, classes(t, s, ctx, "stat-1"), "panel is cleared")
}

func TestStaleRegionIsDiscarded(t *testing.T) {
	c := newFakeClient()
	c.hold(1)
	c.hold(2)
	s, al, ctx := start(t, c)

	s.Load([]byte(docA))
	s.Load([]byte(docB))
	require.NoError(t, s.WaitSettled(ctx))

	before := testutil.ToFloat64(metrics.StaleDropsTotal)
	c.release(1)
	c.release(2)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.StaleDropsTotal) >= before+2
	}, 5*time.Second, 5*time.Millisecond)

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", st.DatasetID)
	assert.Equal(t, 1, st.Regions)
	var d string
	require.NoError(t, s.Do(ctx, func() error {
		for _, n := range s.sc.Regions.Children {
			assert.NotEqual(t, "M 2 0 L 1 -1 Z", n.D, "stale shape from dataset A")
		}
		n, _ := s.sc.Lookup(resolver.RegionID(0))
		d = n.D
		return nil
	}))
	assert.Equal(t, "M 50 0 L 1 -1 Z", d)
	assert.Empty(t, al.list())
}

func TestBadPayloadKeepsPreviousState(t *testing.T) {
	s, al, ctx := start(t, newFakeClient())
	s.Load([]byte(docB))
	require.NoError(t, s.WaitSettled(ctx))

	s.Load([]byte(strings.Replace(docA, `"kind": "text"`, `"kind": "sparkline"`, 1)))
	s.Load([]byte(strings.Replace(docA, `[0, 10, 0, 20]`, `[10, 0, 0, 20]`, 1)))
	s.Load([]byte(`{"name": `))

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", st.DatasetID)
	assert.Equal(t, 1, st.Regions)
	errs := al.list()
	require.Len(t, errs, 3)
	for _, e := range errs {
		assert.ErrorIs(t, e, doc.ErrDataShape)
	}
}

func TestResizeRelayouts(t *testing.T) {
	s, _, ctx := start(t, newFakeClient())
	s.Load([]byte(docA))
	require.NoError(t, s.WaitSettled(ctx))

	s.Resize(1500, 1000)
	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	// panel 500, map 1000x1000: min(1000/20, 1000/10) = 50
	assert.Equal(t, "scale(50) translate(-10 5)", st.Transform)

	var panel, outer string
	require.NoError(t, s.Do(ctx, func() error {
		panel, outer = s.sc.Panel.Transform, s.sc.Map.Transform
		return nil
	}))
	assert.Equal(t, "translate(1016 0)", panel)
	assert.Equal(t, "translate(500 500)", outer)
}

func memFile(name, content string) upload.File {
	return upload.File{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(content)), nil },
	}
}

func TestUploadLoadsDatasetAndFades(t *testing.T) {
	c := newFakeClient()
	s, al, ctx := start(t, c)
	s.Upload([]upload.File{memFile("a.csv", "Country,Votes\nGeorgia,1\n"), memFile("broken.csv", "x")})
	require.NoError(t, s.WaitSettled(ctx))

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", st.DatasetID)
	assert.Equal(t, "/doc/A", st.Path)
	assert.Equal(t, 2, st.Regions)
	assert.Equal(t, 100.0, st.Progress)

	errs := al.list()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken.csv")
	assert.Contains(t, errs[0].Error(), "geocoder down")

	require.Eventually(t, func() bool {
		st, err := s.Snapshot(ctx)
		return err == nil && st.Indicator == upload.Fading
	}, 5*time.Second, 5*time.Millisecond)
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, st.Progress, "width only resets on the next batch")

	var buf bytes.Buffer
	require.NoError(t, s.Render(ctx, &buf))
	assert.Contains(t, buf.String(), `style="opacity:0"`)
}

func TestOpenAndHistory(t *testing.T) {
	s, al, ctx := start(t, newFakeClient())
	s.Open("A")
	require.NoError(t, s.WaitSettled(ctx))
	s.Open("B")
	require.NoError(t, s.WaitSettled(ctx))

	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/doc/B", st.Path)
	assert.Equal(t, "B", st.DatasetID)

	moved, err := s.Back(ctx)
	require.NoError(t, err)
	require.True(t, moved)
	require.NoError(t, s.WaitSettled(ctx))
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/doc/A", st.Path)
	assert.Equal(t, "A", st.DatasetID, "back triggers a full reload")

	moved, err = s.Back(ctx)
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = s.Forward(ctx)
	require.NoError(t, err)
	require.True(t, moved)
	require.NoError(t, s.WaitSettled(ctx))
	st, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "B", st.DatasetID)

	s.Open("missing")
	require.NoError(t, s.WaitSettled(ctx))
	errs := al.list()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "open missing")
}

func TestLateDocumentDoesNotReplaceNewerOpen(t *testing.T) {
	c := newFakeClient()
	s, al, ctx := start(t, c)
	before := testutil.ToFloat64(metrics.StaleDropsTotal)

	c.holdDoc("A")
	s.Open("A")
	s.Open("B")
	require.Eventually(t, func() bool {
		st, err := s.Snapshot(ctx)
		return err == nil && st.DatasetID == "B"
	}, 5*time.Second, 5*time.Millisecond)

	c.releaseDoc("A")
	require.NoError(t, s.WaitSettled(ctx))
	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/doc/B", st.Path)
	assert.Equal(t, "B", st.DatasetID)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.StaleDropsTotal), before+1)
	assert.Empty(t, al.list())
}

func TestLoadSupersedesPendingOpen(t *testing.T) {
	c := newFakeClient()
	s, _, ctx := start(t, c)
	c.holdDoc("B")
	s.Open("B")
	s.Load([]byte(docA))
	require.Eventually(t, func() bool {
		st, err := s.Snapshot(ctx)
		return err == nil && st.DatasetID == "A"
	}, 5*time.Second, 5*time.Millisecond)

	c.releaseDoc("B")
	require.NoError(t, s.WaitSettled(ctx))
	st, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", st.DatasetID)
}

func TestParseDocPath(t *testing.T) {
	id, ok := ParseDocPath("/doc/abc-123")
	assert.True(t, ok)
	assert.Equal(t, "abc-123", id)
	_, ok = ParseDocPath("/upload")
	assert.False(t, ok)
	_, ok = ParseDocPath("/doc/a/b")
	assert.False(t, ok)
}

func TestPanelWidth(t *testing.T) {
	assert.Equal(t, 300, PanelWidth(900))
	assert.Equal(t, 240, PanelWidth(600))
	assert.Equal(t, 200, PanelWidth(400))
}
