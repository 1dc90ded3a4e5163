package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"golang.org/x/sync/errgroup"

	"mapvis/internal/doc"
	"mapvis/internal/geocoder"
	"mapvis/internal/logger"
	"mapvis/internal/metrics"
	"mapvis/internal/regioncache"
	"mapvis/internal/sheet"
)

// 文档注释：上传表格
// 背景：接受原始请求体（?filename=NAME）或 multipart 字段 data；解析、地理编码、保存后返回与 /doc/{id}.json 一致的文档。
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("upload").Inc()
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	name, body, err := uploadBody(r)
	if err != nil {
		writeError(w, "upload", err)
		return
	}
	defer body.Close()
	logger.L().Info("upload_received", "name", name, "ip", clientIP(r))

	ds, err := s.buildDataset(r.Context(), name, body)
	if err != nil {
		writeError(w, "upload", err)
		return
	}
	if err := s.Store.SaveDataset(r.Context(), ds); err != nil {
		writeError(w, "upload", err)
		return
	}
	if r.MultipartForm != nil && r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/doc/"+ds.ID, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func uploadBody(r *http.Request) (string, io.ReadCloser, error) {
	name := r.URL.Query().Get("filename")
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("content-type")); mt == "multipart/form-data" {
		f, fh, err := r.FormFile("data")
		if err != nil {
			return "", nil, fmt.Errorf("%w: multipart field data: %v", errBadRequest, err)
		}
		if name == "" {
			name = fh.Filename
		}
		return name, f, nil
	}
	if name == "" {
		return "", nil, fmt.Errorf("%w: missing filename", errBadRequest)
	}
	return name, r.Body, nil
}

// 文档注释：表格 -> 数据集文档
// 背景：每个不同的查询词只解析一次；数据集包围盒为所有命中区域包围盒的并集，全部未命中时为零值。
func (s *server) buildDataset(ctx context.Context, name string, body io.Reader) (*doc.Dataset, error) {
	sh, err := sheet.Read(name, body)
	if err != nil {
		return nil, err
	}
	queries := sh.Queries()
	regions, err := s.resolveQueries(ctx, queries)
	if err != nil {
		return nil, err
	}

	ds := &doc.Dataset{
		ID:       s.NewID(),
		Name:     name,
		Headings: sh.Inspect(),
		Records:  make([]doc.Record, len(sh.Rows)),
	}
	matched := 0
	for i, row := range sh.Rows {
		rec := doc.Record{Row: make([]doc.Value, len(row)), Query: queries[i]}
		for j, v := range row {
			rec.Row[j] = doc.Value(v)
		}
		if reg := regions[queries[i]]; reg != nil {
			id := reg.OSMID
			rec.RegionID = &id
			ds.BBox = ds.BBox.Union(reg.BoundingBox)
			matched++
		}
		ds.Records[i] = rec
	}
	logger.L().Info("dataset_built", "dataset_id", ds.ID, "name", name, "records", len(ds.Records), "matched", matched, "queries", len(regions))
	return ds, nil
}

// resolveQueries：并发解析去重后的查询词，并发度受 Concurrency 限制；无匹配的查询词映射为 nil
func (s *server) resolveQueries(ctx context.Context, queries []string) (map[string]*doc.Region, error) {
	var uniq []string
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		if q != "" && !seen[q] {
			seen[q] = true
			uniq = append(uniq, q)
		}
	}
	found := make([]*doc.Region, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)
	for i, q := range uniq {
		g.Go(func() error {
			reg, err := s.resolveQuery(gctx, q)
			found[i] = reg
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*doc.Region, len(uniq))
	for i, q := range uniq {
		out[q] = found[i]
	}
	return out, nil
}

// 文档注释：单个查询词的解析顺序
// 背景：先查查询词缓存（含负缓存），再查区域缓存，最后调用地理编码服务并回写两级缓存。
// 约束：地理编码服务的临时故障不写负缓存，只记录并把该查询词视为未命中；缓存读写错误中止整个上传。
func (s *server) resolveQuery(ctx context.Context, q string) (*doc.Region, error) {
	id, found, err := s.Store.LookupQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	if found {
		if id == nil {
			return nil, nil
		}
		reg, err := s.Regions.Get(ctx, *id)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, regioncache.ErrMiss) {
			return nil, err
		}
	}

	reg, err := s.Geocoder.Lookup(ctx, q)
	if errors.Is(err, geocoder.ErrNoMatch) {
		logger.L().Debug("geocode_no_match", "q", q)
		return nil, s.Store.SaveQuery(ctx, q, nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.L().Warn("geocode_error", "q", q, "err", err)
		return nil, nil
	}
	if err := s.Regions.Put(ctx, reg); err != nil {
		return nil, err
	}
	if err := s.Store.SaveQuery(ctx, q, &reg.OSMID); err != nil {
		return nil, err
	}
	return reg, nil
}
