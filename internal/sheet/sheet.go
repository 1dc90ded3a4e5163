// 包 sheet：上传表格解析，支持 CSV / TSV / TXT 与 XLSX 工作簿，首行为列标题
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrBadSheet：表格无法解析（上层映射为 400）
	ErrBadSheet = errors.New("bad sheet")
	// ErrUnsupported：扩展名不在支持列表内
	ErrUnsupported = fmt.Errorf("%w: unsupported file type", ErrBadSheet)
)

var bom = []byte("\xEF\xBB\xBF")

// Sheet：解析后的表格；每行长度与 Headings 一致（不足补空、超出截断）
type Sheet struct {
	Headings []string
	Rows     [][]string
}

// 文档注释：按文件名扩展选择解析方式
// 背景：用户从表格软件导出的文件常见 BOM 与 Windows-1252 编码；非 UTF-8 输入整体按 Windows-1252 解码。
// 约束：.csv 使用逗号，.tsv 使用制表符，.txt 按首行是否含制表符嗅探；.xlsx/.xlsm 读取第一个工作表；全空行被跳过。
func Read(name string, r io.Reader) (*Sheet, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if isWorkbook(ext) {
		return readWorkbook(r)
	}
	comma, ok := delimiterFor(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(name))
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, bom)
	if !utf8.Valid(raw) {
		if raw, err = charmap.Windows1252.NewDecoder().Bytes(raw); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrBadSheet, err)
		}
	}
	if comma == 0 {
		comma = sniff(raw)
	}
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var b builder
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSheet, err)
		}
		b.add(rec)
	}
	return b.sheet()
}

// readWorkbook：读取第一个工作表的单元格显示值
func readWorkbook(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: workbook: %v", ErrBadSheet, err)
	}
	defer f.Close()
	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrBadSheet)
	}
	rows, err := f.GetRows(names[0])
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrBadSheet, names[0], err)
	}
	var b builder
	for _, rec := range rows {
		b.add(rec)
	}
	return b.sheet()
}

// builder：逐行累积，首个非空行作为标题
type builder struct{ s Sheet }

func (b *builder) add(rec []string) {
	if blank(rec) {
		return
	}
	if b.s.Headings == nil {
		b.s.Headings = trimAll(rec)
		return
	}
	b.s.Rows = append(b.s.Rows, fit(rec, len(b.s.Headings)))
}

func (b *builder) sheet() (*Sheet, error) {
	if len(b.s.Headings) == 0 {
		return nil, fmt.Errorf("%w: no heading row", ErrBadSheet)
	}
	if len(b.s.Rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrBadSheet)
	}
	s := b.s
	return &s, nil
}

// Column：第 i 列的全部单元格
func (s *Sheet) Column(i int) []string {
	out := make([]string, len(s.Rows))
	for r, row := range s.Rows {
		out[r] = row[i]
	}
	return out
}

func isWorkbook(ext string) bool { return ext == ".xlsx" || ext == ".xlsm" }

func delimiterFor(ext string) (rune, bool) {
	switch ext {
	case ".csv":
		return ',', true
	case ".tsv", ".tab":
		return '\t', true
	case ".txt":
		return 0, true
	}
	return 0, false
}

func sniff(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	if bytes.IndexByte(line, '\t') >= 0 {
		return '\t'
	}
	return ','
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func fit(rec []string, n int) []string {
	out := make([]string, n)
	copy(out, rec)
	return out
}
