package api

import (
	"html/template"

	"mapvis/internal/doc"
)

type docView struct {
	Dataset *doc.Dataset
	SVG     string
}

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>mapvis</title></head>
<body>
<h1>mapvis</h1>
<p>Upload a CSV or TSV file. The first column names the region of each row.</p>
<form method="post" action="/upload" enctype="multipart/form-data">
<input type="file" name="data" accept=".csv,.tsv,.txt,.xlsx,.xlsm">
<input type="hidden" name="redirect" value="1">
<button type="submit">Upload</button>
</form>
</body></html>
`))

var docPage = template.Must(template.New("doc").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Dataset.Name}} - mapvis</title></head>
<body>
<h1>{{.Dataset.Name}}</h1>
<p><a href="/">upload another</a> · <a href="/doc/{{.Dataset.ID}}.json">json</a></p>
<img src="{{.SVG}}" alt="{{.Dataset.Name}}">
<ol start="0">
{{- range $i, $r := .Dataset.Records}}
<li>{{if $r.RegionID}}<a href="/doc/{{$.Dataset.ID}}?record={{$i}}">{{$r.Query}}</a>{{else}}{{$r.Query}} (not found){{end}}</li>
{{- end}}
</ol>
</body></html>
`))
