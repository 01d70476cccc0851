package server

import (
	"html/template"
	"time"

	"github.com/marmos91/dittoshare/internal/bytesize"
	"github.com/marmos91/dittoshare/pkg/fileops"
	"github.com/marmos91/dittoshare/pkg/registry"
)

type indexData struct {
	Shares []*registry.Share
}

type listingData struct {
	Share     *registry.Share
	Path      string // rooted within the share, "/" for the root
	AtRoot    bool
	Entries   []fileops.Entry
	CanUpload bool
}

var templateFuncs = template.FuncMap{
	"size": func(e fileops.Entry) string {
		if e.IsDir {
			return "-"
		}
		return bytesize.Format(e.Size)
	},
	"modtime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
}

var indexTemplate = template.Must(template.New("index").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>dittoshare</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 48em; padding: 0 1em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: 0.3em 1em 0.3em 0; border-bottom: 1px solid #ddd; }
a { text-decoration: none; }
.tag { color: #888; font-size: 0.85em; margin-left: 0.5em; }
</style>
</head>
<body>
<h1>Shares</h1>
{{if .Shares}}
<table>
<tr><th>Name</th></tr>
{{range .Shares}}
<tr><td><a href="/{{.Name}}/">{{.Name}}</a>{{if .ReadOnly}}<span class="tag">read-only</span>{{end}}</td></tr>
{{end}}
</table>
{{else}}
<p>No shares configured.</p>
{{end}}
</body>
</html>
`))

var listingTemplate = template.Must(template.New("listing").Funcs(templateFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Share.Name}}{{.Path}}</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 60em; padding: 0 1em; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: 0.3em 1em 0.3em 0; border-bottom: 1px solid #ddd; }
td.num { text-align: right; }
a { text-decoration: none; }
form { margin-top: 1.5em; }
</style>
</head>
<body>
<h1>{{.Share.Name}}{{.Path}}</h1>
<table>
<tr><th>Name</th><th>Size</th><th>Modified</th></tr>
{{if not .AtRoot}}
<tr><td><a href="../">../</a></td><td></td><td></td></tr>
{{end}}
{{range .Entries}}
<tr>
	<td><a href="{{.Name}}{{if .IsDir}}/{{end}}">{{.Name}}{{if .IsDir}}/{{end}}</a></td>
	<td class="num">{{size .}}</td>
	<td>{{modtime .ModTime}}</td>
</tr>
{{end}}
</table>
{{if .CanUpload}}
<form method="post" enctype="multipart/form-data">
	<input type="file" name="file" multiple>
	<input type="submit" value="Upload">
</form>
{{end}}
</body>
</html>
`))
