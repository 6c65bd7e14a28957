package logstore

import "html/template"

type pageData struct {
	Sequence  int
	SHA       string
	CommitURL string
	CreatedAt string
	Log       string
}

type indexRow struct {
	Href  string
	Label string
	SHA   string
}

type indexData struct {
	Rows []indexRow
}

// The commit meta tag must stay within the first KB; readSHA depends on it.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="commit" content="{{.SHA}}">
<title>Build log #{{.Sequence}}</title>
</head>
<body>
<h1>Build log #{{.Sequence}}</h1>
<p>Commit: <a href="{{.CommitURL}}">{{.SHA}}</a></p>
<p>Created: {{.CreatedAt}}</p>
<pre>{{.Log}}</pre>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Build history</title>
</head>
<body>
<h1>Build history</h1>
<ul>
{{- range .Rows}}
<li><a href="{{.Href}}">{{.Label}}</a>{{if .SHA}} {{.SHA}}{{end}}</li>
{{- end}}
</ul>
</body>
</html>
`))
