package render

import (
	"html/template"
	"strings"
)

var fragments = template.Must(template.New("fragments").Parse(`
{{define "table"}}{{if .Empty}}<p class="no-data">{{.PlaceholderText}}</p>{{else}}<table>
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>{{with .Notice}}
<p class="table-info">{{.}}</p>{{end}}{{end}}{{end}}

{{define "text"}}<pre class="result">{{.}}</pre>{{end}}

{{define "message"}}<div id="{{.ID}}" class="message {{.Msg.Severity.Class}}">{{.Msg.Text}}</div>{{end}}

{{define "badge"}}<span id="{{.ID}}" class="badge {{.Badge.Class}}">{{.Badge.Text}}</span>{{end}}
`))

func execute(name string, data any) template.HTML {
	var b strings.Builder
	if err := fragments.ExecuteTemplate(&b, name, data); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(err.Error()) + "</pre>")
	}
	return template.HTML(b.String())
}

// TableHTML renders t as a table, or its placeholder paragraph when empty.
func TableHTML(t *Table) template.HTML {
	if t == nil {
		t = &Table{}
	}
	return execute("table", t)
}

// TextHTML renders a Text block.
func TextHTML(s string) template.HTML {
	return execute("text", s)
}

// MessageHTML renders a message node with a DOM id so it can be removed later.
func MessageHTML(id string, m Message) template.HTML {
	return execute("message", struct {
		ID  string
		Msg Message
	}{id, m})
}

// BadgeHTML renders the badge with the given DOM id.
func BadgeHTML(id string, b Badge) template.HTML {
	return execute("badge", struct {
		ID    string
		Badge Badge
	}{id, b})
}
