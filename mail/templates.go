package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/jmcleod/leaddesk/storage"
)

var leadTemplate = template.Must(template.New("lead").Parse(`<html><body>
<h2>New {{.Kind}} lead</h2>
<table>
{{- if .Name}}<tr><td><b>Name</b></td><td>{{.Name}}</td></tr>{{end}}
{{- if .Email}}<tr><td><b>Email</b></td><td><a href="mailto:{{.Email}}">{{.Email}}</a></td></tr>{{end}}
{{- if .Company}}<tr><td><b>Company</b></td><td>{{.Company}}</td></tr>{{end}}
{{- if .Phone}}<tr><td><b>Phone</b></td><td>{{.Phone}}</td></tr>{{end}}
<tr><td><b>Received</b></td><td>{{.Received}}</td></tr>
<tr><td><b>Lead ID</b></td><td>{{.ID}}</td></tr>
</table>
{{- if .Message}}
<h3>Message</h3>
<p style="white-space: pre-wrap">{{.Message}}</p>
{{- end}}
{{- if .Transcript}}
<h3>Conversation</h3>
{{- range .Transcript}}
<p><b>{{.Role}}:</b> {{.Content}}</p>
{{- end}}
{{- end}}
</body></html>
`))

// Notification is a rendered lead notification.
type Notification struct {
	Subject string
	Body    string
}

// NewLeadNotification renders the notification mail for lead. Lead fields
// are HTML-escaped by the template.
func NewLeadNotification(lead *storage.Lead) (Notification, error) {
	var buf bytes.Buffer
	err := leadTemplate.Execute(&buf, struct {
		*storage.Lead
		Received string
	}{lead, lead.CreatedAt.UTC().Format(time.RFC1123)})
	if err != nil {
		return Notification{}, fmt.Errorf("rendering lead notification: %w", err)
	}

	subject := fmt.Sprintf("New %s lead", lead.Kind)
	switch {
	case lead.Name != "":
		subject += " from " + lead.Name
	case lead.Email != "":
		subject += " from " + lead.Email
	}
	return Notification{Subject: subject, Body: buf.String()}, nil
}
