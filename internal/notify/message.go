// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package notify

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"net/url"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"

	"github.com/empaai/empaai/internal/auth"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Message is a rendered notification email.
type Message struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Link    string `json:"link"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

type kindSpec struct {
	subject string
	title   string
	action  string
	path    string
	expiry  time.Duration
}

var kinds = map[string]kindSpec{
	auth.NotificationVerification: {
		subject: "Verify Your EmpaAI Account",
		title:   "Verify Your Email Address",
		action:  "Verify Email Address",
		path:    "/verify-email",
		expiry:  auth.VerificationTokenTTL,
	},
	auth.NotificationPasswordReset: {
		subject: "Reset Your EmpaAI Password",
		title:   "Reset Your Password",
		action:  "Reset Password",
		path:    "/reset-password",
		expiry:  auth.ResetTokenTTL,
	},
}

type templateData struct {
	Title  string
	Action string
	Link   string
	Expiry string
	Year   int
}

// Composer renders notification messages for a public base URL.
type Composer struct {
	baseURL *url.URL
	now     func() time.Time
	html    map[string]*htmltemplate.Template
	text    map[string]*template.Template
}

// NewComposer parses the embedded templates. baseURL is the public origin
// of the web client, for example https://app.example.com.
func NewComposer(baseURL string, now func() time.Time) (*Composer, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code("NOTIFY_INVALID_BASE_URL").With("base_url", baseURL).Errorf("base url must be absolute")
	}
	if now == nil {
		now = time.Now
	}

	c := &Composer{
		baseURL: u,
		now:     now,
		html:    make(map[string]*htmltemplate.Template, len(kinds)),
		text:    make(map[string]*template.Template, len(kinds)),
	}
	for kind := range kinds {
		h, err := htmltemplate.ParseFS(templateFS, "templates/layout.html.tmpl", "templates/"+kind+".html.tmpl")
		if err != nil {
			return nil, oops.Code("NOTIFY_TEMPLATE_FAILED").With("kind", kind).Wrap(err)
		}
		t, err := template.ParseFS(templateFS, "templates/"+kind+".txt.tmpl")
		if err != nil {
			return nil, oops.Code("NOTIFY_TEMPLATE_FAILED").With("kind", kind).Wrap(err)
		}
		c.html[kind] = h
		c.text[kind] = t
	}
	return c, nil
}

// Link returns the client URL that consumes token for kind.
func (c *Composer) Link(kind, token string) (string, error) {
	spec, ok := kinds[kind]
	if !ok {
		return "", oops.Code("NOTIFY_UNKNOWN_KIND").With("kind", kind).Errorf("unknown notification kind")
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + spec.path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Compose renders the message of kind addressed to email.
func (c *Composer) Compose(kind, email, token string) (*Message, error) {
	link, err := c.Link(kind, token)
	if err != nil {
		return nil, err
	}
	spec := kinds[kind]
	data := templateData{
		Title:  spec.title,
		Action: spec.action,
		Link:   link,
		Expiry: humanize(spec.expiry),
		Year:   c.now().Year(),
	}

	var html, text bytes.Buffer
	if err := c.html[kind].ExecuteTemplate(&html, "layout", data); err != nil {
		return nil, oops.Code("NOTIFY_RENDER_FAILED").With("kind", kind).With("part", "html").Wrap(err)
	}
	if err := c.text[kind].Execute(&text, data); err != nil {
		return nil, oops.Code("NOTIFY_RENDER_FAILED").With("kind", kind).With("part", "text").Wrap(err)
	}
	return &Message{
		Kind:    kind,
		To:      email,
		Subject: spec.subject,
		Link:    link,
		Text:    strings.TrimSpace(text.String()),
		HTML:    html.String(),
	}, nil
}

// humanize formats whole hours the way the emails phrase them.
func humanize(d time.Duration) string {
	hours := int(d / time.Hour)
	if hours == 1 {
		return "1 hour"
	}
	return strconv.Itoa(hours) + " hours"
}
