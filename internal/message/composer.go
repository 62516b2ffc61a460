// Package message renders the text bodies of outgoing alerts.
package message

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/starford/trailguard/internal/models"
)

// TimeLayout is the timestamp format used in every message.
const TimeLayout = "03:04 PM, 02 Jan"

// Context carries the values a message can mention.
type Context struct {
	Name     string
	Position *models.Position
	At       time.Time
	Battery  *int
}

var templates = map[models.AlertKind]string{
	models.AlertJourneyUpdate: `Journey update from {{.Name}}.
{{template "where" .}}
Time: {{.Time}}{{template "battery" .}}`,

	models.AlertSOS: `EMERGENCY! {{.Name}} needs help.
{{template "where" .}}
Time: {{.Time}}{{template "battery" .}}
Please call or come immediately.`,

	models.AlertSafeArrival: `{{.Name}} has arrived safely.
{{template "where" .}}
Time: {{.Time}}`,

	models.AlertLowBattery: `Low battery warning: {{.Name}}'s phone is at {{.BatteryText}} during a journey.
{{template "where" .}}
Time: {{.Time}}`,
}

const partials = `{{define "where"}}{{if .Position}}Location: {{.MapsURL}}{{else}}Location: UNAVAILABLE{{end}}{{end}}` +
	`{{define "battery"}}{{if .Battery}}
Battery: {{.BatteryText}}{{end}}{{end}}`

// Composer renders messages from per-kind templates.
type Composer struct {
	tmpl map[models.AlertKind]*template.Template
	loc  *time.Location
}

// NewComposer parses the built-in templates. loc controls the time zone of
// rendered timestamps; nil means time.Local.
func NewComposer(loc *time.Location) (*Composer, error) {
	if loc == nil {
		loc = time.Local
	}
	c := &Composer{tmpl: make(map[models.AlertKind]*template.Template, len(templates)), loc: loc}
	for kind, text := range templates {
		t, err := template.New(string(kind)).Parse(partials)
		if err != nil {
			return nil, fmt.Errorf("message: parse partials: %w", err)
		}
		if t, err = t.Parse(text); err != nil {
			return nil, fmt.Errorf("message: parse %s: %w", kind, err)
		}
		c.tmpl[kind] = t
	}
	return c, nil
}

type view struct {
	Context
	loc *time.Location
}

func (v view) Time() string { return v.At.In(v.loc).Format(TimeLayout) }

func (v view) MapsURL() string { return v.Position.MapsURL() }

func (v view) BatteryText() string {
	if v.Battery == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d%%", *v.Battery)
}

// Compose renders the message for kind.
func (c *Composer) Compose(kind models.AlertKind, mc Context) (string, error) {
	t, ok := c.tmpl[kind]
	if !ok {
		return "", fmt.Errorf("message: unknown alert kind %q", kind)
	}
	if strings.TrimSpace(mc.Name) == "" {
		mc.Name = "Your contact"
	}
	if mc.At.IsZero() {
		mc.At = time.Now()
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, view{Context: mc, loc: c.loc}); err != nil {
		return "", fmt.Errorf("message: render %s: %w", kind, err)
	}
	return buf.String(), nil
}
