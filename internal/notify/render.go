package notify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/adclassify/internal/domain"
)

const subjectTemplate = `[{{ top_severity }}] {{ alert_count }} ad alert{% if alert_count != 1 %}s{% endif %} for {{ client_id }} on {{ date }}`

const htmlTemplate = `<h2>Ad alerts for {{ client_id }}</h2>
<p>{{ date }} &middot; 7d spend {{ spend_7d | currency }} &middot; CPA {{ cpa_7d }} &middot; run {{ run_id }}</p>
<table cellpadding="6" border="1" style="border-collapse:collapse">
<tr><th>Severity</th><th>Alert</th><th>Entity</th><th>Impact</th><th>Evidence</th></tr>
{% for a in alerts %}<tr>
<td>{{ a.severity }}</td><td>{{ a.title | escape }}</td><td>{{ a.level }} {{ a.name | escape }}</td><td>{{ a.impact | pct }}</td>
<td>{% for e in a.evidence %}{{ e | escape }}<br>{% endfor %}</td>
</tr>{% endfor %}
</table>`

const textTemplate = `Ad alerts for {{ client_id }} ({{ date }}, run {{ run_id }})
7d spend {{ spend_7d | currency }}, CPA {{ cpa_7d }}
{% for a in alerts %}
[{{ a.severity }}] {{ a.title }}: {{ a.level }} {{ a.name }} ({{ a.impact | pct }} of level spend)
{% for e in a.evidence %}  - {{ e }}
{% endfor %}{% endfor %}`

// Message is a rendered digest.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer turns digests into messages using liquid templates.
type Renderer struct {
	engine *liquid.Engine
	mu     sync.Mutex
	cache  map[string]*liquid.Template
}

// NewRenderer creates a renderer with the digest filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("currency", func(v float64) string {
		return fmt.Sprintf("$%.2f", v)
	})
	engine.RegisterFilter("pct", func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	})
	return &Renderer{engine: engine, cache: make(map[string]*liquid.Template)}
}

func (r *Renderer) template(src string) (*liquid.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[src]; ok {
		return tpl, nil
	}
	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	r.cache[src] = tpl
	return tpl, nil
}

func (r *Renderer) render(src string, b liquid.Bindings) (string, error) {
	tpl, err := r.template(src)
	if err != nil {
		return "", err
	}
	out, serr := tpl.RenderString(b)
	if serr != nil {
		return "", fmt.Errorf("render template: %w", serr)
	}
	return out, nil
}

// Render builds the subject and bodies for d.
func (r *Renderer) Render(d Digest) (Message, error) {
	b := bindings(d)
	var msg Message
	var err error
	if msg.Subject, err = r.render(subjectTemplate, b); err != nil {
		return Message{}, err
	}
	if msg.HTML, err = r.render(htmlTemplate, b); err != nil {
		return Message{}, err
	}
	if msg.Text, err = r.render(textTemplate, b); err != nil {
		return Message{}, err
	}
	msg.Subject = strings.TrimSpace(msg.Subject)
	return msg, nil
}

func bindings(d Digest) liquid.Bindings {
	alerts := make([]map[string]interface{}, 0, len(d.Alerts))
	top := domain.SeverityInfo
	for _, a := range d.Alerts {
		if a.Severity.Rank() < top.Rank() {
			top = a.Severity
		}
		name := a.EntityName
		if name == "" {
			name = a.Key.EntityID
		}
		alerts = append(alerts, map[string]interface{}{
			"severity": string(a.Severity),
			"type":     string(a.Type),
			"title":    a.Title,
			"level":    string(a.Key.Level),
			"name":     name,
			"impact":   a.ImpactScore,
			"evidence": a.Evidence,
		})
	}

	cpa := "n/a"
	if v, ok := d.Snapshot.CPA7d.Get(); ok {
		cpa = fmt.Sprintf("$%.2f", v)
	}
	return liquid.Bindings{
		"client_id":    d.ClientID,
		"run_id":       d.RunID,
		"date":         domain.Day(d.Date).Format(domain.DateLayout),
		"alert_count":  len(d.Alerts),
		"top_severity": string(top),
		"spend_7d":     d.Snapshot.Spend7d,
		"cpa_7d":       cpa,
		"alerts":       alerts,
	}
}
