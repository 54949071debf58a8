// internal/dispatch/template.go
package dispatch

import (
	"sort"
	"strings"
)

const (
	SubjectMarker         = "Subject: "
	CompanyPlaceholder    = "[Company Name]"
	ResumeLinkPlaceholder = "[Resume Link]"
	resumeSentence        = "You can find my resume here: " + ResumeLinkPlaceholder + "\n\n"
	placeholderOpen       = "["
	placeholderClose      = "]"
)

// DefaultTemplate is used when a request carries no template.
const DefaultTemplate = `Subject: Application for [Position] in [Company Name]

Dear [Company Name] HR Team,

I hope this email finds you well. I am writing to express my interest in the [Position] position at [Company Name].

[Your custom message here]

You can find my resume here: [Resume Link]

I would welcome the opportunity to discuss how my skills and experience align with your needs.

Thank you for your time and consideration. I look forward to your response.

Best regards,
[Your Name]
[Your Contact Information]`

// RenderConfig holds the run-level rendering inputs. Bindings map a
// recipient column to the placeholder it fills.
type RenderConfig struct {
	Template      string
	CompanyColumn string
	Bindings      map[string]string
	UserDetails   map[string]string
	ResumeLink    string
}

// Renderer renders messages for one run. It is safe for concurrent use.
type Renderer struct {
	template      string
	companyColumn string
	bindings      map[string]string // token -> column
	details       map[string]string // token -> value
	resumeLink    string
}

func NewRenderer(cfg RenderConfig) *Renderer {
	r := &Renderer{
		template:      normalizeNewlines(cfg.Template),
		companyColumn: cfg.CompanyColumn,
		bindings:      make(map[string]string, len(cfg.Bindings)),
		details:       make(map[string]string, len(cfg.UserDetails)),
		resumeLink:    strings.TrimSpace(cfg.ResumeLink),
	}

	// sorted so that duplicate placeholders resolve the same way every run
	for _, col := range sortedKeys(cfg.Bindings) {
		token := placeholder(cfg.Bindings[col])
		if _, dup := r.bindings[token]; !dup {
			r.bindings[token] = col
		}
	}
	for _, key := range sortedKeys(cfg.UserDetails) {
		token := placeholder(key)
		if _, dup := r.details[token]; !dup {
			r.details[token] = cfg.UserDetails[key]
		}
	}

	if r.resumeLink == "" {
		r.template = strings.ReplaceAll(r.template, resumeSentence, "")
	}
	return r
}

// Render resolves each placeholder once, by precedence: company, column
// bindings, user details, then the resume link. Substituted values are never
// scanned again. Unknown placeholders are left as literal text.
func (r *Renderer) Render(rcpt Recipient) RenderedMessage {
	var out strings.Builder
	out.Grow(len(r.template))

	rest := r.template
	for {
		end := strings.Index(rest, placeholderClose)
		if end < 0 {
			break
		}
		start := strings.LastIndex(rest[:end], placeholderOpen)
		if start < 0 {
			out.WriteString(rest[:end+1])
			rest = rest[end+1:]
			continue
		}

		token := rest[start : end+1]
		out.WriteString(rest[:start])
		if value, ok := r.resolve(token, rcpt); ok {
			out.WriteString(value)
		} else {
			out.WriteString(token)
		}
		rest = rest[end+1:]
	}
	out.WriteString(rest)

	subject, body := splitSubject(out.String())
	return RenderedMessage{
		Subject: subject,
		Body:    body,
		To:      rcpt.Email,
	}
}

func (r *Renderer) resolve(token string, rcpt Recipient) (string, bool) {
	if token == CompanyPlaceholder {
		return strings.TrimSpace(rcpt.Fields[r.companyColumn]), true
	}
	if col, ok := r.bindings[token]; ok {
		// missing or blank cells render as empty, never as the raw token
		return strings.TrimSpace(rcpt.Fields[col]), true
	}
	if value, ok := r.details[token]; ok {
		return value, true
	}
	if token == ResumeLinkPlaceholder && r.resumeLink != "" {
		return r.resumeLink, true
	}
	return "", false
}

// Render is a one-shot form of NewRenderer(...).Render.
func Render(template string, rcpt Recipient, companyColumn string, bindings, userDetails map[string]string, resumeLink string) RenderedMessage {
	return NewRenderer(RenderConfig{
		Template:      template,
		CompanyColumn: companyColumn,
		Bindings:      bindings,
		UserDetails:   userDetails,
		ResumeLink:    resumeLink,
	}).Render(rcpt)
}

// HasSubjectLine reports whether the template's first line carries the marker.
func HasSubjectLine(template string) bool {
	return strings.HasPrefix(normalizeNewlines(template), SubjectMarker)
}

func splitSubject(content string) (string, string) {
	first, rest, _ := strings.Cut(content, "\n")
	return strings.TrimPrefix(first, SubjectMarker), rest
}

func placeholder(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, placeholderOpen) && strings.HasSuffix(name, placeholderClose) {
		return name
	}
	return placeholderOpen + name + placeholderClose
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
