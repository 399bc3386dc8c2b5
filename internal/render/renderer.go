// Package render turns page templates into finished HTML documents.
//
// Every page is rendered twice: first the page template on its own, producing
// the page body, then the shared layout with that body available as .Content
// next to the same page data. Both steps run with missingkey=error, and a
// template that references a field the data does not have fails the render
// instead of producing empty output.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dconn.dev/sitegen/internal/models"
)

const (
	// DefaultLayout is the layout path used when none is configured.
	DefaultLayout = "layouts/base.html.tmpl"

	pageDir        = "pages"
	pageSuffix     = ".html.tmpl"
	partialPattern = "partials/*.html.tmpl"
)

// ErrTemplateNotFound is returned when a page or layout template is missing
// from the template root.
var ErrTemplateNotFound = errors.New("template not found")

var tracer = otel.Tracer("dconn.dev/sitegen/internal/render")

// Error describes a template failure: which template, and whether it failed
// while parsing or executing.
type Error struct {
	Template string
	Stage    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error %s template %q: %v", e.Stage, e.Template, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Renderer renders pages from a template root. A Renderer is meant to live
// for one build.
type Renderer struct {
	templates fs.FS
	layout    string
	funcs     template.FuncMap
	parsed    map[string]*template.Template
}

// Option configures a Renderer
type Option func(*Renderer)

// WithLayout sets the layout template path inside the template root
func WithLayout(layout string) Option {
	return func(r *Renderer) {
		if layout != "" {
			r.layout = layout
		}
	}
}

// WithFuncs adds template functions, overriding the defaults on conflict
func WithFuncs(funcs template.FuncMap) Option {
	return func(r *Renderer) {
		for k, v := range funcs {
			r.funcs[k] = v
		}
	}
}

// New creates a Renderer reading templates from the given root
func New(templates fs.FS, opts ...Option) *Renderer {
	r := &Renderer{
		templates: templates,
		layout:    DefaultLayout,
		funcs:     defaultFuncs(),
		parsed:    make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"join":  strings.Join,
		"lower": strings.ToLower,
	}
}

// PagePath returns the template path for a page name
func PagePath(page string) string {
	return path.Join(pageDir, page+pageSuffix)
}

// Page renders the named page into the layout
func (r *Renderer) Page(ctx context.Context, page string, data models.PageContext) (string, error) {
	_, span := tracer.Start(ctx, "Renderer.Page")
	defer span.End()
	span.SetAttributes(attribute.String("page", page))

	body, err := r.Execute(PagePath(page), data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page render failed")
		return "", err
	}

	html, err := r.Execute(r.layout, models.LayoutData{
		PageContext: data,
		Content:     template.HTML(body),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "layout render failed")
		return "", err
	}
	return html, nil
}

// Execute renders a single template file to a string
func (r *Renderer) Execute(name string, data any) (string, error) {
	tmpl, err := r.template(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &Error{Template: name, Stage: "executing", Err: err}
	}
	return buf.String(), nil
}

func (r *Renderer) template(name string) (*template.Template, error) {
	if tmpl, ok := r.parsed[name]; ok {
		return tmpl, nil
	}

	contents, err := fs.ReadFile(r.templates, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("error reading %q: %w", name, err)
	}

	tmpl, err := template.New(name).
		Funcs(r.funcs).
		Option("missingkey=error").
		Parse(string(contents))
	if err != nil {
		return nil, &Error{Template: name, Stage: "parsing", Err: err}
	}

	// partials are available to every page and to the layout by file name
	partials, err := fs.Glob(r.templates, partialPattern)
	if err != nil {
		return nil, fmt.Errorf("error listing partials: %w", err)
	}
	for _, partial := range partials {
		contents, err := fs.ReadFile(r.templates, partial)
		if err != nil {
			return nil, fmt.Errorf("error reading %q: %w", partial, err)
		}
		if _, err := tmpl.New(partial).Parse(string(contents)); err != nil {
			return nil, &Error{Template: partial, Stage: "parsing", Err: err}
		}
	}

	r.parsed[name] = tmpl
	return tmpl, nil
}
