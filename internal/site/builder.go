// Package site builds the deployable portfolio: it loads the project data,
// renders every page into the output directory and copies the static assets
// next to them.
//
// A build always starts from an empty output directory, so nothing from a
// previous build survives a data change. Any error aborts the build; the
// output directory is then incomplete and must be rebuilt, not repaired.
package site

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dconn.dev/sitegen/internal/config"
	"dconn.dev/sitegen/internal/models"
	"dconn.dev/sitegen/internal/render"
	"dconn.dev/sitegen/internal/services"
)

var tracer = otel.Tracer("dconn.dev/sitegen/internal/site")

const (
	homeTitle    = "Portfolio"
	resumeTitle  = "Resume"
	contactTitle = "Contact"

	portfolioDir = "portfolio"
	staticDir    = "static"
	indexFile    = "index.html"
)

// Builder runs site builds for one configuration
type Builder struct {
	cfg      *config.Config
	logger   *zap.Logger
	markdown goldmark.Markdown
}

// Option configures a Builder
type Option func(*Builder)

// WithLogger sets the logger used for build progress
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a new Builder
func NewBuilder(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{
		cfg:      cfg,
		logger:   zap.NewNop(),
		markdown: newMarkdown(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Report summarizes a finished build
type Report struct {
	BuildID  string
	Projects int
	Pages    []string // output-relative paths, in write order
	Skipped  []string // slugs of projects hosted elsewhere
	Assets   int
	Duration time.Duration
}

// data is everything a build reads before it touches the output directory
type data struct {
	index      *services.ProjectService
	filterTags []models.FilterTag
}

// Build runs a complete clean build
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{BuildID: uuid.NewString()}
	log := b.logger.With(zap.String("build_id", report.BuildID))

	ctx, span := tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(attribute.String("build.id", report.BuildID)))
	defer span.End()

	if err := b.build(ctx, log, report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, err
	}

	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("build.pages", len(report.Pages)),
		attribute.Int("build.assets", report.Assets),
	)
	log.Info("build complete",
		zap.Int("pages", len(report.Pages)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("assets", report.Assets),
		zap.String("output", b.cfg.OutputPath()),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (b *Builder) build(ctx context.Context, log *zap.Logger, report *Report) error {
	// 1. Load data before anything is removed
	log.Info("loading data")
	d, err := b.load(ctx)
	if err != nil {
		return err
	}
	report.Projects = len(d.index.GetAll())
	log.Info("loaded projects",
		zap.Int("projects", report.Projects),
		zap.Int("year_groups", len(d.index.YearGroups())),
		zap.Int("filter_tags", len(d.filterTags)),
	)

	// 2. Start from an empty output directory
	out := b.cfg.OutputPath()
	if err := b.checkOutput(); err != nil {
		return err
	}
	if err := clean(out); err != nil {
		return err
	}

	// 3. Pages
	log.Info("building pages")
	w := &pageWriter{
		out:      out,
		renderer: render.New(os.DirFS(b.cfg.TemplatesPath()), render.WithLayout(b.cfg.Layout)),
		log:      log,
		report:   report,
	}
	if err := b.writePages(ctx, w, d); err != nil {
		return err
	}

	// 4. Static assets
	log.Info("copying static assets")
	return b.copyAssets(ctx, log, report)
}

func (b *Builder) load(ctx context.Context) (*data, error) {
	_, span := tracer.Start(ctx, "Builder.load")
	defer span.End()

	projects, err := config.LoadProjects(b.cfg.ProjectsPath())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	tags, err := config.LoadFilterTags(b.cfg.FilterTagsPath())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &data{
		index:      services.NewProjectService(projects),
		filterTags: tags,
	}, nil
}

// rootPrefix is the asset prefix for a page at the given depth below the
// output root. Pages are always served from a web root, so depth does not
// change it.
func (b *Builder) rootPrefix(_ int) string {
	return b.cfg.BasePath
}

func (b *Builder) writePages(ctx context.Context, w *pageWriter, d *data) error {
	// Home page: index.html
	home := models.PageContext{
		Title:      homeTitle,
		Root:       b.rootPrefix(0),
		FilterTags: d.filterTags,
		YearGroups: d.index.YearGroups(),
	}
	if err := w.write(ctx, "home", home, indexFile); err != nil {
		return err
	}

	// Resume page: resume/index.html
	root := b.rootPrefix(1)
	resume := models.PageContext{
		Title:       resumeTitle,
		Root:        root,
		Stylesheets: []string{root + "/static/css/resume.css"},
	}
	if err := w.write(ctx, "resume", resume, "resume", indexFile); err != nil {
		return err
	}

	// Contact page: contact/index.html
	contact := models.PageContext{Title: contactTitle, Root: root}
	if err := w.write(ctx, "contact", contact, "contact", indexFile); err != nil {
		return err
	}

	// Project pages: portfolio/<slug>/index.html
	root = b.rootPrefix(2)
	for _, project := range d.index.GetAll() {
		if project.IsExternal() {
			w.log.Debug("skipping project", zap.String("slug", project.Slug), zap.String("reason", "external URL"))
			w.report.Skipped = append(w.report.Skipped, project.Slug)
			continue
		}

		fragment, err := loadFragment(b.cfg.ContentPath(), project.Slug, b.markdown)
		if err != nil {
			return fmt.Errorf("project %s: %w", project.Slug, err)
		}

		p := project
		page := models.PageContext{
			Title:    project.Title,
			Root:     root,
			Project:  &p,
			Fragment: fragment,
		}
		if err := w.write(ctx, "project", page, portfolioDir, project.Slug, indexFile); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) copyAssets(ctx context.Context, log *zap.Logger, report *Report) error {
	_, span := tracer.Start(ctx, "Builder.copyAssets")
	defer span.End()

	src := b.cfg.StaticPath()
	out := b.cfg.OutputPath()

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("static assets: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static assets: %s is not a directory", src)
	}

	n, err := copyDir(src, filepath.Join(out, staticDir))
	if err != nil {
		return err
	}
	report.Assets = n
	log.Info("copied static assets", zap.Int("files", n))

	if b.cfg.Favicon == "" {
		return nil
	}
	favicon := filepath.Join(src, b.cfg.Favicon)
	ok, err := fileExists(favicon)
	if err != nil || !ok {
		return err
	}
	name := filepath.Base(b.cfg.Favicon)
	if err := copyFile(favicon, filepath.Join(out, name)); err != nil {
		return err
	}
	report.Assets++
	log.Info("copied favicon", zap.String("path", name))
	return nil
}

// checkOutput refuses output directories whose removal would take sources
// with it, and output directories the static copy would recurse into.
func (b *Builder) checkOutput() error {
	out, err := filepath.Abs(b.cfg.OutputPath())
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if filepath.Dir(out) == out {
		return fmt.Errorf("%w: %s is a filesystem root", ErrUnsafeOutput, out)
	}

	root, err := filepath.Abs(b.cfg.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}
	if within(out, root) {
		return fmt.Errorf("%w: %s contains the project root", ErrUnsafeOutput, out)
	}

	for _, dir := range b.cfg.SourceDirs() {
		src, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		if within(out, src) {
			return fmt.Errorf("%w: %s contains source directory %s", ErrUnsafeOutput, out, src)
		}
	}

	static, err := filepath.Abs(b.cfg.StaticPath())
	if err != nil {
		return fmt.Errorf("failed to resolve static directory: %w", err)
	}
	if within(static, out) {
		return fmt.Errorf("%w: %s is inside static directory %s", ErrUnsafeOutput, out, static)
	}
	return nil
}

// pageWriter renders pages and writes them below out
type pageWriter struct {
	out      string
	renderer *render.Renderer
	log      *zap.Logger
	report   *Report
}

func (w *pageWriter) write(ctx context.Context, page string, pc models.PageContext, path ...string) error {
	html, err := w.renderer.Page(ctx, page, pc)
	if err != nil {
		return fmt.Errorf("render %s: %w", filepath.Join(path...), err)
	}

	rel := filepath.Join(path...)
	if err := writeFile(filepath.Join(w.out, rel), []byte(html)); err != nil {
		return err
	}
	w.report.Pages = append(w.report.Pages, filepath.ToSlash(rel))
	w.log.Info("wrote page", zap.String("path", filepath.ToSlash(rel)))
	return nil
}
