package site

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dconn.dev/sitegen/internal/config"
	"dconn.dev/sitegen/internal/render"
)

const fixtureProjects = `{
  "sections": [
    {
      "id": "featured",
      "title": "Featured",
      "projects": [
        {"slug": "a", "title": "Alpha", "year": 2023, "filters": ["web"]},
        {"slug": "ext", "title": "External", "year": 2024, "externalUrl": "https://example.com/ext"}
      ]
    },
    {
      "id": "more",
      "title": "More",
      "projects": [
        {"slug": "b", "title": "Beta", "year": 2024},
        {"slug": "a", "title": "Alpha again", "year": 2020}
      ]
    }
  ]
}`

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	}
}

// readTree returns every file below dir keyed by slash-separated relative path
func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

// newFixture lays out a minimal site below a temp root
func newFixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"data/projects.json":    fixtureProjects,
		"data/filter-tags.json": `[{"key": "web", "name": "Web"}]`,

		"data/content/a.html": "<p>custom html</p>",
		"data/content/b.md":   "# Heading\n\n| k | v |\n|---|---|\n| 1 | 2 |\n",

		"web/templates/layouts/base.html.tmpl":  `<title>{{.Title}}</title>{{range .Stylesheets}}<link href="{{.}}">{{end}}<main>{{.Content}}</main>`,
		"web/templates/pages/home.html.tmpl":    `{{range .FilterTags}}[{{.Key}}]{{end}}{{range .YearGroups}}<section id="year-{{.Year}}">{{range .Projects}}<a href="{{$.Root}}/portfolio/{{.Slug}}/">{{.Title}}</a>{{end}}</section>{{end}}`,
		"web/templates/pages/project.html.tmpl": `<h1>{{.Project.Title}}</h1>{{.Fragment}}`,
		"web/templates/pages/resume.html.tmpl":  `resume`,
		"web/templates/pages/contact.html.tmpl": `contact`,

		"web/static/css/site.css": "body{}",
		"web/static/favicon.svg":  "<svg/>",
	})
	return config.DefaultConfig(root)
}

func TestBuild_WritesSite(t *testing.T) {
	cfg := newFixture(t)

	report, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"index.html",
		"resume/index.html",
		"contact/index.html",
		"portfolio/a/index.html",
		"portfolio/b/index.html",
	}, report.Pages)
	assert.Equal(t, []string{"ext"}, report.Skipped)
	assert.Equal(t, 3, report.Projects)
	assert.Equal(t, 3, report.Assets) // two static files plus the root favicon
	assert.NotEmpty(t, report.BuildID)

	files := readTree(t, cfg.OutputPath())
	assert.NotContains(t, files, "portfolio/ext/index.html")
	assert.Equal(t, "body{}", files["static/css/site.css"])
	assert.Equal(t, "<svg/>", files["static/favicon.svg"])
	assert.Equal(t, "<svg/>", files["favicon.svg"])
	assert.Equal(t, "<title>Resume</title><link href=\"/static/css/resume.css\"><main>resume</main>", files["resume/index.html"])
	assert.Equal(t, "<title>Contact</title><main>contact</main>", files["contact/index.html"])
}

func TestBuild_HomeGroupsByYearDescending(t *testing.T) {
	cfg := newFixture(t)

	_, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)

	home := readTree(t, cfg.OutputPath())["index.html"]
	assert.Contains(t, home, "[web]")

	i2024 := strings.Index(home, `id="year-2024"`)
	i2023 := strings.Index(home, `id="year-2023"`)
	require.NotEqual(t, -1, i2024)
	require.NotEqual(t, -1, i2023)
	assert.Less(t, i2024, i2023)

	// first sighting of a duplicated slug wins
	assert.Contains(t, home, `<a href="/portfolio/a/">Alpha</a>`)
	assert.NotContains(t, home, "Alpha again")
	assert.NotContains(t, home, `id="year-2020"`)

	// within a year, authored order is kept
	assert.Less(t, strings.Index(home, "/portfolio/ext/"), strings.Index(home, "/portfolio/b/"))
}

func TestBuild_ProjectFragments(t *testing.T) {
	cfg := newFixture(t)

	_, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)

	files := readTree(t, cfg.OutputPath())
	assert.Contains(t, files["portfolio/a/index.html"], "<h1>Alpha</h1><p>custom html</p>")

	b := files["portfolio/b/index.html"]
	assert.Contains(t, b, "<h1>Heading</h1>")
	assert.Contains(t, b, "<table>")
}

func TestBuild_BasePathPrefixesLinks(t *testing.T) {
	cfg := newFixture(t)
	cfg.BasePath = "/site"

	_, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)

	files := readTree(t, cfg.OutputPath())
	assert.Contains(t, files["index.html"], `href="/site/portfolio/a/"`)
	assert.Contains(t, files["resume/index.html"], `href="/site/static/css/resume.css"`)
}

func TestBuild_RemovesStaleOutput(t *testing.T) {
	cfg := newFixture(t)
	writeTree(t, cfg.OutputPath(), map[string]string{
		"stale.html":                "old",
		"portfolio/gone/index.html": "old",
	})

	_, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)

	files := readTree(t, cfg.OutputPath())
	assert.NotContains(t, files, "stale.html")
	assert.NotContains(t, files, "portfolio/gone/index.html")
}

func TestBuild_IsIdempotent(t *testing.T) {
	cfg := newFixture(t)
	b := NewBuilder(cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	first := readTree(t, cfg.OutputPath())

	_, err = b.Build(context.Background())
	require.NoError(t, err)
	second := readTree(t, cfg.OutputPath())

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second build differs (-first +second):\n%s", diff)
	}
}

func TestBuild_DataErrorKeepsPreviousOutput(t *testing.T) {
	cfg := newFixture(t)
	b := NewBuilder(cfg)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	before := readTree(t, cfg.OutputPath())

	writeTree(t, cfg.Root, map[string]string{"data/projects.json": `{"sections": [`})
	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, config.ErrMalformedData)

	require.NoError(t, os.Remove(cfg.ProjectsPath()))
	_, err = b.Build(context.Background())
	assert.ErrorIs(t, err, config.ErrMissingData)

	assert.Equal(t, before, readTree(t, cfg.OutputPath()))
}

func TestBuild_TemplateErrorFails(t *testing.T) {
	cfg := newFixture(t)
	writeTree(t, cfg.Root, map[string]string{
		"web/templates/pages/contact.html.tmpl": `{{.Phone}}`,
	})

	_, err := NewBuilder(cfg).Build(context.Background())
	require.Error(t, err)

	var rerr *render.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "pages/contact.html.tmpl", rerr.Template)
	assert.Contains(t, err.Error(), "contact")
}

func TestBuild_MissingTemplateFails(t *testing.T) {
	cfg := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.TemplatesPath(), "pages", "resume.html.tmpl")))

	_, err := NewBuilder(cfg).Build(context.Background())
	assert.ErrorIs(t, err, render.ErrTemplateNotFound)
}

func TestBuild_MissingStaticDirFails(t *testing.T) {
	cfg := newFixture(t)
	require.NoError(t, os.RemoveAll(cfg.StaticPath()))

	_, err := NewBuilder(cfg).Build(context.Background())
	assert.Error(t, err)
}

func TestBuild_WithoutFaviconOrContent(t *testing.T) {
	cfg := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.StaticPath(), "favicon.svg")))
	cfg.ContentDir = ""

	report, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assets)

	files := readTree(t, cfg.OutputPath())
	assert.NotContains(t, files, "favicon.svg")
	assert.Equal(t, "<title>Alpha</title><main><h1>Alpha</h1></main>", files["portfolio/a/index.html"])
}

func TestBuild_RefusesUnsafeOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"project root", "."},
		{"parent of project root", ".."},
		{"data directory", "data"},
		{"contains templates", "web"},
		{"inside static", "web/static/out"},
		{"filesystem root", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newFixture(t)
			cfg.OutputDir = tt.output

			_, err := NewBuilder(cfg).Build(context.Background())
			assert.ErrorIs(t, err, ErrUnsafeOutput)

			// nothing was removed
			_, statErr := os.Stat(cfg.ProjectsPath())
			assert.NoError(t, statErr)
			_, statErr = os.Stat(filepath.Join(cfg.StaticPath(), "css", "site.css"))
			assert.NoError(t, statErr)
		})
	}
}

func TestBuild_LogsProgress(t *testing.T) {
	cfg := newFixture(t)
	core, logs := observer.New(zapcore.DebugLevel)

	report, err := NewBuilder(cfg, WithLogger(zap.New(core))).Build(context.Background())
	require.NoError(t, err)

	wrote := logs.FilterMessage("wrote page").All()
	assert.Len(t, wrote, len(report.Pages))
	for _, entry := range wrote {
		assert.Equal(t, report.BuildID, entry.ContextMap()["build_id"])
	}

	skipped := logs.FilterMessage("skipping project").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "ext", skipped[0].ContextMap()["slug"])

	assert.Equal(t, 1, logs.FilterMessage("build complete").Len())
}

func TestBuild_CopiesSymlinkedStaticDir(t *testing.T) {
	cfg := newFixture(t)
	vendor := filepath.Join(cfg.Root, "vendor")
	writeTree(t, vendor, map[string]string{"lib.js": "lib()", "fonts/a.woff": "font"})
	require.NoError(t, os.Symlink(vendor, filepath.Join(cfg.StaticPath(), "vendor")))

	report, err := NewBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Assets)

	files := readTree(t, filepath.Join(cfg.OutputPath(), "static"))
	assert.Equal(t, "lib()", files["vendor/lib.js"])
	assert.Equal(t, "font", files["vendor/fonts/a.woff"])

	// a real directory, not a link back into the source tree
	info, err := os.Lstat(filepath.Join(cfg.OutputPath(), "static", "vendor"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBuild_SymlinkCycleFails(t *testing.T) {
	cfg := newFixture(t)
	require.NoError(t, os.Symlink(cfg.StaticPath(), filepath.Join(cfg.StaticPath(), "css", "loop")))

	_, err := NewBuilder(cfg).Build(context.Background())
	assert.ErrorIs(t, err, ErrSymlinkCycle)
}

func TestCopyDir_SymlinkedRoot(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, filepath.Join(dir, "real"), map[string]string{"a.css": "a"})
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real"), link))

	n, err := copyDir(link, filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]string{"a.css": "a"}, readTree(t, filepath.Join(dir, "out")))
}

func TestWithin(t *testing.T) {
	tests := []struct {
		parent, path string
		want         bool
	}{
		{"/a", "/a", true},
		{"/a", "/a/b", true},
		{"/a", "/ab", false},
		{"/a/b", "/a", false},
		{"/a", "/..a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.parent, tt.path), "%s in %s", tt.path, tt.parent)
	}
}
