package models

// Project represents a portfolio project
type Project struct {
	Slug        string         `json:"slug" yaml:"slug" validate:"required,pathsegment"`
	Title       string         `json:"title" yaml:"title" validate:"required"`
	Year        int            `json:"year" yaml:"year" validate:"required,gt=0"`
	ExternalURL string         `json:"externalUrl,omitempty" yaml:"externalUrl,omitempty" validate:"omitempty,url"`
	Subtitle    string         `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Date        string         `json:"date,omitempty" yaml:"date,omitempty"`
	Role        string         `json:"role,omitempty" yaml:"role,omitempty"`
	Cover       string         `json:"cover,omitempty" yaml:"cover,omitempty"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Filters     []string       `json:"filters,omitempty" yaml:"filters,omitempty"`
	Links       []Link         `json:"links,omitempty" yaml:"links,omitempty" validate:"dive"`
	Media       []Media        `json:"media,omitempty" yaml:"media,omitempty" validate:"dive"`
	Extra       map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// IsExternal reports whether the project is hosted elsewhere
func (p Project) IsExternal() bool {
	return p.ExternalURL != ""
}

// Link is a labelled outbound link shown on a project page
type Link struct {
	Label string `json:"label" yaml:"label" validate:"required"`
	URL   string `json:"url" yaml:"url" validate:"required"`
}

// Media is an image or video attached to a project
type Media struct {
	Type    string `json:"type" yaml:"type" validate:"omitempty,oneof=image video"`
	Src     string `json:"src" yaml:"src" validate:"required"`
	Alt     string `json:"alt,omitempty" yaml:"alt,omitempty"`
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty"`
}

// Section is an authored group of projects. The same project may appear in
// more than one section.
type Section struct {
	ID       string    `json:"id,omitempty" yaml:"id,omitempty"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
	Projects []Project `json:"projects" yaml:"projects" validate:"dive"`
}

// ProjectList wraps the sections of the projects document
type ProjectList struct {
	Sections []Section `json:"sections" yaml:"sections" validate:"required,dive"`
}

// FilterTag drives the client-side project filter buttons
type FilterTag struct {
	Key  string `json:"key" yaml:"key" validate:"required"`
	Name string `json:"name" yaml:"name" validate:"required"`
}

// YearGroup pairs a year with the projects from that year, in index order
type YearGroup struct {
	Year     int       `json:"year"`
	Projects []Project `json:"projects"`
}
