package models

import "html/template"

// PageContext is the data handed to a page template
type PageContext struct {
	Title string
	// Root is prepended to every site-absolute asset href.
	Root        string
	Stylesheets []string

	// Home page
	FilterTags []FilterTag
	YearGroups []YearGroup

	// Project detail page
	Project  *Project
	Fragment template.HTML
}

// LayoutData is the data handed to the shared layout. Content holds the
// already-rendered page body.
type LayoutData struct {
	PageContext
	Content template.HTML
}
