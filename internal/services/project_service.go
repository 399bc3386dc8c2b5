package services

import (
	"fmt"
	"sort"

	"dconn.dev/sitegen/internal/models"
)

// ProjectService indexes the authored sections: one entry per slug, in
// first-seen order, plus the year groups the home page is laid out by.
type ProjectService struct {
	sections   []models.Section
	projects   []models.Project
	bySlug     map[string]int
	yearGroups []models.YearGroup
}

// NewProjectService builds the index for a project list
func NewProjectService(list *models.ProjectList) *ProjectService {
	s := &ProjectService{bySlug: make(map[string]int)}
	if list == nil {
		return s
	}
	s.sections = list.Sections

	// Sections in order, then projects in order; the first sighting of a
	// slug wins.
	for _, section := range list.Sections {
		for _, p := range section.Projects {
			if _, seen := s.bySlug[p.Slug]; seen {
				continue
			}
			s.bySlug[p.Slug] = len(s.projects)
			s.projects = append(s.projects, p)
		}
	}

	s.yearGroups = groupByYear(s.projects)
	return s
}

// groupByYear buckets projects by year, newest year first. Projects keep
// their relative order inside a bucket.
func groupByYear(projects []models.Project) []models.YearGroup {
	byYear := make(map[int][]models.Project)
	var years []int
	for _, p := range projects {
		if _, ok := byYear[p.Year]; !ok {
			years = append(years, p.Year)
		}
		byYear[p.Year] = append(byYear[p.Year], p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	groups := make([]models.YearGroup, 0, len(years))
	for _, year := range years {
		groups = append(groups, models.YearGroup{Year: year, Projects: byYear[year]})
	}
	return groups
}

// GetAll returns all unique projects
func (s *ProjectService) GetAll() []models.Project {
	return s.projects
}

// YearGroups returns the projects grouped by year, descending
func (s *ProjectService) YearGroups() []models.YearGroup {
	return s.yearGroups
}

// Sections returns the sections as authored, duplicates included
func (s *ProjectService) Sections() []models.Section {
	return s.sections
}

// Publishable returns the projects that get a detail page of their own
func (s *ProjectService) Publishable() []models.Project {
	var out []models.Project
	for _, p := range s.projects {
		if !p.IsExternal() {
			out = append(out, p)
		}
	}
	return out
}

// GetBySlug returns a specific project by slug
func (s *ProjectService) GetBySlug(slug string) (*models.Project, error) {
	i, ok := s.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("project not found: %s", slug)
	}
	return &s.projects[i], nil
}
