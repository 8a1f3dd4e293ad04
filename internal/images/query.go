package images

import (
	"strings"

	"productimages/internal/models"
)

// StatusAll disables the status filter.
const StatusAll = "ALL"

type Filter struct {
	Search string
	Status string
}

func (f Filter) Matches(img models.ProductImage) bool {
	if s := strings.ToUpper(strings.TrimSpace(f.Status)); s != "" && s != StatusAll {
		if string(img.Status) != s {
			return false
		}
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(img.PartNumber), q) ||
		strings.Contains(strings.ToLower(img.FileName), q) ||
		strings.Contains(strings.ToLower(img.UploaderName), q)
}

type Page struct {
	Items      []models.ProductImage `json:"items"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	TotalPages int                   `json:"totalPages"`
	TotalItems int                   `json:"totalItems"`
}

// TotalPages is never below 1, so an empty result still has a page 1.
func TotalPages(items, pageSize int) int {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if items <= 0 {
		return 1
	}
	return (items + pageSize - 1) / pageSize
}

func ClampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Query filters images, keeping their order, and returns the 1-based page.
// Out-of-range pages are clamped.
func Query(images []models.ProductImage, f Filter, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	matched := make([]models.ProductImage, 0, len(images))
	for _, img := range images {
		if f.Matches(img) {
			matched = append(matched, img)
		}
	}

	total := TotalPages(len(matched), pageSize)
	page = ClampPage(page, total)
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return Page{
		Items:      matched[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalPages: total,
		TotalItems: len(matched),
	}
}

// View holds browse state. Changing either filter goes back to page 1.
type View struct {
	filter   Filter
	page     int
	pageSize int
}

func NewView(pageSize int) *View {
	return &View{page: 1, pageSize: pageSize, filter: Filter{Status: StatusAll}}
}

func (v *View) SetSearch(s string) {
	if s != v.filter.Search {
		v.filter.Search = s
		v.page = 1
	}
}

func (v *View) SetStatus(s string) {
	if s != v.filter.Status {
		v.filter.Status = s
		v.page = 1
	}
}

func (v *View) SetPage(p int) { v.page = p }

func (v *View) Filter() Filter { return v.filter }

// Apply renders the current page and remembers the clamped page index.
func (v *View) Apply(images []models.ProductImage) Page {
	p := Query(images, v.filter, v.page, v.pageSize)
	v.page = p.Page
	return p
}
