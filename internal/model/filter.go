package model

import (
	"math"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPageNumber keeps Offset from overflowing.
	MaxPageNumber = math.MaxInt / MaxPageSize
)

type SortKey string

const (
	SortByDate        SortKey = "date"
	SortByStatus      SortKey = "status"
	SortByRequestedBy SortKey = "requestedby"
)

// ParseSortKey is case-insensitive. Unknown keys report ok=false.
func ParseSortKey(s string) (SortKey, bool) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortByDate, SortByStatus, SortByRequestedBy:
		return k, true
	}
	return "", false
}

type AppointmentFilter struct {
	Status         *Status
	BranchID       *int64
	RequestedByID  *int64
	StartDate      *Date
	EndDate        *Date
	SearchText     string
	SortBy         string
	SortDescending bool
	PageNumber     int
	PageSize       int
}

// Order resolves the effective sort. Without a recognised key the
// listing is newest date first regardless of SortDescending.
func (f AppointmentFilter) Order() (SortKey, bool) {
	if k, ok := ParseSortKey(f.SortBy); ok {
		return k, f.SortDescending
	}
	return SortByDate, true
}

// Normalize fills paging defaults and clamps the page number and size.
func (f *AppointmentFilter) Normalize() {
	if f.PageNumber <= 0 {
		f.PageNumber = 1
	}
	if f.PageNumber > MaxPageNumber {
		f.PageNumber = MaxPageNumber
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.SearchText = strings.TrimSpace(f.SearchText)
}

func (f AppointmentFilter) Offset() int {
	return (f.PageNumber - 1) * f.PageSize
}

type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

func NewPage[T any](items []T, total, number, size int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Page[T]{
		Items:      items,
		TotalCount: total,
		PageNumber: number,
		PageSize:   size,
		TotalPages: pages,
	}
}
