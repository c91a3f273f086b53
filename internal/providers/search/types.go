package search

import "context"

// Filter narrows results on the provider side. The zero Filter applies no
// constraint.
type Filter struct {
	Name          string
	PortraitOnly  bool
	PhotoOnly     bool
	MinMegapixels float64
}

// Request asks for one page of image results.
type Request struct {
	Query  string
	Page   int
	Filter Filter
}

// Result is the provider-neutral metadata of one image.
type Result struct {
	URL       string
	Thumbnail string
	Width     int
	Height    int
	Host      string
}

// Page is one page of results. HasMore is false once the provider has no
// further pages for the query.
type Page struct {
	Results []Result
	HasMore bool
}

// Searcher is the contract implemented by image search providers.
type Searcher interface {
	Search(ctx context.Context, req Request) (*Page, error)
}
