package domain

// Candidate is one raw image returned by the search collaborator.
type Candidate struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Host      string `json:"host"`
	Profile   string `json:"profile"`
	// Order is the position in acquisition order and breaks score ties.
	Order int `json:"order"`
}

// Megapixels returns the effective pixel count in millions.
func (c Candidate) Megapixels() float64 {
	if c.Width <= 0 || c.Height <= 0 {
		return 0
	}
	return float64(c.Width) * float64(c.Height) / 1e6
}

// Preview is a ranked candidate addressable by its 1-based Index.
type Preview struct {
	Index   int     `json:"index"`
	URL     string  `json:"url"`
	Host    string  `json:"host"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Score   float64 `json:"score"`
	Profile string  `json:"profile"`
}

// PreviewURLs returns the ordered URL listing of a preview set.
func PreviewURLs(previews []Preview) []string {
	urls := make([]string, 0, len(previews))
	for _, p := range previews {
		urls = append(urls, p.URL)
	}
	return urls
}
