package acquisition

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahmetbombaplant-boop/instagramposts222/internal/domain"
)

// defaultStyle is the placeholder style a requester sends when they have no
// preference. It carries no search signal.
const defaultStyle = "default"

// BuildQuery joins the prompt fields into one search query and appends a
// negative site filter for every denied domain.
func BuildQuery(p domain.Prompt, denyDomains []string) string {
	// A Caser is stateful, so each call gets its own.
	folder := cases.Lower(language.Und)
	var parts []string
	for _, field := range []string{p.Subject, p.Theme, p.Style} {
		normalized := strings.Join(strings.Fields(folder.String(field)), " ")
		if normalized == "" || normalized == defaultStyle {
			continue
		}
		parts = append(parts, normalized)
	}
	for _, d := range denyDomains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		parts = append(parts, "-site:"+d)
	}
	return strings.Join(parts, " ")
}
