package headless

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/leadgen-pipeline/internal/extract"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

const snippetLimit = 300

// cardSelector matches one result card on the listings surface.
const cardSelector = `div[role="article"], [data-result-card]`

// parseListings reads the result cards out of rendered results markup.
// Cards without a name are skipped.
func parseListings(markup string) []lead.Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var out []lead.Listing
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		name := cardName(card)
		if name == "" {
			return
		}
		text := extract.SelectionText(card)
		out = append(out, lead.Listing{
			Name:    name,
			Rating:  cardRating(card),
			Phone:   extract.Phone(text),
			Website: cardWebsite(card),
			Address: cardAddress(card),
			Snippet: truncateRunes(text, snippetLimit),
		})
	})
	return out
}

func cardName(card *goquery.Selection) string {
	if v, ok := card.Attr("aria-label"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := card.Attr("data-name"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	for _, sel := range []string{".qBF1Pd", ".fontHeadlineSmall", "h3", "h2"} {
		if t := strings.TrimSpace(card.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func cardRating(card *goquery.Selection) string {
	if v, ok := card.Find(`span[role="img"][aria-label]`).First().Attr("aria-label"); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := card.Find("[data-rating]").First().Attr("data-rating"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func cardWebsite(card *goquery.Selection) string {
	for _, sel := range []string{`a[data-value="Website"]`, "a[data-website]"} {
		if href, ok := card.Find(sel).First().Attr("href"); ok && isExternalLink(href) {
			return href
		}
	}
	var website string
	card.Find(`a[href^="http"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if isExternalLink(href) {
			website = href
			return false
		}
		return true
	})
	return website
}

func cardAddress(card *goquery.Selection) string {
	if v, ok := card.Find("[data-address]").First().Attr("data-address"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(card.Find("address").First().Text())
}

// isExternalLink rejects links back into the search surface itself.
func isExternalLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return !strings.Contains(host, "google.") && !strings.HasSuffix(host, "gstatic.com")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
