package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// VisibleText returns the human-readable text of an HTML document with
// scripts, styles, and templates removed and whitespace collapsed.
func VisibleText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return SelectionText(doc.Selection), nil
}

// SelectionText flattens the visible text of a goquery selection.
func SelectionText(sel *goquery.Selection) string {
	sel = sel.Clone()
	sel.Find("script, style, noscript, template, svg").Remove()
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// Contacts holds values lifted from mailto: and tel: links.
type Contacts struct {
	Email string
	Phone string
}

// LinkContacts scans anchor hrefs for mailto: and tel: targets. These often
// carry contact details that never appear in the visible text.
func LinkContacts(markup string) Contacts {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Contacts{}
	}
	var out Contacts
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		switch {
		case out.Email == "" && strings.HasPrefix(lower, "mailto:"):
			addr := href[len("mailto:"):]
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			out.Email = Email(addr)
		case out.Phone == "" && strings.HasPrefix(lower, "tel:"):
			out.Phone = Phone(href[len("tel:"):])
		}
		return out.Email == "" || out.Phone == ""
	})
	return out
}
