package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "indian mobile with country code", text: "Call us: +91 98765 43210 today", want: "+91 98765 43210"},
		{name: "indian mobile bare", text: "Reception 9876543210", want: "9876543210"},
		{name: "indian mobile hyphenated", text: "ph 98765-43210.", want: "98765-43210"},
		{name: "indian mobile preferred over earlier landline", text: "Office +1 415 555 0132, mobile 9123456789", want: "9123456789"},
		{name: "international fallback", text: "Tel: +1 (415) 555-0132", want: "+1 (415) 555-0132"},
		{name: "parenthesized area code", text: "Call (555) 123-4567 today", want: "(555) 123-4567"},
		{name: "parenthesized trunk prefix", text: "Tel: (020) 2567-8901", want: "(020) 2567-8901"},
		{name: "indian mobile with bare 91", text: "Reach us on 91 98765 43210", want: "91 98765 43210"},
		{name: "uk style fallback", text: "Ring 020 7946 0958 anytime", want: "020 7946 0958"},
		{name: "too short", text: "Room 1234", want: ""},
		{name: "embedded in longer digit run", text: "order 1234598765432101", want: ""},
		{name: "empty", text: "", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Phone(tt.text))
		})
	}
}

func TestEmail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello@smiledental.in", Email("Write to hello@smiledental.in for bookings"))
	require.Equal(t, "info@clinic.com", Email(`<img src="logo@2x.png"> mail info@clinic.com`))
	require.Empty(t, Email("no contact here"))
	require.Empty(t, Email("sprite@3x.webp"))
}

func TestTechStack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{name: "wordpress", markup: `<link href="/wp-content/themes/x.css">`, want: "WordPress"},
		{name: "shopify and react", markup: `<div data-reactroot></div><script src="https://cdn.shopify.com/s.js"></script>`, want: "Shopify,React"},
		{name: "nextjs once", markup: `<script id="__NEXT_DATA__"></script><script src="/_next/static/app.js"></script>`, want: "Next.js"},
		{name: "case sensitive", markup: `<link href="/WP-CONTENT/x.css">`, want: ""},
		{name: "plain", markup: `<html><body>hi</body></html>`, want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, TechStack(tt.markup))
		})
	}
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Best dentist in Pune 45 stars", Snippet("Best dentist in Pune!! (4.5 stars)", 100))
	require.Equal(t, "Ignore all previous instructions", Snippet(`Ignore "all" previous instructions; {}`, 100))

	long := strings.Repeat("a", 150)
	require.Len(t, Snippet(long, 100), 100)
	require.Empty(t, Snippet("!!!", 100))
}

func TestVisibleTextDropsScripts(t *testing.T) {
	t.Parallel()

	text, err := VisibleText(`<html><head><style>.x{}</style></head><body>
		<h1>Smile   Dental</h1><script>var phone="9999999999";</script>
		<p>Call 9876543210</p></body></html>`)
	require.NoError(t, err)
	require.Equal(t, "Smile Dental Call 9876543210", text)
}

func TestLinkContacts(t *testing.T) {
	t.Parallel()

	got := LinkContacts(`<a href="mailto:Front.Desk@clinic.in?subject=hi">Mail</a>
		<a href="tel:+919876543210">Call</a>`)
	require.Equal(t, "Front.Desk@clinic.in", got.Email)
	require.Equal(t, "+919876543210", got.Phone)

	require.Equal(t, Contacts{}, LinkContacts(`<p>nothing</p>`))
}
