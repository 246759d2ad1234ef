package sources

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SocialLinks returns the first Facebook and Instagram profile links on the
// page. Share and intent links are ignored.
func SocialLinks(doc *goquery.Document) (facebook, instagram string) {
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return true
		}
		if strings.Contains(u.Path, "share") || strings.Contains(u.Path, "intent") {
			return true
		}
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		host = strings.TrimPrefix(host, "m.")
		switch {
		case facebook == "" && (host == "facebook.com" || host == "fb.com"):
			facebook = normalizeProfile(u)
		case instagram == "" && host == "instagram.com":
			instagram = normalizeProfile(u)
		}
		return facebook == "" || instagram == ""
	})
	return facebook, instagram
}

func normalizeProfile(u *url.URL) string {
	cp := *u
	cp.Scheme = "https"
	cp.RawQuery = ""
	cp.Fragment = ""
	return cp.String()
}
