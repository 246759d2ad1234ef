package photos

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// refPatterns extract a stable id from the photo URL shapes we see, tried in
// order. The first capture group is the ref.
var refPatterns = []*regexp.Regexp{
	// https://places.googleapis.com/v1/places/{place}/photos/{ref}/media
	regexp.MustCompile(`/photos/([^/?#]+)/media`),
	// legacy Place Photos: ...?photoreference={ref} or photo_reference={ref}
	regexp.MustCompile(`[?&]photo_?reference=([^&#]+)`),
	// https://lh3.googleusercontent.com/places/{ref}=s1600-w1600
	regexp.MustCompile(`googleusercontent\.com/(?:places|p|gps-cs-s)/([A-Za-z0-9_-]+)`),
	// https://maps.gstatic.com/... or any /photo/{ref} path
	regexp.MustCompile(`/photo/([A-Za-z0-9_-]{16,})`),
}

// ExtractRef returns the external reference for a photo URL. URLs that match
// no known shape get a hash of the URL so the ref is still stable.
func ExtractRef(u string) string {
	for _, re := range refPatterns {
		if m := re.FindStringSubmatch(u); len(m) == 2 && m[1] != "" {
			return m[1]
		}
	}
	sum := sha256.Sum256([]byte(u))
	return "sha256-" + hex.EncodeToString(sum[:16])
}
