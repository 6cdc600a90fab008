// Package media models signed, time-limited media references returned by the
// Bird Buddy cloud API.
package media

import (
	"net/url"
	"strconv"
	"time"
)

// Media represents one piece of captured visual content. Instances are value
// objects: they are constructed from an API payload and never mutated, a
// newer sighting supersedes them with a fresh instance.
type Media struct {
	ID           string
	ContentURL   string
	ThumbnailURL string
	CreatedAt    time.Time
	IsVideo      bool
}

// BestURL returns the content URL, falling back to the thumbnail.
func (m Media) BestURL() string {
	if m.ContentURL != "" {
		return m.ContentURL
	}
	return m.ThumbnailURL
}

// Expired reports whether the media's best URL has passed its signed expiry.
func (m Media) Expired() bool {
	return IsExpired(m.BestURL())
}

// signedDateLayout is the compact ISO-8601 form used by AWS SigV4 and Google
// Cloud Storage V4 signed URLs.
const signedDateLayout = "20060102T150405Z"

// ExpiresAt extracts the expiry time embedded in a signed URL. It recognizes
// the plain `Expires=<unix epoch>` query parameter as well as the
// `X-Amz-Date`+`X-Amz-Expires` and `X-Goog-Date`+`X-Goog-Expires` pairs. The
// second return value is false when no expiry can be inferred.
func ExpiresAt(rawURL string) (time.Time, bool) {
	if rawURL == "" {
		return time.Time{}, false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}
	q := u.Query()

	if v := q.Get("Expires"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(epoch, 0), true
		}
	}

	for _, prefix := range []string{"X-Amz-", "X-Goog-"} {
		date := q.Get(prefix + "Date")
		ttl := q.Get(prefix + "Expires")
		if date == "" || ttl == "" {
			continue
		}
		signedAt, err := time.Parse(signedDateLayout, date)
		if err != nil {
			continue
		}
		seconds, err := strconv.ParseInt(ttl, 10, 64)
		if err != nil {
			continue
		}
		return signedAt.Add(time.Duration(seconds) * time.Second), true
	}

	return time.Time{}, false
}

// IsExpired reports whether the URL's embedded expiry has elapsed. URLs with
// no inferable expiry are treated as not expired until proven otherwise; the
// next poll or push cycle replaces them with freshly signed ones.
func IsExpired(rawURL string) bool {
	expiry, ok := ExpiresAt(rawURL)
	if !ok {
		return false
	}
	return time.Now().After(expiry)
}
