package types

import (
	"strings"
	"time"
)

// Origin is the coarse platform a post came from
type Origin string

const (
	OriginReddit  Origin = "reddit"
	OriginYouTube Origin = "youtube"
	OriginOther   Origin = "other"
)

// ParseOrigin maps a free-text platform label to an Origin.
// Anything that does not mention reddit or youtube is OriginOther.
func ParseOrigin(s string) Origin {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "reddit"):
		return OriginReddit
	case strings.Contains(l, "youtube"):
		return OriginYouTube
	default:
		return OriginOther
	}
}

// UnknownCommunity is used when no subreddit or channel can be determined.
const UnknownCommunity = "Unknown"

// Post is the canonical representation of one social-media item,
// independent of the export or API it came from.
type Post struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"` // zero when the source date could not be parsed
	RawDate   string    `json:"raw_date,omitempty"`
	Origin    Origin    `json:"origin"`
	Community string    `json:"community"`
	Author    string    `json:"author,omitempty"`
	Permalink string    `json:"permalink,omitempty"`
	Phrase    string    `json:"phrase,omitempty"` // search phrase / sheet the post was collected under
	Bucket    string    `json:"bucket,omitempty"` // empty until classified
}

// HasTimestamp reports whether the post carries a usable date.
func (p Post) HasTimestamp() bool {
	return !p.Timestamp.IsZero()
}

// Classified reports whether a bucket has been assigned.
func (p Post) Classified() bool {
	return p.Bucket != ""
}
