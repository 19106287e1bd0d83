// Package source maps the record shapes of each data feed onto types.Post.
package source

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ibeckermayer/listen4me/internal/dates"
	"github.com/ibeckermayer/listen4me/internal/types"
)

// Record is any raw input row the normalizer understands.
type Record interface {
	canonical(hint types.Origin) types.Post
}

// SheetRow is one row of a spreadsheet export (one sheet per search phrase).
type SheetRow struct {
	Platform    string `json:"platform"`
	PostDate    string `json:"post_date"`
	PostContent string `json:"post_content"`
	PostURL     string `json:"post_url"`
	Username    string `json:"username"`
	UserURL     string `json:"user_url"`
	Phrase      string `json:"phrase,omitempty"`
}

// RedditSubmission is the subset of a Reddit listing item we use.
type RedditSubmission struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	Phrase     string  `json:"phrase,omitempty"`
}

// YouTubeComment is a flattened commentThreads item.
type YouTubeComment struct {
	ID               string `json:"id"`
	Text             string `json:"textOriginal"`
	Author           string `json:"authorDisplayName"`
	AuthorChannelURL string `json:"authorChannelUrl"`
	PublishedAt      string `json:"publishedAt"`
	VideoID          string `json:"videoId"`
	VideoTitle       string `json:"videoTitle"`
	ChannelTitle     string `json:"channelTitle"`
	Phrase           string `json:"phrase,omitempty"`
}

var (
	subredditRe = regexp.MustCompile(`(?i)reddit\.com/r/([^/?#\s]+)/`)
	channelRe   = regexp.MustCompile(`(?i)youtube\.com/(?:channel|user|c)/([^/?#\s]+)`)
	handleRe    = regexp.MustCompile(`(?i)youtube\.com/(@[^/?#\s]+)`)
)

// idSpace namespaces the name-based post ids.
var idSpace = uuid.MustParse("5b1f0c3e-6d1a-4c55-9a36-3f0c6c8d2b71")

// Normalize maps r onto the canonical shape. The bucket is left empty.
// hint is used when the record itself does not say which platform it is from.
func Normalize(r Record, hint types.Origin) types.Post {
	return r.canonical(hint)
}

// NormalizeAll maps every record, preserving order.
func NormalizeAll(records []Record, hint types.Origin) []types.Post {
	posts := make([]types.Post, len(records))
	for i, r := range records {
		posts[i] = r.canonical(hint)
	}
	return posts
}

func (r SheetRow) canonical(hint types.Origin) types.Post {
	origin := hint
	if strings.TrimSpace(r.Platform) != "" {
		origin = types.ParseOrigin(r.Platform)
	}
	if origin == "" {
		origin = types.OriginOther
	}

	ts, _ := dates.ParseAny(r.PostDate)

	var community string
	switch origin {
	case types.OriginReddit:
		community = SubredditFromURL(r.PostURL)
	case types.OriginYouTube:
		community = ChannelFromURL(r.UserURL)
		if community == "" {
			community = ChannelFromURL(r.PostURL)
		}
	default:
		community = SubredditFromURL(r.PostURL)
	}

	return finish(types.Post{
		Text:      r.PostContent,
		Timestamp: ts,
		RawDate:   r.PostDate,
		Origin:    origin,
		Community: community,
		Author:    strings.TrimSpace(r.Username),
		Permalink: strings.TrimSpace(r.PostURL),
		Phrase:    r.Phrase,
	})
}

func (r RedditSubmission) canonical(types.Origin) types.Post {
	text := strings.TrimSpace(r.Title)
	if body := strings.TrimSpace(r.SelfText); body != "" {
		if text != "" {
			text += "\n\n"
		}
		text += body
	}

	ts, _ := dates.FromUnix(r.CreatedUTC)

	link := r.Permalink
	if strings.HasPrefix(link, "/") {
		link = "https://www.reddit.com" + link
	}
	if link == "" {
		link = r.URL
	}

	community := strings.TrimPrefix(strings.TrimSpace(r.Subreddit), "r/")
	if community == "" {
		community = SubredditFromURL(link)
	}

	return finish(types.Post{
		ID:        r.ID,
		Text:      text,
		Timestamp: ts,
		Origin:    types.OriginReddit,
		Community: community,
		Author:    r.Author,
		Permalink: link,
		Phrase:    r.Phrase,
	})
}

func (r YouTubeComment) canonical(types.Origin) types.Post {
	ts, _ := dates.ParseAny(r.PublishedAt)

	community := strings.TrimSpace(r.ChannelTitle)
	if community == "" {
		community = strings.TrimSpace(r.VideoTitle)
	}
	if community == "" {
		community = ChannelFromURL(r.AuthorChannelURL)
	}

	var link string
	if r.VideoID != "" {
		link = "https://www.youtube.com/watch?v=" + r.VideoID
		if r.ID != "" {
			link += "&lc=" + r.ID
		}
	}

	return finish(types.Post{
		ID:        r.ID,
		Text:      r.Text,
		Timestamp: ts,
		RawDate:   r.PublishedAt,
		Origin:    types.OriginYouTube,
		Community: community,
		Author:    r.Author,
		Permalink: link,
		Phrase:    r.Phrase,
	})
}

// finish applies the fallbacks shared by every record kind.
func finish(p types.Post) types.Post {
	if strings.TrimSpace(p.Community) == "" {
		p.Community = types.UnknownCommunity
	}
	if p.ID == "" {
		p.ID = postID(p)
	} else {
		p.ID = string(p.Origin) + ":" + p.ID
	}
	return p
}

// postID derives a stable id so re-ingesting the same export is idempotent.
func postID(p types.Post) string {
	key := strings.Join([]string{string(p.Origin), p.Permalink, p.RawDate, p.Text}, "\x1f")
	return uuid.NewSHA1(idSpace, []byte(key)).String()
}

// SubredditFromURL extracts the subreddit name from a reddit link, or "".
func SubredditFromURL(u string) string {
	if m := subredditRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}

// ChannelFromURL extracts a channel id, user name or @handle from a youtube link, or "".
func ChannelFromURL(u string) string {
	if m := channelRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if m := handleRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}
