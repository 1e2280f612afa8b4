package news

import (
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

// Schema tags which upstream shape a RawEntry carries.
type Schema int

const (
	SchemaUnknown Schema = iota
	SchemaFeedItem
	SchemaFeedEntry
	SchemaNewsAPI
	SchemaNewsData
	SchemaAlphaVantage
)

func (s Schema) String() string {
	switch s {
	case SchemaFeedItem:
		return "feed-item"
	case SchemaFeedEntry:
		return "feed-entry"
	case SchemaNewsAPI:
		return "newsapi"
	case SchemaNewsData:
		return "newsdata"
	case SchemaAlphaVantage:
		return "alphavantage"
	default:
		return "unknown"
	}
}

// RawEntry is one upstream record before normalization. Exactly one of the
// payload pointers matching Schema is set.
type RawEntry struct {
	Schema  Schema
	Source  string // feed title or provider name
	Ordinal int

	RSS          *rss.Item
	Atom         *atom.Entry
	NewsAPI      *NewsAPIArticle
	NewsData     *NewsDataArticle
	AlphaVantage *AlphaVantageArticle
}

// NewsAPIArticle is an element of newsapi.org "articles".
type NewsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// NewsDataArticle is an element of newsdata.io "results".
type NewsDataArticle struct {
	ArticleID   string `json:"article_id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content"`
	PubDate     string `json:"pubDate"`
	ImageURL    string `json:"image_url"`
	SourceID    string `json:"source_id"`
	SourceName  string `json:"source_name"`
}

// AlphaVantageArticle is an element of the NEWS_SENTIMENT "feed".
type AlphaVantageArticle struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	TimePublished string `json:"time_published"`
	Summary       string `json:"summary"`
	BannerImage   string `json:"banner_image"`
	Source        string `json:"source"`
}
