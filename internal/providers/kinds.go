package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/deusflow/stockpulse/internal/news"
)

// Supported provider kinds.
const (
	KindNewsAPI      = "newsapi"
	KindNewsData     = "newsdata"
	KindAlphaVantage = "alphavantage"
)

// page is one decoded response.
type page struct {
	entries []news.RawEntry
	// next is the continuation token for the following page, "" when the
	// provider reported no more results.
	next string
}

// kind knows the request and response shape of one provider API.
type kind struct {
	keyParam string
	// queryParam carries category terms; empty means the API has no free-text query.
	queryParam string
	// pageParam carries the continuation token; empty means no paging.
	pageParam string
	decode    func(source string, body []byte, current string) (page, error)
}

var kinds = map[string]kind{
	KindNewsAPI: {
		keyParam:   "apiKey",
		queryParam: "q",
		pageParam:  "page",
		decode:     decodeNewsAPI,
	},
	KindNewsData: {
		keyParam:   "apikey",
		queryParam: "q",
		pageParam:  "page",
		decode:     decodeNewsData,
	},
	KindAlphaVantage: {
		keyParam: "apikey",
		decode:   decodeAlphaVantage,
	},
}

// Supported reports whether k is a known provider kind.
func Supported(k string) bool {
	_, ok := kinds[k]
	return ok
}

func (k kind) buildURL(baseURL string, params map[string]string, key, query, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	for name, v := range params {
		q.Set(name, v)
	}
	q.Set(k.keyParam, key)
	if query != "" && k.queryParam != "" {
		q.Set(k.queryParam, query)
	}
	if token != "" && k.pageParam != "" {
		q.Set(k.pageParam, token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type newsAPIResponse struct {
	Status       string                `json:"status"`
	Code         string                `json:"code"`
	Message      string                `json:"message"`
	TotalResults int                   `json:"totalResults"`
	Articles     []news.NewsAPIArticle `json:"articles"`
}

func decodeNewsAPI(source string, body []byte, current string) (page, error) {
	var resp newsAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return page{}, fmt.Errorf("decoding newsapi response: %w", err)
	}
	if resp.Status != "ok" {
		return page{}, fmt.Errorf("newsapi error: %s %s", resp.Code, resp.Message)
	}

	p := page{entries: make([]news.RawEntry, 0, len(resp.Articles))}
	for i := range resp.Articles {
		p.entries = append(p.entries, news.RawEntry{
			Schema:  news.SchemaNewsAPI,
			Source:  source,
			Ordinal: i,
			NewsAPI: &resp.Articles[i],
		})
	}

	// newsapi pages are numbered from 1.
	n := 1
	if current != "" {
		if v, err := strconv.Atoi(current); err == nil && v > 0 {
			n = v
		}
	}
	pageSize := len(resp.Articles)
	if pageSize > 0 && n*pageSize < resp.TotalResults {
		p.next = strconv.Itoa(n + 1)
	}
	return p, nil
}

type newsDataResponse struct {
	Status   string          `json:"status"`
	Results  json.RawMessage `json:"results"`
	NextPage string          `json:"nextPage"`
}

func decodeNewsData(source string, body []byte, _ string) (page, error) {
	var resp newsDataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return page{}, fmt.Errorf("decoding newsdata response: %w", err)
	}
	if resp.Status != "success" {
		// On errors "results" is an object with a message.
		var e struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		_ = json.Unmarshal(resp.Results, &e)
		return page{}, fmt.Errorf("newsdata error: %s %s", e.Code, e.Message)
	}

	var articles []news.NewsDataArticle
	if len(resp.Results) > 0 && string(resp.Results) != "null" {
		if err := json.Unmarshal(resp.Results, &articles); err != nil {
			return page{}, fmt.Errorf("decoding newsdata results: %w", err)
		}
	}

	p := page{entries: make([]news.RawEntry, 0, len(articles)), next: resp.NextPage}
	for i := range articles {
		p.entries = append(p.entries, news.RawEntry{
			Schema:   news.SchemaNewsData,
			Source:   source,
			Ordinal:  i,
			NewsData: &articles[i],
		})
	}
	return p, nil
}

type alphaVantageResponse struct {
	Feed         []news.AlphaVantageArticle `json:"feed"`
	Information  string                     `json:"Information"`
	Note         string                     `json:"Note"`
	ErrorMessage string                     `json:"Error Message"`
}

func decodeAlphaVantage(source string, body []byte, _ string) (page, error) {
	var resp alphaVantageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return page{}, fmt.Errorf("decoding alphavantage response: %w", err)
	}
	if resp.Feed == nil {
		for _, msg := range []string{resp.ErrorMessage, resp.Information, resp.Note} {
			if msg != "" {
				return page{}, fmt.Errorf("alphavantage error: %s", msg)
			}
		}
		return page{}, errors.New("alphavantage response has no feed")
	}

	p := page{entries: make([]news.RawEntry, 0, len(resp.Feed))}
	for i := range resp.Feed {
		p.entries = append(p.entries, news.RawEntry{
			Schema:       news.SchemaAlphaVantage,
			Source:       source,
			Ordinal:      i,
			AlphaVantage: &resp.Feed[i],
		})
	}
	return p, nil
}

// CategoryQuery returns the search terms used to widen a category on load-more.
func CategoryQuery(c news.Category) string {
	switch c {
	case news.Markets:
		return "stock market OR wall street OR S&P 500"
	case news.Stocks:
		return "stocks OR shares OR earnings"
	case news.Economy:
		return "economy OR inflation OR federal reserve"
	case news.IPO:
		return "IPO OR initial public offering"
	case news.Crypto:
		return "bitcoin OR crypto OR ethereum"
	default:
		return ""
	}
}
