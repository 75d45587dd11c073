package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/ports"
)

const (
	redditName      = "reddit"
	redditWebURL    = "https://www.reddit.com"
	redditMaxPage   = 100
	redditListingID = "Listing"
)

// RedditConnector reads subreddit listings through the public JSON API.
type RedditConnector struct {
	baseURL    string
	subreddits []string
	sort       string
	fetcher    *fetcher
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.Connector = (*RedditConnector)(nil)

// NewRedditConnector wires an HTTP client; a nil client gets a 20s timeout.
func NewRedditConnector(cfg config.RedditConfig, client *http.Client, logger *slog.Logger) *RedditConnector {
	sort := strings.TrimSpace(cfg.Sort)
	if sort == "" {
		sort = "top"
	}
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = redditWebURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedditConnector{
		baseURL:    base,
		subreddits: cfg.Subreddits,
		sort:       sort,
		fetcher:    newFetcher(redditName, client, cfg.RequestsPerMinute, cfg.UserAgent),
		logger:     logger,
		now:        time.Now,
	}
}

// Name identifies the connector inside the registry.
func (r *RedditConnector) Name() string { return redditName }

// SourceType reports the forum category.
func (r *RedditConnector) SourceType() domain.SourceType { return domain.SourceForum }

// Fetch spreads limit across the configured subreddits, paging lazily.
func (r *RedditConnector) Fetch(ctx context.Context, limit int) iter.Seq2[domain.RawPost, error] {
	return func(yield func(domain.RawPost, error) bool) {
		if limit <= 0 || len(r.subreddits) == 0 {
			return
		}

		perSub := (limit + len(r.subreddits) - 1) / len(r.subreddits)
		emitted := 0

		for _, sub := range r.subreddits {
			taken := 0
			after := ""
			for taken < perSub && emitted < limit {
				listing, err := r.fetchPage(ctx, sub, after, clampPage(perSub-taken, redditMaxPage))
				if err != nil {
					yield(domain.RawPost{}, err)
					return
				}

				for _, child := range listing.Data.Children {
					post, ok := r.toRawPost(child.Data)
					if !ok {
						r.logger.Debug("skip reddit item", "subreddit", sub, "id", child.Data.ID)
						continue
					}
					if !yield(post, nil) {
						return
					}
					taken++
					emitted++
					if taken >= perSub || emitted >= limit {
						break
					}
				}

				if listing.Data.After == "" || len(listing.Data.Children) == 0 {
					break
				}
				after = listing.Data.After
			}
			if emitted >= limit {
				return
			}
		}
	}
}

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Selftext    string `json:"selftext"`
	Permalink   string `json:"permalink"`
	URL         string `json:"url"`
	Ups         int    `json:"ups"`
	NumComments int    `json:"num_comments"`
	Stickied    bool   `json:"stickied"`
}

func (r *RedditConnector) fetchPage(ctx context.Context, subreddit, after string, size int) (redditListing, error) {
	pageURL, err := buildListingURL(r.baseURL, subreddit, r.sort, after, size)
	if err != nil {
		return redditListing{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return redditListing{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := r.fetcher.do(req)
	if err != nil {
		return redditListing{}, err
	}
	defer body.Close()

	var listing redditListing
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return redditListing{}, malformed(redditName, err)
	}
	if listing.Kind != redditListingID {
		return redditListing{}, malformed(redditName, fmt.Errorf("unexpected kind %q", listing.Kind))
	}

	return listing, nil
}

func (r *RedditConnector) toRawPost(p redditPost) (domain.RawPost, bool) {
	id := strings.TrimSpace(p.ID)
	title := strings.TrimSpace(p.Title)
	if id == "" || title == "" || p.Stickied {
		return domain.RawPost{}, false
	}

	link := redditWebURL + "/comments/" + id
	if p.Permalink != "" {
		link = redditWebURL + "/" + strings.TrimPrefix(p.Permalink, "/")
	}

	return domain.RawPost{
		SourceID:      redditName + "_" + id,
		SourceType:    domain.SourceForum,
		Title:         title,
		Body:          strings.TrimSpace(p.Selftext),
		URL:           link,
		Upvotes:       p.Ups,
		CommentsCount: p.NumComments,
		FetchedAt:     r.now().UTC(),
	}, true
}

func buildListingURL(base, subreddit, sort, after string, size int) (string, error) {
	parsed, err := url.Parse(fmt.Sprintf("%s/r/%s/%s.json", base, url.PathEscape(subreddit), sort))
	if err != nil {
		return "", fmt.Errorf("invalid listing url for %s: %w", subreddit, err)
	}

	query := parsed.Query()
	query.Set("limit", strconv.Itoa(size))
	query.Set("raw_json", "1")
	if sort == "top" {
		query.Set("t", "month")
	}
	if after != "" {
		query.Set("after", after)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
