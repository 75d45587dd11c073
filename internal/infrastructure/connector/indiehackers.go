package connector

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/ports"
)

const (
	indieHackersName   = "indiehackers"
	indieHackersWebURL = "https://www.indiehackers.com"
	indieHackersPages  = 10
)

// IndieHackersConnector scrapes the community feed listing pages.
type IndieHackersConnector struct {
	baseURL     string
	listingPath string
	fetcher     *fetcher
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.Connector = (*IndieHackersConnector)(nil)

// NewIndieHackersConnector wires an HTTP client; a nil client gets a 20s timeout.
func NewIndieHackersConnector(cfg config.IndieHackersConfig, client *http.Client, logger *slog.Logger) *IndieHackersConnector {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = indieHackersWebURL
	}
	listing := strings.TrimSpace(cfg.ListingPath)
	if listing == "" {
		listing = "/posts"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndieHackersConnector{
		baseURL:     base,
		listingPath: listing,
		fetcher:     newFetcher(indieHackersName, client, cfg.RequestsPerMinute, ""),
		logger:      logger,
		now:         time.Now,
	}
}

// Name identifies the connector inside the registry.
func (c *IndieHackersConnector) Name() string { return indieHackersName }

// SourceType reports the community category.
func (c *IndieHackersConnector) SourceType() domain.SourceType { return domain.SourceCommunity }

// Fetch walks listing pages until limit, an empty page or the page cap.
func (c *IndieHackersConnector) Fetch(ctx context.Context, limit int) iter.Seq2[domain.RawPost, error] {
	return func(yield func(domain.RawPost, error) bool) {
		if limit <= 0 {
			return
		}

		seen := map[string]struct{}{}
		emitted := 0
		for page := 1; page <= indieHackersPages; page++ {
			doc, err := c.fetchDocument(ctx, page)
			if err != nil {
				yield(domain.RawPost{}, err)
				return
			}

			posts := c.extractPosts(doc)
			if len(posts) == 0 {
				return
			}

			fresh := 0
			for _, post := range posts {
				if _, dup := seen[post.SourceID]; dup {
					continue
				}
				seen[post.SourceID] = struct{}{}
				fresh++
				if !yield(post, nil) {
					return
				}
				emitted++
				if emitted >= limit {
					return
				}
			}
			if fresh == 0 {
				return
			}
		}
	}
}

func (c *IndieHackersConnector) fetchDocument(ctx context.Context, page int) (*goquery.Document, error) {
	pageURL, err := buildFeedURL(c.baseURL, c.listingPath, page)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	body, err := c.fetcher.do(req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, malformed(indieHackersName, err)
	}
	return doc, nil
}

func (c *IndieHackersConnector) extractPosts(doc *goquery.Document) []domain.RawPost {
	var posts []domain.RawPost
	doc.Find(".feed-item").Each(func(_ int, item *goquery.Selection) {
		post, err := c.parseItem(item)
		if err != nil {
			c.logger.Debug("skip indiehackers item", "error", err)
			return
		}
		posts = append(posts, post)
	})
	return posts
}

func (c *IndieHackersConnector) parseItem(item *goquery.Selection) (domain.RawPost, error) {
	link := item.Find("a.feed-item__title-link").First()
	title := strings.Join(strings.Fields(link.Text()), " ")
	href, _ := link.Attr("href")

	slug := postSlug(href)
	if title == "" || slug == "" {
		return domain.RawPost{}, fmt.Errorf("missing title or link")
	}

	body := strings.TrimSpace(item.Find(".feed-item__snippet").First().Text())

	return domain.RawPost{
		SourceID:      indieHackersName + "_" + slug,
		SourceType:    domain.SourceCommunity,
		Title:         title,
		Body:          body,
		URL:           indieHackersWebURL + "/post/" + slug,
		Upvotes:       parseCount(item.Find(".feed-item__likes-count").First().Text()),
		CommentsCount: parseCount(item.Find(".feed-item__replies-count").First().Text()),
		FetchedAt:     c.now().UTC(),
	}, nil
}

// postSlug extracts the last path segment of /post/<slug> links.
func postSlug(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	clean := strings.TrimSuffix(parsed.Path, "/")
	if !strings.Contains(clean, "/post/") {
		return ""
	}
	return path.Base(clean)
}

func buildFeedURL(base, listingPath string, page int) (string, error) {
	parsed, err := url.Parse(base + "/" + strings.TrimPrefix(listingPath, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid feed url %s: %w", base, err)
	}
	query := parsed.Query()
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
