package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"HustleCollector/internal/config"
	"HustleCollector/internal/domain"
	"HustleCollector/internal/ports"
)

const (
	productHuntName    = "producthunt"
	productHuntWebURL  = "https://www.producthunt.com"
	productHuntMaxPage = 20
)

const productHuntQuery = `query Posts($first: Int!, $after: String, $topic: String) {
  posts(first: $first, after: $after, topic: $topic, order: VOTES) {
    edges { node { id name tagline description slug url votesCount commentsCount } }
    pageInfo { endCursor hasNextPage }
  }
}`

// ProductHuntConnector pages through launches via the GraphQL API.
type ProductHuntConnector struct {
	endpoint string
	token    string
	topic    string
	fetcher  *fetcher
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.Connector = (*ProductHuntConnector)(nil)

// NewProductHuntConnector requires a developer token to fetch anything.
func NewProductHuntConnector(cfg config.ProductHuntConfig, client *http.Client, logger *slog.Logger) *ProductHuntConnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductHuntConnector{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		token:    strings.TrimSpace(cfg.Token),
		topic:    strings.TrimSpace(cfg.Topic),
		fetcher:  newFetcher(productHuntName, client, cfg.RequestsPerMinute, ""),
		logger:   logger,
		now:      time.Now,
	}
}

// Name identifies the connector inside the registry.
func (p *ProductHuntConnector) Name() string { return productHuntName }

// SourceType reports the launch category.
func (p *ProductHuntConnector) SourceType() domain.SourceType { return domain.SourceLaunch }

// Fetch yields launches in API order until limit or the last page.
func (p *ProductHuntConnector) Fetch(ctx context.Context, limit int) iter.Seq2[domain.RawPost, error] {
	return func(yield func(domain.RawPost, error) bool) {
		if limit <= 0 {
			return
		}
		if p.token == "" || p.endpoint == "" {
			yield(domain.RawPost{}, fmt.Errorf("%w: %s: token or endpoint not configured",
				domain.ErrSourceUnavailable, productHuntName))
			return
		}

		emitted := 0
		cursor := ""
		for emitted < limit {
			page, err := p.fetchPage(ctx, cursor, clampPage(limit-emitted, productHuntMaxPage))
			if err != nil {
				yield(domain.RawPost{}, err)
				return
			}

			for _, edge := range page.Edges {
				post, ok := p.toRawPost(edge.Node)
				if !ok {
					p.logger.Debug("skip producthunt item", "id", edge.Node.ID)
					continue
				}
				if !yield(post, nil) {
					return
				}
				emitted++
				if emitted >= limit {
					return
				}
			}

			if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" || len(page.Edges) == 0 {
				return
			}
			cursor = page.PageInfo.EndCursor
		}
	}
}

type productHuntPosts struct {
	Edges []struct {
		Node productHuntNode `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		EndCursor   string `json:"endCursor"`
		HasNextPage bool   `json:"hasNextPage"`
	} `json:"pageInfo"`
}

type productHuntNode struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Tagline       string `json:"tagline"`
	Description   string `json:"description"`
	Slug          string `json:"slug"`
	URL           string `json:"url"`
	VotesCount    int    `json:"votesCount"`
	CommentsCount int    `json:"commentsCount"`
}

type productHuntResponse struct {
	Data *struct {
		Posts *productHuntPosts `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *ProductHuntConnector) fetchPage(ctx context.Context, cursor string, size int) (productHuntPosts, error) {
	variables := map[string]any{"first": size}
	if cursor != "" {
		variables["after"] = cursor
	}
	if p.topic != "" {
		variables["topic"] = p.topic
	}

	payload, err := json.Marshal(map[string]any{
		"query":     productHuntQuery,
		"variables": variables,
	})
	if err != nil {
		return productHuntPosts{}, fmt.Errorf("marshal graphql payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return productHuntPosts{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := p.fetcher.do(req)
	if err != nil {
		return productHuntPosts{}, err
	}
	defer body.Close()

	var resp productHuntResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return productHuntPosts{}, malformed(productHuntName, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		joined := strings.Join(msgs, "; ")
		if strings.Contains(strings.ToLower(joined), "rate limit") {
			return productHuntPosts{}, fmt.Errorf("%w: %s: %s", domain.ErrRateLimited, productHuntName, joined)
		}
		return productHuntPosts{}, fmt.Errorf("%w: %s: %s", domain.ErrSourceUnavailable, productHuntName, joined)
	}
	if resp.Data == nil || resp.Data.Posts == nil {
		return productHuntPosts{}, malformed(productHuntName, fmt.Errorf("missing data.posts"))
	}

	return *resp.Data.Posts, nil
}

func (p *ProductHuntConnector) toRawPost(n productHuntNode) (domain.RawPost, bool) {
	id := strings.TrimSpace(n.ID)
	name := strings.TrimSpace(n.Name)
	if id == "" || name == "" {
		return domain.RawPost{}, false
	}

	link := strings.TrimSpace(n.URL)
	if n.Slug != "" {
		link = productHuntWebURL + "/posts/" + n.Slug
	}
	if link == "" {
		return domain.RawPost{}, false
	}

	title := name
	if tagline := strings.TrimSpace(n.Tagline); tagline != "" {
		title = name + ": " + tagline
	}

	return domain.RawPost{
		SourceID:      productHuntName + "_" + id,
		SourceType:    domain.SourceLaunch,
		Title:         title,
		Body:          strings.TrimSpace(n.Description),
		URL:           link,
		Upvotes:       n.VotesCount,
		CommentsCount: n.CommentsCount,
		FetchedAt:     p.now().UTC(),
	}, true
}
