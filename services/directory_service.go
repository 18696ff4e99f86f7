package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

const defaultDisplayName = "image"

// DirectoryService turns a remote directory listing into a de-duplicated asset collection.
type DirectoryService struct {
	client     *http.Client
	listingURL string
	baseOrigin string
	logger     zerolog.Logger
}

// NewDirectoryService creates a directory source. An empty baseOrigin resolves relative
// links against the listing URL itself.
func NewDirectoryService(client *http.Client, listingURL, baseOrigin string, logger zerolog.Logger) *DirectoryService {
	if baseOrigin == "" {
		baseOrigin = listingURL
	}
	return &DirectoryService{
		client:     client,
		listingURL: listingURL,
		baseOrigin: baseOrigin,
		logger:     logger.With().Str("component", "directory").Logger(),
	}
}

// Discover fetches the listing and returns one asset per distinct image link, in document
// order. A listing without image links is an empty result, not an error.
func (s *DirectoryService) Discover(ctx context.Context) ([]models.Asset, error) {
	if s.listingURL == "" {
		return nil, &DiscoveryError{URL: s.listingURL, Err: fmt.Errorf("no listing URL configured")}
	}
	base, err := url.Parse(s.baseOrigin)
	if err != nil {
		return nil, &DiscoveryError{URL: s.listingURL, Err: fmt.Errorf("invalid base origin: %w", err)}
	}

	body, err := fetchBytes(ctx, s.client, s.listingURL, maxListingBytes)
	if err != nil {
		return nil, &DiscoveryError{URL: s.listingURL, Err: err}
	}

	assets, err := ExtractAssets(bytes.NewReader(body), base)
	if err != nil {
		return nil, &DiscoveryError{URL: s.listingURL, Err: err}
	}
	s.logger.Info().Int("assets", len(assets)).Str("listing", s.listingURL).Msg("directory discovered")
	return assets, nil
}

// ExtractAssets parses an HTML listing and returns the image links it contains.
func ExtractAssets(r io.Reader, base *url.URL) ([]models.Asset, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	seen := make(map[string]bool)
	assets := []models.Asset{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				target, ok := normalizeLink(base, attr.Val)
				if !ok || !media.IsImage(target.Path) {
					break
				}
				key := target.String()
				if seen[key] {
					break
				}
				seen[key] = true
				name := displayName(target)
				assets = append(assets, models.Asset{
					ID:          uuid.NewString(),
					SourceURL:   key,
					DisplayName: name,
					Kind:        media.Kind(name),
				})
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return assets, nil
}

// normalizeLink resolves href against base and drops the query string and fragment.
func normalizeLink(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	target := base.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, false
	}
	target.RawQuery = ""
	target.ForceQuery = false
	target.Fragment = ""
	target.RawFragment = ""
	return target, true
}

func displayName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return defaultDisplayName
	}
	return name
}
