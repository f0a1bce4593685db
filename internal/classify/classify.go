// Package classify assigns an item type to captured content.
package classify

import (
	"net/url"
	"strings"

	"github.com/runnerr0/synapse/internal/media"
	"github.com/runnerr0/synapse/internal/storage"
)

var (
	videoPathMarkers   = []string{"/watch/", "/video/", "/videos/", "/embed/", "/shorts/"}
	productPathMarkers = []string{"/dp/", "/gp/product/", "/itm/", "/product/", "/products/"}
)

// Rules are the host lists the classifier matches against. A host matches
// an entry when it equals it or is a subdomain of it.
type Rules struct {
	VideoHosts []string
	ShopHosts  []string
}

// Input is everything the classifier looks at.
type Input struct {
	URL     string
	HasFile bool
	Kind    media.Kind
	Markers []string // commerce markers from extraction
}

// Classifier is a pure, deterministic first-match heuristic. It always
// returns one of the five item types.
type Classifier struct {
	videoHosts []string
	shopHosts  []string
}

// New returns a Classifier using rules.
func New(rules Rules) *Classifier {
	return &Classifier{
		videoHosts: normalizeHosts(rules.VideoHosts),
		shopHosts:  normalizeHosts(rules.ShopHosts),
	}
}

// Rule names reported in Decision.Rule.
const (
	RuleNoSource        = "no-source"
	RuleImage           = "image"
	RuleVideoPath       = "video-path"
	RuleVideoHost       = "video-host"
	RuleCommerceMarkers = "commerce-markers"
	RuleShopHost        = "shop-host"
	RuleProductPath     = "product-path"
	RuleDefault         = "default"
)

// Decision is a classification together with the rule that produced it.
type Decision struct {
	Type storage.ItemType
	Rule string
}

// Classify returns the item type for in.
func (c *Classifier) Classify(in Input) storage.ItemType {
	return c.Decide(in).Type
}

// Decide applies the rules in order and returns the first match.
func (c *Classifier) Decide(in Input) Decision {
	rawURL := strings.TrimSpace(in.URL)
	if rawURL == "" && !in.HasFile {
		return Decision{storage.TypeNote, RuleNoSource}
	}
	if in.Kind.IsImage() {
		return Decision{storage.TypeImage, RuleImage}
	}

	host, path := splitURL(rawURL)

	switch {
	case path == "/watch" || hasAny(path, videoPathMarkers):
		return Decision{storage.TypeVideo, RuleVideoPath}
	case matchHost(host, c.videoHosts):
		return Decision{storage.TypeVideo, RuleVideoHost}
	case len(in.Markers) > 0:
		return Decision{storage.TypeProduct, RuleCommerceMarkers}
	case matchHost(host, c.shopHosts):
		return Decision{storage.TypeProduct, RuleShopHost}
	case hasAny(path, productPathMarkers):
		return Decision{storage.TypeProduct, RuleProductPath}
	}

	return Decision{storage.TypeArticle, RuleDefault}
}

func splitURL(rawURL string) (host, path string) {
	if rawURL == "" {
		return "", ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), "."), strings.ToLower(u.Path)
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.Trim(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func matchHost(host string, list []string) bool {
	if host == "" {
		return false
	}
	for _, h := range list {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func hasAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
