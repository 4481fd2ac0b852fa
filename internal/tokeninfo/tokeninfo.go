// Package tokeninfo resolves display names for token mints.
package tokeninfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"itslive-telegram-bot/lib/helpers"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://data.pumpmod.live/coin/"
	cacheDuration  = 10 * time.Minute
)

// Info is the token metadata the bot displays.
type Info struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

func (i Info) empty() bool {
	return i.Name == "" && i.Symbol == ""
}

// Searcher looks up currencies on coinpaprika.
type Searcher interface {
	Search(options *coinpaprika.SearchOptions) (*coinpaprika.SearchResult, error)
}

type Resolver struct {
	baseURL  string
	client   *http.Client
	searcher Searcher
	cache    *cache
}

// NewResolver queries baseURL+mint first and falls back to searcher when it is
// not nil.
func NewResolver(baseURL string, client *http.Client, searcher Searcher) *Resolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{
		baseURL:  baseURL,
		client:   client,
		searcher: searcher,
		cache:    newCache(),
	}
}

type paprikaSearcher struct {
	client *coinpaprika.Client
}

func (p paprikaSearcher) Search(options *coinpaprika.SearchOptions) (*coinpaprika.SearchResult, error) {
	return p.client.Search.Search(options)
}

// NewPaprikaSearcher returns a coinpaprika searcher, authenticated when apiProKey
// is set.
func NewPaprikaSearcher(apiProKey string) Searcher {
	if apiProKey != "" {
		return paprikaSearcher{client: coinpaprika.NewClient(nil, coinpaprika.WithAPIKey(apiProKey))}
	}
	return paprikaSearcher{client: coinpaprika.NewClient(nil)}
}

// Resolve returns the token's metadata. ok is false when no source knew the mint.
func (r *Resolver) Resolve(ctx context.Context, mint string) (info Info, ok bool) {
	if info, found := r.cache.get(mint); found {
		return info, true
	}

	info, err := r.fetch(ctx, mint)
	if err != nil {
		log.WithField("token", mint).WithError(err).Debug("Failed to fetch coin data")
	}
	if info.empty() && r.searcher != nil {
		info, err = r.search(mint)
		if err != nil {
			log.WithField("token", mint).WithError(err).Debug("Coin search found nothing")
		}
	}
	if info.empty() {
		return Info{}, false
	}

	r.cache.set(mint, info, cacheDuration)
	return info, true
}

// Display renders "Name (SYMBOL)", or the short address when nothing is known.
func (r *Resolver) Display(ctx context.Context, mint string) string {
	info, ok := r.Resolve(ctx, mint)
	if !ok {
		return helpers.ShortAddress(mint)
	}

	name := info.Name
	if name == "" {
		name = info.Symbol
	}
	if info.Symbol == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, info.Symbol)
}

func (r *Resolver) fetch(ctx context.Context, mint string) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+mint, nil)
	if err != nil {
		return Info{}, errors.Wrap(err, "build coin data request")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Info{}, errors.Wrap(err, "fetch coin data")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, errors.Errorf("coin data request returned %s", resp.Status)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Info{}, errors.Wrap(err, "decode coin data")
	}
	info.Name = strings.TrimSpace(info.Name)
	info.Symbol = strings.TrimSpace(info.Symbol)
	return info, nil
}

func (r *Resolver) search(mint string) (Info, error) {
	result, err := r.searcher.Search(&coinpaprika.SearchOptions{Query: mint, Categories: "currencies"})
	if err != nil {
		return Info{}, errors.Wrap(err, "search coinpaprika")
	}
	if result == nil || len(result.Currencies) == 0 {
		return Info{}, errors.Errorf("no currency matches %s", mint)
	}

	currency := result.Currencies[0]
	var info Info
	if currency.Name != nil {
		info.Name = *currency.Name
	}
	if currency.Symbol != nil {
		info.Symbol = *currency.Symbol
	}
	return info, nil
}
