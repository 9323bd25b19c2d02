package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"marketchat/internal/domain/chat"
)

// ListingCatalog is an in-memory listing directory, usually seeded from a fixture file.
type ListingCatalog struct {
	mu    sync.RWMutex
	items map[chat.ListingID]chat.Listing
}

func NewListingCatalog(listings ...chat.Listing) *ListingCatalog {
	c := &ListingCatalog{items: make(map[chat.ListingID]chat.Listing)}
	for _, l := range listings {
		c.Put(l)
	}
	return c
}

func (c *ListingCatalog) Put(l chat.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[l.ID] = l
}

func (c *ListingCatalog) Listing(ctx context.Context, id chat.ListingID) (chat.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.items[id]
	if !ok {
		return chat.Listing{}, chat.ErrListingNotFound
	}
	return l, nil
}

func (c *ListingCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Listings returns every listing ordered by id.
func (c *ListingCatalog) Listings() []chat.Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chat.Listing, 0, len(c.items))
	for _, l := range c.items {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type listingFixture struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	SellerID string `json:"seller_id"`
}

var ErrFixtureInvalid = errors.New("memory: invalid listing fixture")

// LoadListingFixtures reads a JSON array of listings into the catalog and returns how
// many were imported.
func (c *ListingCatalog) LoadListingFixtures(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, fmt.Errorf("decode fixtures: %w", err)
	}
	for i, fx := range fixtures {
		id := strings.TrimSpace(fx.ID)
		seller := strings.TrimSpace(fx.SellerID)
		if id == "" || seller == "" {
			return i, fmt.Errorf("%w: entry %d needs id and seller_id", ErrFixtureInvalid, i)
		}
		c.Put(chat.Listing{
			ID:       chat.ListingID(id),
			Title:    strings.TrimSpace(fx.Title),
			ImageURL: strings.TrimSpace(fx.ImageURL),
			SellerID: chat.UserID(seller),
		})
	}
	return len(fixtures), nil
}

// Profiles maps user ids to display names.
type Profiles struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewProfiles(names map[string]string) *Profiles {
	p := &Profiles{names: make(map[string]string, len(names))}
	for k, v := range names {
		p.names[k] = v
	}
	return p
}

func (p *Profiles) SetDisplayName(userID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names[userID] = name
}

// DisplayName returns an empty name for unknown users.
func (p *Profiles) DisplayName(ctx context.Context, userID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.names[userID], nil
}
