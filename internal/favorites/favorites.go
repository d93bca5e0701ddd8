// Package favorites stores saved DexScreener filter URLs per installation.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("favorite not found")
	ErrDuplicate  = errors.New("filter already in favorites")
	ErrInvalidURL = errors.New("not a DexScreener filter URL")
)

type Record struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Filter    string    `json:"filter" yaml:"filter"`
	UserID    string    `json:"userId" yaml:"userId"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Store persists favorites. List returns newest first.
type Store interface {
	Add(ctx context.Context, rec Record) error
	List(ctx context.Context, userID string) ([]Record, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (Record, error)
	Delete(ctx context.Context, userID string, id uuid.UUID) error
}

// TabOpener opens a URL in a new foreground tab.
type TabOpener interface {
	OpenTab(ctx context.Context, url string) (string, error)
}

// ValidateFilterURL accepts dexscreener.com pages that carry query
// parameters.
func ValidateFilterURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	if host != "dexscreener.com" && !strings.HasSuffix(host, ".dexscreener.com") {
		return fmt.Errorf("%w: host %q", ErrInvalidURL, u.Hostname())
	}
	if u.RawQuery == "" {
		return fmt.Errorf("%w: no filter parameters", ErrInvalidURL)
	}
	return nil
}

// Service binds a store to one installation and the browser.
type Service struct {
	store  Store
	tabs   TabOpener
	userID string
	now    func() time.Time
}

func NewService(store Store, tabs TabOpener, userID string) *Service {
	return &Service{store: store, tabs: tabs, userID: userID, now: time.Now}
}

func (s *Service) UserID() string { return s.userID }

func (s *Service) Add(ctx context.Context, filter string) (Record, error) {
	filter = strings.TrimSpace(filter)
	if err := ValidateFilterURL(filter); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:        uuid.New(),
		Filter:    filter,
		UserID:    s.userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Add(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx, s.userID)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, s.userID, id)
}

// Open opens the saved filter in a new tab. The tab is not a token tab and
// does not count toward the budget.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (Record, string, error) {
	rec, err := s.store.Get(ctx, s.userID, id)
	if err != nil {
		return Record{}, "", err
	}
	if s.tabs == nil {
		return rec, "", fmt.Errorf("no browser attached")
	}
	tabID, err := s.tabs.OpenTab(ctx, rec.Filter)
	if err != nil {
		return rec, "", fmt.Errorf("open filter tab: %w", err)
	}
	return rec, tabID, nil
}
