// Package catalog maintains the mesh entry collection: seeding the
// demonstration resources, validated registration, and type-indexed
// search with pagination.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/linkeddata"
	"github.com/hyprcat/gateway/internal/store"
)

// ErrInvalidResource is returned by Register when the node fails
// structural validation.
var ErrInvalidResource = errors.New("catalog: invalid resource")

// DefaultPageSize and MaxPageSize bound catalog pagination.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service is the catalog over a resource store.
type Service struct {
	store store.Store
	base  string
	log   *zap.Logger
}

// NewService creates a catalog service. base is the gateway base URL
// without a trailing slash.
func NewService(st store.Store, base string, log *zap.Logger) *Service {
	return &Service{store: st, base: strings.TrimRight(base, "/"), log: log}
}

// CatalogID is the IRI of the root catalog collection.
func (s *Service) CatalogID() string { return s.base + "/catalog" }

// WellKnownID is the IRI of the service description.
func (s *Service) WellKnownID() string { return s.base + "/.well-known/hyprcat" }

// Store exposes the backing resource store.
func (s *Service) Store() store.Store { return s.store }

// Register validates the resource, writes it, and appends a reference to
// the root catalog's member list.
func (s *Service) Register(ctx context.Context, n linkeddata.Node) error {
	if n.ID() == "" || len(n.Types()) == 0 {
		return fmt.Errorf("%w: id and type are required", ErrInvalidResource)
	}
	if res := linkeddata.ValidateResource(n); !res.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidResource, res.Errors[0].Message)
	}
	if err := s.store.Put(ctx, n.ID(), n); err != nil {
		return err
	}

	cat, err := s.store.Get(ctx, s.CatalogID())
	if err != nil {
		return err
	}
	members := cat.GetList("member")
	for _, m := range members {
		if ref, ok := m.(map[string]any); ok && linkeddata.Node(ref).ID() == n.ID() {
			return nil // already listed
		}
	}
	ref := map[string]any{"@id": n.ID(), "@type": n.PrimaryType()}
	cat.Set("member", append(members, ref))
	cat.Set("totalItems", len(members)+1)
	if err := s.store.Put(ctx, cat.ID(), cat); err != nil {
		return err
	}
	s.log.Info("resource registered",
		zap.String("id", n.ID()),
		zap.String("type", n.PrimaryType()))
	return nil
}

// SearchParams are the catalog search filters. Zero values mean "no
// filter"; page and pageSize are clamped to sane bounds.
type SearchParams struct {
	Query    string
	Type     string
	Domain   string
	Page     int
	PageSize int
}

// Search filters the stored resources and materializes a paginated
// hydra:Collection view. Results are ordered by ascending id so paging
// is deterministic.
func (s *Service) Search(ctx context.Context, p SearchParams) (linkeddata.Node, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}

	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var matched []linkeddata.Node
	for _, id := range ids {
		n, err := s.store.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.matches(n, p) {
			matched = append(matched, n)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID() < matched[j].ID() })

	total := len(matched)
	start := (p.Page - 1) * p.PageSize
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}

	members := make([]any, 0, end-start)
	for _, n := range matched[start:end] {
		members = append(members, map[string]any(n))
	}

	view := linkeddata.Node(map[string]any{
		"@id":   s.pageURL(p, p.Page),
		"@type": "hydra:PartialCollectionView",
		"first": s.pageURL(p, 1),
	})
	if p.Page > 1 {
		view.Set("previous", s.pageURL(p, p.Page-1))
	}
	if end < total {
		view.Set("next", s.pageURL(p, p.Page+1))
	}

	result := linkeddata.NewNode(s.pageURL(p, p.Page), "hydra:Collection")
	result.Set("member", members)
	result.Set("totalItems", total)
	result.Set("hydra:view", map[string]any(view))
	return result, nil
}

func (s *Service) matches(n linkeddata.Node, p SearchParams) bool {
	if p.Type != "" && !linkeddata.IsOfType(n, p.Type) {
		return false
	}
	if p.Domain != "" {
		if n.GetString("hyprcat:domain") != p.Domain && n.GetString("schema:domain") != p.Domain {
			return false
		}
	}
	if p.Query != "" {
		q := strings.ToLower(p.Query)
		haystack := strings.ToLower(strings.Join([]string{
			n.GetString("schema:name"),
			n.GetString("hydra:title"),
			n.GetString("schema:description"),
			n.GetString("hydra:description"),
		}, "\n"))
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

func (s *Service) pageURL(p SearchParams, page int) string {
	q := url.Values{}
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	if p.Type != "" {
		q.Set("type", p.Type)
	}
	if p.Domain != "" {
		q.Set("domain", p.Domain)
	}
	q.Set("page", fmt.Sprint(page))
	q.Set("pageSize", fmt.Sprint(p.PageSize))
	return s.CatalogID() + "?" + q.Encode()
}
