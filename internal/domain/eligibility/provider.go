// Package eligibility answers which documents a caller may read.
//
// Eligibility sets are maintained by an external provisioning process; this
// package only reads them. Sets are ordered by document identifier.
package eligibility

import (
	"context"
	"net/url"
	"time"

	"docgate/internal/core/cache"
)

// Provider is the eligibility collaborator.
type Provider interface {
	// Eligible returns the ordered identifiers userID may read for docType.
	Eligible(ctx context.Context, userID, docType string) ([]string, error)

	// IsEligible reports whether id is in userID's set for docType.
	IsEligible(ctx context.Context, userID, docType, id string) (bool, error)
}

// SetKey is the cache key of one (user, type) eligibility set. The user id
// is escaped so emails with '/' cannot collide with another key.
func SetKey(userID, docType string) string {
	return url.PathEscape(userID) + "/" + url.PathEscape(docType)
}

// Cached decorates a Provider with bounded, expiring caches.
type Cached struct {
	next   Provider
	sets   cache.Cache[[]string]
	points cache.Cache[bool]
	ttl    time.Duration
}

// NewCached wraps next. Entries live for ttl.
func NewCached(next Provider, sets cache.Cache[[]string], points cache.Cache[bool], ttl time.Duration) *Cached {
	return &Cached{next: next, sets: sets, points: points, ttl: ttl}
}

func (c *Cached) Eligible(ctx context.Context, userID, docType string) ([]string, error) {
	return c.sets.Fetch(SetKey(userID, docType), c.ttl, func() ([]string, error) {
		return c.next.Eligible(ctx, userID, docType)
	})
}

func (c *Cached) IsEligible(ctx context.Context, userID, docType, id string) (bool, error) {
	key := SetKey(userID, docType) + "/" + url.PathEscape(id)
	return c.points.Fetch(key, c.ttl, func() (bool, error) {
		return c.next.IsEligible(ctx, userID, docType, id)
	})
}

// Invalidate drops the cached set and point lookups for (userID, docType).
func (c *Cached) Invalidate(userID, docType string) {
	key := SetKey(userID, docType)
	c.sets.Delete(key)
	c.points.DeletePrefix(key + "/")
}

// InvalidateAll drops every cached entry for userID.
func (c *Cached) InvalidateAll(userID string) {
	prefix := url.PathEscape(userID) + "/"
	c.sets.DeletePrefix(prefix)
	c.points.DeletePrefix(prefix)
}
