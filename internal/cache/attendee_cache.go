// Package cache holds the local attendee roster. The roster is loaded in
// bulk before doors open and served from memory so lookups never touch the
// network or the KV store on the hot path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prudhvinik1/doorsync/internal/api"
	"github.com/prudhvinik1/doorsync/internal/kv"
	"github.com/prudhvinik1/doorsync/internal/models"
)

// ErrNotFound is returned when an attendee id is absent from the cache,
// typically a bad or foreign QR code.
var ErrNotFound = errors.New("attendee not found")

// MaxSearchResults bounds Search so a one-letter query cannot return the
// whole roster.
const MaxSearchResults = 25

func rosterKey(eventID string) string {
	return "roster:" + eventID
}

// AttendeeCache maps attendee ids to roster entries for one event.
// Load is all-or-nothing: the previous roster stays intact until a full
// replacement has been fetched and persisted.
type AttendeeCache struct {
	client api.Client
	store  kv.Store

	mu        sync.RWMutex
	eventID   string
	attendees map[string]models.Attendee
	ordered   []models.Attendee
}

func NewAttendeeCache(client api.Client, store kv.Store) *AttendeeCache {
	return &AttendeeCache{
		client:    client,
		store:     store,
		attendees: make(map[string]models.Attendee),
	}
}

// Load fetches the full roster for an event and replaces the cache. On any
// failure the previous cache is left untouched: the new roster is built in
// fresh structures and persisted as a single KV value before the swap.
func (c *AttendeeCache) Load(ctx context.Context, eventID string) (int, error) {
	roster, err := c.client.FetchRoster(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch roster: %w", err)
	}

	data, err := json.Marshal(roster)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal roster: %w", err)
	}
	if err := c.store.Set(ctx, rosterKey(eventID), data); err != nil {
		return 0, fmt.Errorf("failed to persist roster: %w", err)
	}

	c.replace(eventID, roster)
	return len(roster), nil
}

// Restore rebuilds the in-memory index from the persisted roster, used on
// process restart when the device may be offline. Returns ErrNotFound when
// no roster was ever loaded for the event.
func (c *AttendeeCache) Restore(ctx context.Context, eventID string) (int, error) {
	data, err := c.store.Get(ctx, rosterKey(eventID))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read persisted roster: %w", err)
	}

	var roster []models.Attendee
	if err := json.Unmarshal(data, &roster); err != nil {
		return 0, fmt.Errorf("failed to unmarshal persisted roster: %w", err)
	}

	c.replace(eventID, roster)
	return len(roster), nil
}

func (c *AttendeeCache) replace(eventID string, roster []models.Attendee) {
	index := make(map[string]models.Attendee, len(roster))
	ordered := make([]models.Attendee, len(roster))
	copy(ordered, roster)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })
	for _, a := range roster {
		index[a.ID] = a
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventID = eventID
	c.attendees = index
	c.ordered = ordered
}

func (c *AttendeeCache) Lookup(attendeeID string) (*models.Attendee, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attendee, ok := c.attendees[attendeeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &attendee, nil
}

// Search performs a case-insensitive substring match over name and id,
// bounded to MaxSearchResults.
func (c *AttendeeCache) Search(query string) []models.Attendee {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var results []models.Attendee
	for _, a := range c.ordered {
		if strings.Contains(strings.ToLower(a.Name), query) ||
			strings.Contains(strings.ToLower(a.ID), query) {
			results = append(results, a)
			if len(results) == MaxSearchResults {
				break
			}
		}
	}
	return results
}

func (c *AttendeeCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.attendees)
}

func (c *AttendeeCache) EventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eventID
}

// Clear drops the roster for an event, in memory and on disk. Part of the
// "clear event data" administrative action.
func (c *AttendeeCache) Clear(ctx context.Context, eventID string) error {
	if err := c.store.Delete(ctx, rosterKey(eventID)); err != nil {
		return fmt.Errorf("failed to delete persisted roster: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eventID == eventID {
		c.eventID = ""
		c.attendees = make(map[string]models.Attendee)
		c.ordered = nil
	}
	return nil
}
