package scoreboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sportsfade/fadebot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SCOREBOARD CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Fetches the live scoreboard per sport with a 30s in-process TTL cache, and
// per-game summaries for single-game refresh. The cache is single-writer per
// sport; concurrent readers for a missing key wait on the fetch.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Client struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	events    []Event
	fetchedAt time.Time
}

func NewClient(baseURL string, ttl time.Duration) *Client {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		ttl:   ttl,
		cache: make(map[string]*cacheEntry),
	}
}

// Event is one game on the scoreboard, raw enough to parse per sport.
type Event struct {
	ID           string
	Date         time.Time
	Name         string
	State        string // pre, in, post
	Completed    bool
	Period       int
	DisplayClock string
	HomeTeam     string
	AwayTeam     string
	HomeScore    int
	AwayScore    int
}

// GetScoreboard returns all of today's events for a sport, served from cache
// within the TTL.
func (c *Client) GetScoreboard(ctx context.Context, sportID string) ([]Event, error) {
	c.mu.Lock()
	if e, ok := c.cache[sportID]; ok && time.Since(e.fetchedAt) < c.ttl {
		events := e.events
		c.mu.Unlock()
		return events, nil
	}
	c.mu.Unlock()

	sport, ok := GetSport(sportID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown sport %q", types.ErrValidation, sportID)
	}

	url := fmt.Sprintf("%s/%s/scoreboard", c.baseURL, sport.LeaguePath)
	if sport.GroupID != "" {
		// College feeds default to ranked teams only.
		url += "?groups=" + sport.GroupID
	}

	events, err := c.fetchEvents(ctx, url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[sportID] = &cacheEntry{events: events, fetchedAt: time.Now()}
	c.mu.Unlock()

	log.Debug().Str("sport", sportID).Int("events", len(events)).Msg("Scoreboard refreshed")
	return events, nil
}

// GetGameSummary fetches the live state of a single game, bypassing the
// scoreboard cache.
func (c *Client) GetGameSummary(ctx context.Context, sportID, eventID string) (Event, error) {
	sport, ok := GetSport(sportID)
	if !ok {
		return Event{}, fmt.Errorf("%w: unknown sport %q", types.ErrValidation, sportID)
	}

	url := fmt.Sprintf("%s/%s/scoreboard?event=%s", c.baseURL, sport.LeaguePath, eventID)
	events, err := c.fetchEvents(ctx, url)
	if err != nil {
		return Event{}, err
	}
	for _, e := range events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return Event{}, fmt.Errorf("%w: event %s", types.ErrMatchNotFound, eventID)
}

// ═══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ═══════════════════════════════════════════════════════════════════════════════

type wireScoreboard struct {
	Events []struct {
		ID           string `json:"id"`
		Date         string `json:"date"`
		Name         string `json:"name"`
		Competitions []struct {
			Competitors []struct {
				HomeAway string `json:"homeAway"`
				Score    string `json:"score"`
				Team     struct {
					DisplayName string `json:"displayName"`
				} `json:"team"`
			} `json:"competitors"`
			Status struct {
				Period       int    `json:"period"`
				DisplayClock string `json:"displayClock"`
				Type         struct {
					State     string `json:"state"`
					Completed bool   `json:"completed"`
				} `json:"type"`
			} `json:"status"`
		} `json:"competitions"`
	} `json:"events"`
}

func (c *Client) fetchEvents(ctx context.Context, url string) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: scoreboard HTTP %d", types.ErrTransient, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransient, err)
	}

	var sb wireScoreboard
	if err := json.Unmarshal(body, &sb); err != nil {
		return nil, fmt.Errorf("parse scoreboard: %w", err)
	}

	events := make([]Event, 0, len(sb.Events))
	for _, we := range sb.Events {
		if len(we.Competitions) == 0 {
			continue
		}
		comp := we.Competitions[0]

		ev := Event{
			ID:           we.ID,
			Name:         we.Name,
			State:        comp.Status.Type.State,
			Completed:    comp.Status.Type.Completed,
			Period:       comp.Status.Period,
			DisplayClock: comp.Status.DisplayClock,
		}
		if t, err := time.Parse(time.RFC3339, we.Date); err == nil {
			ev.Date = t.UTC()
		} else if t, err := time.Parse("2006-01-02T15:04Z", we.Date); err == nil {
			ev.Date = t.UTC()
		}

		for _, ct := range comp.Competitors {
			score := atoiSafe(ct.Score)
			if ct.HomeAway == "home" {
				ev.HomeTeam = ct.Team.DisplayName
				ev.HomeScore = score
			} else {
				ev.AwayTeam = ct.Team.DisplayName
				ev.AwayScore = score
			}
		}
		events = append(events, ev)
	}

	return events, nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
