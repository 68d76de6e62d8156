package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tjarratt/babble"

	"support-feed-worker/internal/models"
)

var simulatedRoles = []string{
	string(models.AccountCoordinator),
	string(models.AccountManager),
	string(models.PrimaryLeadTech),
	string(models.SystemAdministrator),
	string(models.InternalReviewer),
	"CHIEF_VIBES_OFFICER",
}

// wordsFile is the dictionary babble reads; it panics when the file is absent.
var wordsFile = "/usr/share/dict/words"

// Simulator is a synthetic feed for local runs without access to the real
// feed. It ignores the marker and produces random, well-formed pages.
type Simulator struct {
	maxPage     int
	temperature float32 // how often a poll returns a full page
	maxLatency  time.Duration
	words       func() string
	rng         *rand.Rand
}

func NewSimulator(maxPage int, temperature float32, maxLatency time.Duration) (*Simulator, error) {
	if temperature <= 0 || temperature > 1 {
		return nil, fmt.Errorf("temperature cannot be 0 or higher than 1")
	}
	if maxPage <= 0 {
		return nil, fmt.Errorf("page size must be positive")
	}
	return &Simulator{
		maxPage:     maxPage,
		temperature: temperature,
		maxLatency:  maxLatency,
		words:       newWordSource(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func newWordSource() func() string {
	if _, err := os.Stat(wordsFile); err != nil {
		slog.Warn("No dictionary for simulated names, using random ids", "path", wordsFile, "error", err)
		return uuidWords
	}
	babbler := babble.NewBabbler()
	babbler.Count = 2
	return babbler.Babble
}

func uuidWords() string {
	id := uuid.NewString()
	return id[:8] + "-" + id[9:13]
}

// WithWords replaces the word source used for team names and SSOs.
func (s *Simulator) WithWords(words func() string) *Simulator {
	s.words = words
	return s
}

func (s *Simulator) Fetch(ctx context.Context, marker models.Marker, filter Filter) ([]models.FeedEntry, error) {
	if len(filter.Terms) == 0 {
		return nil, nil
	}

	slog.Debug("Polling simulated feed", "marker", marker)
	if s.maxLatency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(s.rng.Int63n(int64(s.maxLatency)))):
		}
	}

	n := biasedRandom(s.rng, s.maxPage, s.temperature)
	entries := make([]models.FeedEntry, 0, n)
	for range n {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}
		term := filter.Terms[s.rng.Intn(len(filter.Terms))]
		payload, err := s.payloadFor(term)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.FeedEntry{
			ID:         models.Marker("urn:uuid:" + id.String()),
			Categories: []string{"tid:simulated", "type:" + term},
			Payload:    payload,
		})
	}
	return entries, nil
}

func (s *Simulator) payloadFor(term string) (json.RawMessage, error) {
	account := fmt.Sprintf("hybrid:%d", 100000+s.rng.Intn(900000))
	var event map[string]any
	switch {
	case strings.HasPrefix(term, "support.roles."):
		roles := make([]map[string]string, 0, 3)
		for range s.rng.Intn(3) + 1 {
			roles = append(roles, map[string]string{
				"role": simulatedRoles[s.rng.Intn(len(simulatedRoles))],
				"sso":  strings.ReplaceAll(s.words(), "-", "."),
			})
		}
		event = map[string]any{"resourceId": account, "product": map[string]any{"role": roles}}
	case strings.HasPrefix(term, "support.teams."):
		teamType := "SUPPORT"
		if s.rng.Intn(4) == 0 {
			teamType = "SALES"
		}
		event = map[string]any{"resourceId": account, "product": map[string]any{
			"team": map[string]string{"teamName": s.words(), "teamType": teamType},
		}}
	default:
		event = map[string]any{"product": map[string]any{"teamNumber": fmt.Sprintf("%d", 1000+s.rng.Intn(9000))}}
	}
	return json.Marshal(event)
}

// biasedRandom returns x with probability t, otherwise a value in [0, x).
func biasedRandom(rng *rand.Rand, x int, t float32) int {
	if rng.Float32() < t {
		return x
	}
	return rng.Intn(x)
}
