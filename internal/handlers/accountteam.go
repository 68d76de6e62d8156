package handlers

import (
	"context"
	"fmt"
	"strings"

	"support-feed-worker/internal/models"
)

const supportTeamType = "support"

// AccountTeamHandler points an account at its support team.
type AccountTeamHandler struct{}

func (h AccountTeamHandler) Handle(ctx context.Context, s Store, entry models.FeedEntry) Result {
	event, err := entry.AccountTeamEvent()
	if err != nil {
		return Fail(err)
	}
	return h.Apply(ctx, s, event)
}

// Apply assigns every support team of the event in order. Teams of any other
// type are ignored; an event without a support team is skipped.
func (h AccountTeamHandler) Apply(ctx context.Context, s AccountTeamStore, event models.AccountTeamEvent) Result {
	applied := 0
	for _, assignment := range event.Teams {
		if !strings.EqualFold(strings.TrimSpace(assignment.TeamType), supportTeamType) {
			continue
		}

		team, err := s.TeamByName(ctx, assignment.TeamName)
		if err != nil {
			return Fail(fmt.Errorf("account %d: %w", event.AccountNumber, err))
		}

		segment := models.SegmentManaged
		if team.SegmentID != nil {
			segment = *team.SegmentID
		}
		if err := s.SetAccountSupportTeam(ctx, event.AccountNumber, team.ID, segment); err != nil {
			return Fail(err)
		}
		applied++
	}

	if applied == 0 {
		return Skip("no support team assigned")
	}
	return Commit()
}
