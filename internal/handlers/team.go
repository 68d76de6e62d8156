package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"support-feed-worker/internal/models"
	"support-feed-worker/internal/store"
	"support-feed-worker/internal/teams"
)

const (
	queueViewPermissionGroup = 1
	conditionOperator        = "="
	// Matches tickets without an account.
	noAccount = "None"
)

// TeamHandler creates or updates a team from the team-detail service.
type TeamHandler struct {
	Details   teams.Service
	CRMTeamID string
}

func (h TeamHandler) Handle(ctx context.Context, s Store, entry models.FeedEntry) Result {
	event, err := entry.TeamEvent()
	if err != nil {
		return Fail(err)
	}
	return h.Apply(ctx, s, event)
}

func (h TeamHandler) Apply(ctx context.Context, s TeamStore, event models.TeamEvent) Result {
	if h.Details == nil {
		return Fail(ErrMissingTeamsLink)
	}

	details, err := h.Details.GetTeam(ctx, event.TeamNumber)
	if err != nil {
		return Fail(fmt.Errorf("team %s: %w", event.TeamNumber, err))
	}
	segment, err := s.SegmentByName(ctx, details.CoreSegment)
	if err != nil {
		return Fail(fmt.Errorf("team %s: %w", event.TeamNumber, err))
	}
	territory, err := s.TerritoryByCode(ctx, details.Region)
	if err != nil {
		return Fail(fmt.Errorf("team %s: %w", event.TeamNumber, err))
	}

	existing, err := s.TeamByNumber(ctx, event.TeamNumber)
	switch {
	case err == nil:
		update := store.TeamUpdate{
			Name:        details.Name,
			SegmentID:   &segment.ID,
			TerritoryID: &territory.ID,
			Description: details.Description,
		}
		if err := s.UpdateTeam(ctx, existing.ID, update); err != nil {
			return Fail(err)
		}
		return Commit()
	case errors.Is(err, store.ErrNotFound):
	default:
		return Fail(err)
	}

	team, err := s.CreateTeam(ctx, store.NewTeam{
		Name:        details.Name,
		SegmentID:   &segment.ID,
		RoleID:      models.TeamRoleSupport,
		CRMTeamID:   h.CRMTeamID,
		Number:      event.TeamNumber,
		TerritoryID: &territory.ID,
		Description: details.Description,
	})
	if err != nil {
		return Fail(err)
	}

	view, queued, err := provisionQueueView(ctx, s, team, segment.ID)
	if err != nil {
		return Fail(err)
	}
	if !queued {
		return Commit(fmt.Errorf("queue view %s: %w: %s", view.Label, ErrUnmappedSegment, segment.Name))
	}
	return Commit()
}

// provisionQueueView creates the view routing a new team's tickets:
// team = T OR account = None AND queue = Q. Without a queue for the segment
// the AND clause is left out and queued is false.
func provisionQueueView(ctx context.Context, s TeamStore, team store.Team, segment models.SegmentID) (view store.QueueView, queued bool, err error) {
	view, err = s.CreateQueueView(ctx, store.QueueView{
		Label:           fmt.Sprintf("t%d", team.ID),
		Name:            team.Name,
		Description:     team.Name + " Support Team",
		PermissionGroup: queueViewPermissionGroup,
	})
	if err != nil {
		return view, false, err
	}

	type link struct {
		label string
		value string
	}
	chain := []link{
		{label: "team", value: strconv.FormatInt(team.ID, 10)},
		{label: "or"},
		{label: "account", value: noAccount},
	}

	queue, queued := models.SupportQueue(segment)
	if queued {
		chain = append(chain, link{label: "and"}, link{label: "queue", value: strconv.FormatInt(int64(queue), 10)})
	}

	for i, l := range chain {
		var fields []store.ConditionField
		if l.value != "" {
			fields = append(fields, store.ConditionField{Value: l.value, Operator: conditionOperator})
		}
		if _, err := s.AddQueueViewCondition(ctx, view.ID, l.label, i+1, fields...); err != nil {
			return view, false, err
		}
	}
	return view, queued, nil
}
