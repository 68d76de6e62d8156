package classifier

import (
	"strings"

	"support-feed-worker/internal/models"
)

const typePrefix = "type:"

type category struct {
	term string
	kind models.EventKind
}

// Ordered so the rendered feed search is deterministic.
var categories = []category{
	{term: "support.roles.account_support.update.hybrid", kind: models.KindAccountRole},
	{term: "support.roles.account_support.create.hybrid", kind: models.KindAccountRole},
	{term: "support.teams.account_support.update.hybrid", kind: models.KindAccountTeam},
	{term: "support.teams.account_support.create.hybrid", kind: models.KindAccountTeam},
	{term: "support.team.team.update", kind: models.KindTeam},
	{term: "support.team.team.create", kind: models.KindTeam},
}

var byTerm = func() map[string]models.EventKind {
	m := make(map[string]models.EventKind, len(categories))
	for _, c := range categories {
		m[c.term] = c.kind
	}
	return m
}()

// Terms returns the category terms the worker subscribes to.
func Terms() []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.term)
	}
	return out
}

// Classify looks at the first "type:" category of the entry.
func Classify(entry models.FeedEntry) models.EventKind {
	for _, term := range entry.Categories {
		if !strings.HasPrefix(term, typePrefix) {
			continue
		}
		if kind, ok := byTerm[strings.TrimPrefix(term, typePrefix)]; ok {
			return kind
		}
		return models.KindUnknown
	}
	return models.KindUnknown
}
