package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Marker is the opaque feed cursor: the id of the last processed entry.
type Marker string

type EventKind int

const (
	KindUnknown EventKind = iota
	KindAccountRole
	KindAccountTeam
	KindTeam
)

func (k EventKind) String() string {
	switch k {
	case KindAccountRole:
		return "account_role"
	case KindAccountTeam:
		return "account_team"
	case KindTeam:
		return "team"
	default:
		return "unknown"
	}
}

// FeedEntry is one entry of a fetched feed page. Payload holds the raw
// content.event object and is decoded lazily so a malformed event fails only
// its own entry.
type FeedEntry struct {
	ID         Marker
	Categories []string
	Payload    json.RawMessage
}

type RoleAssignment struct {
	Role string `json:"role"`
	SSO  string `json:"sso"`
}

type TeamAssignment struct {
	TeamName string `json:"teamName"`
	TeamType string `json:"teamType"`
}

type AccountRoleEvent struct {
	AccountNumber int64
	Roles         []RoleAssignment
}

type AccountTeamEvent struct {
	AccountNumber int64
	Teams         []TeamAssignment
}

type TeamEvent struct {
	TeamNumber string
}

const hybridPrefix = "hybrid:"

type eventPayload struct {
	ResourceID string `json:"resourceId"`
	Product    struct {
		Role       oneOrMany[RoleAssignment] `json:"role"`
		Team       oneOrMany[TeamAssignment] `json:"team"`
		TeamNumber flexString                `json:"teamNumber"`
	} `json:"product"`
}

func (e FeedEntry) decode() (eventPayload, error) {
	var p eventPayload
	if len(e.Payload) == 0 {
		return p, fmt.Errorf("entry %s: empty event payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("entry %s: decode event: %w", e.ID, err)
	}
	return p, nil
}

// AccountRoleEvent decodes the payload as a full role snapshot for one account.
func (e FeedEntry) AccountRoleEvent() (AccountRoleEvent, error) {
	p, err := e.decode()
	if err != nil {
		return AccountRoleEvent{}, err
	}
	number, err := AccountNumber(p.ResourceID)
	if err != nil {
		return AccountRoleEvent{}, err
	}
	return AccountRoleEvent{AccountNumber: number, Roles: p.Product.Role}, nil
}

func (e FeedEntry) AccountTeamEvent() (AccountTeamEvent, error) {
	p, err := e.decode()
	if err != nil {
		return AccountTeamEvent{}, err
	}
	number, err := AccountNumber(p.ResourceID)
	if err != nil {
		return AccountTeamEvent{}, err
	}
	return AccountTeamEvent{AccountNumber: number, Teams: p.Product.Team}, nil
}

func (e FeedEntry) TeamEvent() (TeamEvent, error) {
	p, err := e.decode()
	if err != nil {
		return TeamEvent{}, err
	}
	number := strings.TrimSpace(string(p.Product.TeamNumber))
	if number == "" {
		return TeamEvent{}, fmt.Errorf("entry %s: missing product.teamNumber", e.ID)
	}
	return TeamEvent{TeamNumber: number}, nil
}

// AccountNumber strips the optional "hybrid:" prefix of a resourceId and
// parses the remaining account number.
func AccountNumber(resourceID string) (int64, error) {
	raw := strings.TrimSpace(resourceID)
	raw = strings.TrimPrefix(raw, hybridPrefix)
	if raw == "" {
		return 0, fmt.Errorf("missing resourceId")
	}
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid account number %q: %w", resourceID, err)
	}
	return number, nil
}

// oneOrMany accepts either a single JSON object or an array of them.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "" || trimmed == "null":
		*o = nil
		return nil
	case strings.HasPrefix(trimmed, "["):
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	default:
		var one T
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*o = []T{one}
		return nil
	}
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
