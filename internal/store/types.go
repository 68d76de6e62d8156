package store

import (
	"database/sql"

	"support-feed-worker/internal/models"
)

type Account struct {
	ID            int64
	Name          string
	SupportTeamID *int64
	SegmentID     *models.SegmentID
}

type Contact struct {
	ID   int64
	SSO  string
	Name string
}

// RoleHolder is one contact holding one role on an account.
type RoleHolder struct {
	ContactID int64
	SSO       string
	Role      models.RoleID
}

type ChangeLogEntry struct {
	ID           int64
	AccountID    int64
	OldContactID *int64
	NewContactID *int64
	Role         models.RoleID
	ChangedBy    string
}

type Segment struct {
	ID   models.SegmentID
	Name string
}

type Territory struct {
	ID   int64
	Code string
	Name string
}

type Team struct {
	ID          int64
	Name        string
	SegmentID   *models.SegmentID
	RoleID      int64
	CRMTeamID   string
	Number      string
	TerritoryID *int64
	Description string
}

// NewTeam holds the attributes of a team to create.
type NewTeam struct {
	Name        string
	SegmentID   *models.SegmentID
	RoleID      int64
	CRMTeamID   string
	Number      string
	TerritoryID *int64
	Description string
}

// TeamUpdate holds the attributes overwritten on an existing team.
type TeamUpdate struct {
	Name        string
	SegmentID   *models.SegmentID
	TerritoryID *int64
	Description string
}

type QueueView struct {
	ID              int64
	Label           string
	Name            string
	Description     string
	PermissionGroup int64
}

// QueueViewCondition is one link of a queue view's ordered condition chain.
// Label is a field name ("team", "account", "queue") or a joiner ("or", "and").
type QueueViewCondition struct {
	ID     int64
	Label  string
	Order  int
	Fields []ConditionField
}

type ConditionField struct {
	Value    string
	Operator string
}

func nullableInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func nullableSegment(v sql.NullInt64) *models.SegmentID {
	if !v.Valid {
		return nil
	}
	out := models.SegmentID(v.Int64)
	return &out
}

func intArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func segmentArg(v *models.SegmentID) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
