package handlers

import (
	"context"

	"support-feed-worker/internal/models"
	"support-feed-worker/internal/store"
	"support-feed-worker/internal/teams"
)

// RoleStore is what role reconciliation needs from a transaction.
type RoleStore interface {
	LoadAccount(ctx context.Context, number int64) (store.Account, error)
	ContactBySSO(ctx context.Context, sso string) (store.Contact, error)
	RoleHolders(ctx context.Context, account int64) ([]store.RoleHolder, error)
	HasAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) (bool, error)
	AddAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) error
	ReplaceAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) (*int64, error)
	DeleteAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) (bool, error)
	AddContactChangeLog(ctx context.Context, account int64, oldContact, newContact *int64, role models.RoleID) error
}

type AccountTeamStore interface {
	TeamByName(ctx context.Context, name string) (store.Team, error)
	SetAccountSupportTeam(ctx context.Context, account, teamID int64, segment models.SegmentID) error
}

type TeamStore interface {
	TeamByNumber(ctx context.Context, number string) (store.Team, error)
	SegmentByName(ctx context.Context, name string) (store.Segment, error)
	TerritoryByCode(ctx context.Context, code string) (store.Territory, error)
	CreateTeam(ctx context.Context, team store.NewTeam) (store.Team, error)
	UpdateTeam(ctx context.Context, id int64, update store.TeamUpdate) error
	CreateQueueView(ctx context.Context, view store.QueueView) (store.QueueView, error)
	AddQueueViewCondition(ctx context.Context, viewID int64, label string, order int, fields ...store.ConditionField) (int64, error)
}

// Store is the transaction surface handed to every handler.
type Store interface {
	RoleStore
	AccountTeamStore
	TeamStore
}

type Handler interface {
	Handle(ctx context.Context, s Store, entry models.FeedEntry) Result
}

type HandlerFunc func(ctx context.Context, s Store, entry models.FeedEntry) Result

func (f HandlerFunc) Handle(ctx context.Context, s Store, entry models.FeedEntry) Result {
	return f(ctx, s, entry)
}

type Options struct {
	// CanAssignRoles disables the role removal pass when another system owns
	// role assignment.
	CanAssignRoles bool
	Teams          teams.Service
	CRMTeamID      string
}

// Registry maps event kinds to their handlers.
type Registry struct {
	handlers map[models.EventKind]Handler
}

func NewRegistry(opts Options) *Registry {
	r := &Registry{handlers: make(map[models.EventKind]Handler, 3)}
	r.Register(models.KindAccountRole, RoleHandler{CanAssignRoles: opts.CanAssignRoles})
	r.Register(models.KindAccountTeam, AccountTeamHandler{})
	r.Register(models.KindTeam, TeamHandler{Details: opts.Teams, CRMTeamID: opts.CRMTeamID})
	return r
}

func (r *Registry) Register(kind models.EventKind, h Handler) {
	r.handlers[kind] = h
}

func (r *Registry) Lookup(kind models.EventKind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}
