package handlers

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"support-feed-worker/internal/models"
)

// RoleHandler reconciles an account's contact roles with a full snapshot.
type RoleHandler struct {
	CanAssignRoles bool
}

func (h RoleHandler) Handle(ctx context.Context, s Store, entry models.FeedEntry) Result {
	event, err := entry.AccountRoleEvent()
	if err != nil {
		return Fail(err)
	}
	return h.Apply(ctx, s, event)
}

// Apply removes held roles missing from the snapshot (unless CanAssignRoles
// is set) and then adds every snapshot role not yet held. Problems with single
// roles are reported as issues and do not abort the event.
func (h RoleHandler) Apply(ctx context.Context, s RoleStore, event models.AccountRoleEvent) Result {
	account, err := s.LoadAccount(ctx, event.AccountNumber)
	if err != nil {
		return Fail(err)
	}

	snapshot := lastSingleSlotHolder(event.Roles)

	var issues []error
	if !h.CanAssignRoles {
		removed, err := h.removeStale(ctx, s, account.ID, snapshot)
		if err != nil {
			return Fail(err)
		}
		issues = append(issues, removed...)
	}

	for _, assignment := range snapshot {
		if err := h.assign(ctx, s, account.ID, assignment); err != nil {
			issues = append(issues, err)
		}
	}
	return Commit(issues...)
}

// lastSingleSlotHolder keeps only the last SSO listed for each single-contact
// role, so a snapshot naming two holders converges instead of flipping the slot.
func lastSingleSlotHolder(roles []models.RoleAssignment) []models.RoleAssignment {
	last := make(map[models.RoleID]int)
	for i, a := range roles {
		if spec, ok := models.LookupRole(a.Role); ok && spec.Slot == models.SlotSingle {
			last[spec.ID] = i
		}
	}
	return lo.Filter(roles, func(a models.RoleAssignment, i int) bool {
		spec, ok := models.LookupRole(a.Role)
		return !ok || spec.Slot != models.SlotSingle || last[spec.ID] == i
	})
}

func inSnapshot(snapshot []models.RoleAssignment, role models.RoleID, sso string) bool {
	return lo.ContainsBy(snapshot, func(a models.RoleAssignment) bool {
		spec, ok := models.LookupRole(a.Role)
		return ok && spec.ID == role && a.SSO == sso
	})
}

func knownRole(id models.RoleID) bool {
	return lo.ContainsBy(models.Roles(), func(spec models.RoleSpec) bool {
		return spec.ID == id
	})
}

func (h RoleHandler) removeStale(ctx context.Context, s RoleStore, account int64, snapshot []models.RoleAssignment) ([]error, error) {
	holders, err := s.RoleHolders(ctx, account)
	if err != nil {
		return nil, err
	}

	var issues []error
	for _, holder := range holders {
		if !knownRole(holder.Role) || inSnapshot(snapshot, holder.Role, holder.SSO) {
			continue
		}
		removed, err := s.DeleteAccountContactRole(ctx, account, holder.ContactID, holder.Role)
		if err != nil {
			issues = append(issues, fmt.Errorf("remove %s from role %d: %w", holder.SSO, holder.Role, err))
			continue
		}
		if !removed {
			continue
		}
		contact := holder.ContactID
		if err := s.AddContactChangeLog(ctx, account, &contact, nil, holder.Role); err != nil {
			issues = append(issues, err)
		}
	}
	return issues, nil
}

func (h RoleHandler) assign(ctx context.Context, s RoleStore, account int64, assignment models.RoleAssignment) error {
	spec, ok := models.LookupRole(assignment.Role)
	if !ok {
		return fmt.Errorf("%w %q for %s", ErrUnknownRole, assignment.Role, assignment.SSO)
	}

	contact, err := s.ContactBySSO(ctx, assignment.SSO)
	if err != nil {
		return fmt.Errorf("assign %s: %w", spec.Name, err)
	}

	held, err := s.HasAccountContactRole(ctx, account, contact.ID, spec.ID)
	if err != nil {
		return err
	}
	if held {
		return nil
	}

	var previous *int64
	switch spec.Slot {
	case models.SlotMulti:
		if err := s.AddAccountContactRole(ctx, account, contact.ID, spec.ID); err != nil {
			return err
		}
	default:
		previous, err = s.ReplaceAccountContactRole(ctx, account, contact.ID, spec.ID)
		if err != nil {
			return err
		}
	}
	return s.AddContactChangeLog(ctx, account, previous, &contact.ID, spec.ID)
}
