package models

// RoleID is the downstream identifier of an account contact role.
type RoleID int64

const (
	RoleAccountCoordinator    RoleID = 1
	RoleAccountExecutive      RoleID = 2
	RoleAccountsReceivable    RoleID = 3
	RoleBusinessDevelopment   RoleID = 4
	RoleCrossPlatformTechLead RoleID = 5
	RoleEmployeeReviewer      RoleID = 6
	RolePrimaryLeadTech       RoleID = 7
	RoleSystemAdministrator   RoleID = 8
)

// SlotKind says how many contacts may hold a role on one account.
type SlotKind int

const (
	SlotSingle SlotKind = iota
	SlotMulti
)

// RoleName is the role name carried by feed events.
type RoleName string

const (
	AccountCoordinator            RoleName = "ACCOUNT_COORDINATOR"
	AccountManager                RoleName = "ACCOUNT_MANAGER"
	AccountsReceivableSpecialist  RoleName = "ACCOUNTS_RECEIVABLE_SPECIALIST"
	BusinessDevelopmentConsultant RoleName = "BUSINESS_DEVELOPMENT_CONSULTANT"
	CrossPlatformLeadTech         RoleName = "CROSS_PLATFORM_LEAD_TECH"
	InternalReviewer              RoleName = "INTERNAL_REVIEWER"
	PrimaryLeadTech               RoleName = "PRIMARY_LEAD_TECH"
	SystemAdministrator           RoleName = "SYSTEM_ADMINISTRATOR"
)

type RoleSpec struct {
	Name RoleName
	ID   RoleID
	Slot SlotKind
}

var roleTable = []RoleSpec{
	{Name: AccountCoordinator, ID: RoleAccountCoordinator, Slot: SlotSingle},
	{Name: AccountManager, ID: RoleAccountExecutive, Slot: SlotSingle},
	{Name: AccountsReceivableSpecialist, ID: RoleAccountsReceivable, Slot: SlotSingle},
	{Name: BusinessDevelopmentConsultant, ID: RoleBusinessDevelopment, Slot: SlotSingle},
	{Name: CrossPlatformLeadTech, ID: RoleCrossPlatformTechLead, Slot: SlotMulti},
	{Name: InternalReviewer, ID: RoleEmployeeReviewer, Slot: SlotMulti},
	{Name: PrimaryLeadTech, ID: RolePrimaryLeadTech, Slot: SlotSingle},
	{Name: SystemAdministrator, ID: RoleSystemAdministrator, Slot: SlotMulti},
}

// Roles returns the fixed role table in a stable order.
func Roles() []RoleSpec {
	out := make([]RoleSpec, len(roleTable))
	copy(out, roleTable)
	return out
}

// LookupRole resolves a feed role name.
func LookupRole(name string) (RoleSpec, bool) {
	switch RoleName(name) {
	case AccountCoordinator:
		return roleTable[0], true
	case AccountManager:
		return roleTable[1], true
	case AccountsReceivableSpecialist:
		return roleTable[2], true
	case BusinessDevelopmentConsultant:
		return roleTable[3], true
	case CrossPlatformLeadTech:
		return roleTable[4], true
	case InternalReviewer:
		return roleTable[5], true
	case PrimaryLeadTech:
		return roleTable[6], true
	case SystemAdministrator:
		return roleTable[7], true
	default:
		return RoleSpec{}, false
	}
}
