package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"support-feed-worker/internal/models"
)

// Tx is one downstream transaction. All reads and writes of a feed entry go
// through a single Tx.
type Tx struct {
	tx    *sql.Tx
	actor string
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Accounts

func (t *Tx) CreateAccount(ctx context.Context, account Account) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (id, name, support_team_id, segment_id) VALUES (?, ?, ?, ?)`,
		account.ID, account.Name, intArg(account.SupportTeamID), segmentArg(account.SegmentID))
	if err != nil {
		return fmt.Errorf("create account %d: %w", account.ID, err)
	}
	return nil
}

func (t *Tx) LoadAccount(ctx context.Context, number int64) (Account, error) {
	var (
		account Account
		teamID  sql.NullInt64
		segment sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, support_team_id, segment_id FROM accounts WHERE id = ?`, number).
		Scan(&account.ID, &account.Name, &teamID, &segment)
	if err != nil {
		return Account{}, notFound(err, "account %d", number)
	}
	account.SupportTeamID = nullableInt(teamID)
	account.SegmentID = nullableSegment(segment)
	return account, nil
}

// SetAccountSupportTeam points an account at its support team and segment.
func (t *Tx) SetAccountSupportTeam(ctx context.Context, account, teamID int64, segment models.SegmentID) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET support_team_id = ?, segment_id = ? WHERE id = ?`,
		teamID, int64(segment), account)
	if err != nil {
		return fmt.Errorf("update account %d: %w", account, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports zero affected rows when values are unchanged.
		if _, err := t.LoadAccount(ctx, account); err != nil {
			return err
		}
	}
	return nil
}

// Contacts

func (t *Tx) CreateContact(ctx context.Context, sso, name string) (Contact, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO contacts (employee_userid, name) VALUES (?, ?)`, sso, name)
	if err != nil {
		return Contact{}, fmt.Errorf("create contact %s: %w", sso, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Contact{}, fmt.Errorf("create contact %s: %w", sso, err)
	}
	return Contact{ID: id, SSO: sso, Name: name}, nil
}

func (t *Tx) ContactBySSO(ctx context.Context, sso string) (Contact, error) {
	var c Contact
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, employee_userid, name FROM contacts WHERE employee_userid = ?`, sso).
		Scan(&c.ID, &c.SSO, &c.Name)
	if err != nil {
		return Contact{}, notFound(err, "contact %s", sso)
	}
	return c, nil
}

// Account contact roles

// RoleHolders lists every role association on an account, ordered by role
// then contact.
func (t *Tx) RoleHolders(ctx context.Context, account int64) ([]RoleHolder, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT r.contact_id, c.employee_userid, r.role_id
		FROM account_contact_roles r
		JOIN contacts c ON c.id = r.contact_id
		WHERE r.account_id = ?
		ORDER BY r.role_id, r.contact_id`, account)
	if err != nil {
		return nil, fmt.Errorf("list roles of account %d: %w", account, err)
	}
	defer rows.Close()

	var holders []RoleHolder
	for rows.Next() {
		var h RoleHolder
		if err := rows.Scan(&h.ContactID, &h.SSO, &h.Role); err != nil {
			return nil, fmt.Errorf("scan role of account %d: %w", account, err)
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

func (t *Tx) HasAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) (bool, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM account_contact_roles WHERE account_id = ? AND contact_id = ? AND role_id = ?`,
		account, contact, int64(role)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check role %d of contact %d on account %d: %w", role, contact, account, err)
	}
	return n > 0, nil
}

// AddAccountContactRole adds a holder without touching existing holders.
func (t *Tx) AddAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO account_contact_roles (account_id, contact_id, role_id) VALUES (?, ?, ?)`,
		account, contact, int64(role))
	if err != nil {
		return fmt.Errorf("add role %d for contact %d on account %d: %w", role, contact, account, err)
	}
	return nil
}

// ReplaceAccountContactRole makes contact the only holder of role and returns
// the previous holder, if any.
func (t *Tx) ReplaceAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) (*int64, error) {
	var previous sql.NullInt64
	err := t.tx.QueryRowContext(ctx,
		`SELECT contact_id FROM account_contact_roles
		WHERE account_id = ? AND role_id = ? ORDER BY contact_id LIMIT 1`,
		account, int64(role)).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read holder of role %d on account %d: %w", role, account, err)
	}

	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM account_contact_roles WHERE account_id = ? AND role_id = ?`,
		account, int64(role)); err != nil {
		return nil, fmt.Errorf("clear role %d on account %d: %w", role, account, err)
	}
	if err := t.AddAccountContactRole(ctx, account, contact, role); err != nil {
		return nil, err
	}
	return nullableInt(previous), nil
}

// DeleteAccountContactRole removes one association and reports whether it
// existed.
func (t *Tx) DeleteAccountContactRole(ctx context.Context, account, contact int64, role models.RoleID) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM account_contact_roles WHERE account_id = ? AND contact_id = ? AND role_id = ?`,
		account, contact, int64(role))
	if err != nil {
		return false, fmt.Errorf("remove role %d of contact %d on account %d: %w", role, contact, account, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove role %d of contact %d on account %d: %w", role, contact, account, err)
	}
	return n > 0, nil
}

// AddContactChangeLog appends an audit entry authored by the session actor.
func (t *Tx) AddContactChangeLog(ctx context.Context, account int64, oldContact, newContact *int64, role models.RoleID) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO account_contact_change_log (account_id, old_contact_id, new_contact_id, role_id, changed_by)
		VALUES (?, ?, ?, ?, ?)`,
		account, intArg(oldContact), intArg(newContact), int64(role), t.actor)
	if err != nil {
		return fmt.Errorf("log contact change on account %d: %w", account, err)
	}
	return nil
}

func (t *Tx) ContactChangeLog(ctx context.Context, account int64) ([]ChangeLogEntry, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, account_id, old_contact_id, new_contact_id, role_id, changed_by
		FROM account_contact_change_log WHERE account_id = ? ORDER BY id`, account)
	if err != nil {
		return nil, fmt.Errorf("read change log of account %d: %w", account, err)
	}
	defer rows.Close()

	var entries []ChangeLogEntry
	for rows.Next() {
		var (
			e          ChangeLogEntry
			prev, next sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &prev, &next, &e.Role, &e.ChangedBy); err != nil {
			return nil, fmt.Errorf("scan change log of account %d: %w", account, err)
		}
		e.OldContactID = nullableInt(prev)
		e.NewContactID = nullableInt(next)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Segments and territories

func (t *Tx) SegmentByName(ctx context.Context, name string) (Segment, error) {
	var s Segment
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name FROM segments WHERE LOWER(name) = LOWER(?)`, name).Scan(&s.ID, &s.Name)
	if err != nil {
		return Segment{}, notFound(err, "segment %q", name)
	}
	return s, nil
}

func (t *Tx) CreateTerritory(ctx context.Context, code, name string) (Territory, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO support_territories (code, name) VALUES (?, ?)`, code, name)
	if err != nil {
		return Territory{}, fmt.Errorf("create territory %s: %w", code, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Territory{}, fmt.Errorf("create territory %s: %w", code, err)
	}
	return Territory{ID: id, Code: code, Name: name}, nil
}

func (t *Tx) TerritoryByCode(ctx context.Context, code string) (Territory, error) {
	var tr Territory
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, code, name FROM support_territories WHERE LOWER(code) = LOWER(?)`, code).
		Scan(&tr.ID, &tr.Code, &tr.Name)
	if err != nil {
		return Territory{}, notFound(err, "territory %q", code)
	}
	return tr, nil
}

// Teams

const teamColumns = `id, name, segment_id, role_id, crm_team_id, ess_number, support_territory_id, description`

func scanTeam(row *sql.Row) (Team, error) {
	var (
		team      Team
		segment   sql.NullInt64
		number    sql.NullString
		territory sql.NullInt64
	)
	err := row.Scan(&team.ID, &team.Name, &segment, &team.RoleID, &team.CRMTeamID, &number, &territory, &team.Description)
	if err != nil {
		return Team{}, err
	}
	team.SegmentID = nullableSegment(segment)
	team.Number = number.String
	team.TerritoryID = nullableInt(territory)
	return team, nil
}

// TeamByName returns the oldest team with the given name.
func (t *Tx) TeamByName(ctx context.Context, name string) (Team, error) {
	team, err := scanTeam(t.tx.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE name = ? ORDER BY id LIMIT 1`, name))
	if err != nil {
		return Team{}, notFound(err, "team %q", name)
	}
	return team, nil
}

func (t *Tx) TeamByNumber(ctx context.Context, number string) (Team, error) {
	team, err := scanTeam(t.tx.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE ess_number = ?`, number))
	if err != nil {
		return Team{}, notFound(err, "team number %s", number)
	}
	return team, nil
}

func (t *Tx) CountTeamsByNumber(ctx context.Context, number string) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM teams WHERE ess_number = ?`, number).Scan(&n); err != nil {
		return 0, fmt.Errorf("count teams %s: %w", number, err)
	}
	return n, nil
}

func (t *Tx) CreateTeam(ctx context.Context, team NewTeam) (Team, error) {
	var number any
	if team.Number != "" {
		number = team.Number
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO teams (name, segment_id, role_id, crm_team_id, ess_number, support_territory_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		team.Name, segmentArg(team.SegmentID), team.RoleID, team.CRMTeamID, number, intArg(team.TerritoryID), team.Description)
	if err != nil {
		return Team{}, fmt.Errorf("create team %q: %w", team.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Team{}, fmt.Errorf("create team %q: %w", team.Name, err)
	}
	return Team{
		ID:          id,
		Name:        team.Name,
		SegmentID:   team.SegmentID,
		RoleID:      team.RoleID,
		CRMTeamID:   team.CRMTeamID,
		Number:      team.Number,
		TerritoryID: team.TerritoryID,
		Description: team.Description,
	}, nil
}

func (t *Tx) UpdateTeam(ctx context.Context, id int64, update TeamUpdate) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE teams SET name = ?, segment_id = ?, support_territory_id = ?, description = ? WHERE id = ?`,
		update.Name, segmentArg(update.SegmentID), intArg(update.TerritoryID), update.Description, id)
	if err != nil {
		return fmt.Errorf("update team %d: %w", id, err)
	}
	return nil
}

// Queue views

func (t *Tx) CreateQueueView(ctx context.Context, view QueueView) (QueueView, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO queue_views (label, name, description, permission_group) VALUES (?, ?, ?, ?)`,
		view.Label, view.Name, view.Description, view.PermissionGroup)
	if err != nil {
		return QueueView{}, fmt.Errorf("create queue view %s: %w", view.Label, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return QueueView{}, fmt.Errorf("create queue view %s: %w", view.Label, err)
	}
	view.ID = id
	return view, nil
}

// AddQueueViewCondition appends a condition with its fields to a view's chain.
func (t *Tx) AddQueueViewCondition(ctx context.Context, viewID int64, label string, order int, fields ...ConditionField) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO queue_view_conditions (queue_view_id, condition_label, sort_order) VALUES (?, ?, ?)`,
		viewID, label, order)
	if err != nil {
		return 0, fmt.Errorf("add %s condition to queue view %d: %w", label, viewID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add %s condition to queue view %d: %w", label, viewID, err)
	}
	for _, field := range fields {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO queue_view_condition_fields (condition_id, value, operator) VALUES (?, ?, ?)`,
			id, field.Value, field.Operator); err != nil {
			return 0, fmt.Errorf("add field to condition %d: %w", id, err)
		}
	}
	return id, nil
}

func (t *Tx) QueueViewByLabel(ctx context.Context, label string) (QueueView, error) {
	var v QueueView
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, label, name, description, permission_group FROM queue_views WHERE label = ?`, label).
		Scan(&v.ID, &v.Label, &v.Name, &v.Description, &v.PermissionGroup)
	if err != nil {
		return QueueView{}, notFound(err, "queue view %s", label)
	}
	return v, nil
}

// QueueViewConditions returns a view's condition chain in order.
func (t *Tx) QueueViewConditions(ctx context.Context, viewID int64) ([]QueueViewCondition, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT c.id, c.condition_label, c.sort_order, f.value, f.operator
		FROM queue_view_conditions c
		LEFT JOIN queue_view_condition_fields f ON f.condition_id = c.id
		WHERE c.queue_view_id = ?
		ORDER BY c.sort_order, f.id`, viewID)
	if err != nil {
		return nil, fmt.Errorf("read conditions of queue view %d: %w", viewID, err)
	}
	defer rows.Close()

	var conditions []QueueViewCondition
	for rows.Next() {
		var (
			c               QueueViewCondition
			value, operator sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Label, &c.Order, &value, &operator); err != nil {
			return nil, fmt.Errorf("scan condition of queue view %d: %w", viewID, err)
		}
		if n := len(conditions); n == 0 || conditions[n-1].ID != c.ID {
			conditions = append(conditions, c)
		}
		if value.Valid {
			last := &conditions[len(conditions)-1]
			last.Fields = append(last.Fields, ConditionField{Value: value.String, Operator: operator.String})
		}
	}
	return conditions, rows.Err()
}
