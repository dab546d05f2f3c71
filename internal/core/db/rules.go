// internal/core/db/rules.go
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/solatis/pricekeeper/internal/constraints"
	"github.com/solatis/pricekeeper/internal/types"
)

/*
 * SQL rule store.
 *
 * A rule is one pricing_rules row plus its conditions, actions and
 * seller/site overrides in child tables. Scope sets and embedded constraint
 * documents are JSON text columns; money is decimal text.
 *
 * SaveRule is optimistic: updates carry WHERE version = ? and a miss is
 * reported as ErrConcurrentModification (or ErrRuleNotFound when the row is
 * gone). Every successful write bumps the version, which is also the key of
 * the compiled-rule cache.
 *
 * FindApplicable narrows by status and effective window in SQL and by scope
 * in Go, since scope sets are JSON arrays.
 */

// Store persists pricing rules, their audit trail and the lookup tables
// backing rule conditions.
type Store struct {
	db  *sqlx.DB
	q   *Queries
	now func() time.Time
}

// NewStore loads the named queries and returns a store over db.
func NewStore(db *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(db)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, q: q, now: time.Now}, nil
}

type ruleRow struct {
	RuleID            string              `db:"rule_id"`
	Name              string              `db:"name"`
	Description       string              `db:"description"`
	RuleType          string              `db:"rule_type"`
	Status            string              `db:"status"`
	Priority          int                 `db:"priority"`
	SellerIDs         string              `db:"seller_ids"`
	SiteIDs           string              `db:"site_ids"`
	CategoryIDs       string              `db:"category_ids"`
	BrandIDs          string              `db:"brand_ids"`
	EffectiveFrom     sql.NullString      `db:"effective_from"`
	EffectiveTo       sql.NullString      `db:"effective_to"`
	MinimumPrice      decimal.NullDecimal `db:"minimum_price"`
	MaximumPrice      decimal.NullDecimal `db:"maximum_price"`
	MinimumMargin     decimal.NullDecimal `db:"minimum_margin"`
	MaximumMargin     decimal.NullDecimal `db:"maximum_margin"`
	PriceConstraints  sql.NullString      `db:"price_constraints"`
	MarginConstraints sql.NullString      `db:"margin_constraints"`
	TimeConstraints   sql.NullString      `db:"time_constraints"`
	Version           int64               `db:"version"`
	CreatedAt         string              `db:"created_at"`
	UpdatedAt         string              `db:"updated_at"`
	CreatedBy         string              `db:"created_by"`
	UpdatedBy         string              `db:"updated_by"`
}

type conditionRow struct {
	ID        string         `db:"condition_id"`
	RuleID    string         `db:"rule_id"`
	Type      string         `db:"condition_type"`
	Attribute string         `db:"attribute"`
	Operator  string         `db:"operator"`
	Value     sql.NullString `db:"value"`
	Sequence  int            `db:"sequence"`
	Enabled   bool           `db:"enabled"`
}

type actionRow struct {
	ID         string         `db:"action_id"`
	RuleID     string         `db:"rule_id"`
	Type       string         `db:"action_type"`
	Parameters sql.NullString `db:"parameters"`
	Sequence   int            `db:"sequence"`
	Enabled    bool           `db:"enabled"`
}

type configRow struct {
	ID            string              `db:"config_id"`
	RuleID        string              `db:"rule_id"`
	SellerID      string              `db:"seller_id"`
	SiteID        string              `db:"site_id"`
	MinimumPrice  decimal.NullDecimal `db:"minimum_price"`
	MaximumPrice  decimal.NullDecimal `db:"maximum_price"`
	MinimumMargin decimal.NullDecimal `db:"minimum_margin"`
	MaximumMargin decimal.NullDecimal `db:"maximum_margin"`
	CategoryIDs   string              `db:"category_ids"`
	BrandIDs      string              `db:"brand_ids"`
	Active        bool                `db:"active"`
}

// GetRule loads one rule with its children.
func (s *Store) GetRule(ctx context.Context, id types.RuleID) (*types.PricingRule, error) {
	var row ruleRow
	if err := s.q.Get(ctx, "get-rule", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
		}
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	rules, err := s.hydrate(ctx, s.q, []ruleRow{row})
	if err != nil {
		return nil, err
	}
	return rules[0], nil
}

// FindApplicable returns ACTIVE rules effective at q.At whose scope matches q.
func (s *Store) FindApplicable(ctx context.Context, q types.ApplicabilityQuery) ([]*types.PricingRule, error) {
	at := formatTime(q.At)
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-active-rules-at", &rows, at, at); err != nil {
		return nil, fmt.Errorf("find applicable rules: %w", err)
	}
	rules, err := s.hydrate(ctx, s.q, rows)
	if err != nil {
		return nil, err
	}
	out := rules[:0]
	for _, r := range rules {
		if r.AppliesTo(q.SellerID, q.SiteID, q.CategoryID, q.BrandID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListByStatus returns every rule in one of statuses, highest priority first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...types.RuleStatus) ([]*types.PricingRule, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-rules-by-status", &rows, names); err != nil {
		return nil, fmt.Errorf("list rules by status: %w", err)
	}
	return s.hydrate(ctx, s.q, rows)
}

// SaveRule inserts a new rule (Version 0) or updates an existing one under
// an optimistic version check. On success r carries the stored version,
// ids, status and timestamps.
//
// Status is owned by the lifecycle machine: new rules are always stored as
// DRAFT and updates never touch the stored status.
func (s *Store) SaveRule(ctx context.Context, r *types.PricingRule, actor string) error {
	saved := r.Clone()
	now := s.now().UTC()
	saved.UpdatedAt = now
	saved.UpdatedBy = actor

	err := s.inTx(ctx, func(q *Queries) error {
		if saved.Version == 0 {
			if saved.ID == "" {
				saved.ID = types.NewRuleID()
			}
			saved.Status = types.StatusDraft
			saved.CreatedAt = now
			saved.CreatedBy = actor
			saved.Version = 1
			if err := s.insertRule(ctx, q, saved); err != nil {
				return err
			}
		} else {
			if err := s.updateRule(ctx, q, saved); err != nil {
				return err
			}
			var row ruleRow
			if err := q.Get(ctx, "get-rule", &row, string(saved.ID)); err != nil {
				return fmt.Errorf("reload rule %s: %w", saved.ID, err)
			}
			saved.Status = types.RuleStatus(row.Status)
			saved.Version = row.Version
		}
		return s.replaceChildren(ctx, q, saved)
	})
	if err != nil {
		return err
	}
	*r = *saved
	return nil
}

func (s *Store) insertRule(ctx context.Context, q *Queries, r *types.PricingRule) error {
	cols, err := ruleColumns(r)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, "insert-rule",
		string(r.ID), r.Name, r.Description, string(r.Type), string(r.Status), r.Priority,
		cols.sellers, cols.sites, cols.categories, cols.brands,
		cols.from, cols.to,
		nullDecimal(r.MinimumPrice), nullDecimal(r.MaximumPrice),
		nullDecimal(r.MinimumMargin), nullDecimal(r.MaximumMargin),
		cols.price, cols.margin, cols.time,
		r.Version, formatTime(r.CreatedAt), formatTime(r.UpdatedAt), r.CreatedBy, r.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *Store) updateRule(ctx context.Context, q *Queries, r *types.PricingRule) error {
	cols, err := ruleColumns(r)
	if err != nil {
		return err
	}
	res, err := q.Exec(ctx, "update-rule",
		r.Name, r.Description, string(r.Type), r.Priority,
		cols.sellers, cols.sites, cols.categories, cols.brands,
		cols.from, cols.to,
		nullDecimal(r.MinimumPrice), nullDecimal(r.MaximumPrice),
		nullDecimal(r.MinimumMargin), nullDecimal(r.MaximumMargin),
		cols.price, cols.margin, cols.time,
		formatTime(r.UpdatedAt), r.UpdatedBy,
		string(r.ID), r.Version,
	)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	return s.expectOneRow(ctx, q, res, r.ID)
}

// expectOneRow turns a zero-row conditional update into the matching sentinel.
func (s *Store) expectOneRow(ctx context.Context, q *Queries, res sql.Result, id types.RuleID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var count int
	if err := q.Get(ctx, "count-rule", &count, string(id)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	return fmt.Errorf("%w: %s", types.ErrConcurrentModification, id)
}

func (s *Store) replaceChildren(ctx context.Context, q *Queries, r *types.PricingRule) error {
	id := string(r.ID)
	for _, name := range []string{"delete-conditions", "delete-actions", "delete-configs"} {
		if _, err := q.Exec(ctx, name, id); err != nil {
			return fmt.Errorf("%s %s: %w", name, id, err)
		}
	}

	for i := range r.Conditions {
		c := &r.Conditions[i]
		if c.ID == "" {
			c.ID = types.NewID()
		}
		if _, err := q.Exec(ctx, "insert-condition",
			c.ID, id, string(c.Type), c.Attribute, string(c.Operator), nullJSON(c.Value), c.Sequence, c.Enabled,
		); err != nil {
			return fmt.Errorf("insert condition %d of %s: %w", c.Sequence, id, err)
		}
	}
	for i := range r.Actions {
		a := &r.Actions[i]
		if a.ID == "" {
			a.ID = types.NewID()
		}
		if _, err := q.Exec(ctx, "insert-action",
			a.ID, id, string(a.Type), nullJSON(a.Parameters), a.Sequence, a.Enabled,
		); err != nil {
			return fmt.Errorf("insert action %d of %s: %w", a.Sequence, id, err)
		}
	}
	for i := range r.SellerSiteConfigs {
		c := &r.SellerSiteConfigs[i]
		if c.ID == "" {
			c.ID = types.NewID()
		}
		if _, err := q.Exec(ctx, "insert-config",
			c.ID, id, c.SellerID, c.SiteID,
			nullDecimal(c.MinimumPrice), nullDecimal(c.MaximumPrice),
			nullDecimal(c.MinimumMargin), nullDecimal(c.MaximumMargin),
			encodeIDs(c.CategoryIDs), encodeIDs(c.BrandIDs), c.Active,
		); err != nil {
			return fmt.Errorf("insert seller/site config of %s: %w", id, err)
		}
	}
	return nil
}

// hydrate converts rule rows and attaches their children with one query per child table.
func (s *Store) hydrate(ctx context.Context, q *Queries, rows []ruleRow) ([]*types.PricingRule, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	byID := make(map[string]*types.PricingRule, len(rows))
	out := make([]*types.PricingRule, len(rows))
	for i, row := range rows {
		r, err := row.toRule()
		if err != nil {
			return nil, err
		}
		ids[i] = row.RuleID
		byID[row.RuleID] = r
		out[i] = r
	}

	var conds []conditionRow
	if err := q.Select(ctx, "list-conditions-for-rules", &conds, ids); err != nil {
		return nil, fmt.Errorf("load conditions: %w", err)
	}
	for _, c := range conds {
		r := byID[c.RuleID]
		r.Conditions = append(r.Conditions, types.RuleCondition{
			ID:        c.ID,
			Type:      types.ConditionType(c.Type),
			Attribute: c.Attribute,
			Operator:  types.Operator(c.Operator),
			Value:     rawJSON(c.Value),
			Sequence:  c.Sequence,
			Enabled:   c.Enabled,
		})
	}

	var acts []actionRow
	if err := q.Select(ctx, "list-actions-for-rules", &acts, ids); err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	for _, a := range acts {
		r := byID[a.RuleID]
		r.Actions = append(r.Actions, types.RuleAction{
			ID:         a.ID,
			Type:       types.ActionType(a.Type),
			Parameters: rawJSON(a.Parameters),
			Sequence:   a.Sequence,
			Enabled:    a.Enabled,
		})
	}

	var cfgs []configRow
	if err := q.Select(ctx, "list-configs-for-rules", &cfgs, ids); err != nil {
		return nil, fmt.Errorf("load seller/site configs: %w", err)
	}
	for _, c := range cfgs {
		cfg := types.SellerSiteConfig{
			ID:            c.ID,
			SellerID:      c.SellerID,
			SiteID:        c.SiteID,
			MinimumPrice:  decimalPtr(c.MinimumPrice),
			MaximumPrice:  decimalPtr(c.MaximumPrice),
			MinimumMargin: decimalPtr(c.MinimumMargin),
			MaximumMargin: decimalPtr(c.MaximumMargin),
			Active:        c.Active,
		}
		var err error
		if cfg.CategoryIDs, err = decodeIDs(c.CategoryIDs); err != nil {
			return nil, err
		}
		if cfg.BrandIDs, err = decodeIDs(c.BrandIDs); err != nil {
			return nil, err
		}
		r := byID[c.RuleID]
		r.SellerSiteConfigs = append(r.SellerSiteConfigs, cfg)
	}

	return out, nil
}

func (row ruleRow) toRule() (*types.PricingRule, error) {
	r := &types.PricingRule{
		ID:            types.RuleID(row.RuleID),
		Name:          row.Name,
		Description:   row.Description,
		Type:          types.RuleType(row.RuleType),
		Status:        types.RuleStatus(row.Status),
		Priority:      row.Priority,
		MinimumPrice:  decimalPtr(row.MinimumPrice),
		MaximumPrice:  decimalPtr(row.MaximumPrice),
		MinimumMargin: decimalPtr(row.MinimumMargin),
		MaximumMargin: decimalPtr(row.MaximumMargin),
		Version:       row.Version,
		CreatedBy:     row.CreatedBy,
		UpdatedBy:     row.UpdatedBy,
	}

	var err error
	for _, f := range []struct {
		dst *[]string
		src string
	}{
		{&r.SellerIDs, row.SellerIDs},
		{&r.SiteIDs, row.SiteIDs},
		{&r.CategoryIDs, row.CategoryIDs},
		{&r.BrandIDs, row.BrandIDs},
	} {
		if *f.dst, err = decodeIDs(f.src); err != nil {
			return nil, fmt.Errorf("rule %s: %w", row.RuleID, err)
		}
	}

	if r.EffectiveFrom, err = nullTime(row.EffectiveFrom); err != nil {
		return nil, err
	}
	if r.EffectiveTo, err = nullTime(row.EffectiveTo); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return nil, err
	}

	if row.PriceConstraints.Valid {
		r.PriceConstraints = &constraints.PriceConstraints{}
		if err := json.Unmarshal([]byte(row.PriceConstraints.String), r.PriceConstraints); err != nil {
			return nil, fmt.Errorf("rule %s price_constraints: %w", row.RuleID, err)
		}
	}
	if row.MarginConstraints.Valid {
		r.MarginConstraints = &constraints.MarginConstraints{}
		if err := json.Unmarshal([]byte(row.MarginConstraints.String), r.MarginConstraints); err != nil {
			return nil, fmt.Errorf("rule %s margin_constraints: %w", row.RuleID, err)
		}
	}
	if row.TimeConstraints.Valid {
		r.TimeConstraints = &constraints.TimeConstraints{}
		if err := json.Unmarshal([]byte(row.TimeConstraints.String), r.TimeConstraints); err != nil {
			return nil, fmt.Errorf("rule %s time_constraints: %w", row.RuleID, err)
		}
	}
	return r, nil
}

// ruleEncoded holds the text encodings of a rule's non-scalar columns.
type ruleEncoded struct {
	sellers, sites, categories, brands string
	from, to                           sql.NullString
	price, margin, time                sql.NullString
}

func ruleColumns(r *types.PricingRule) (ruleEncoded, error) {
	enc := ruleEncoded{
		sellers:    encodeIDs(r.SellerIDs),
		sites:      encodeIDs(r.SiteIDs),
		categories: encodeIDs(r.CategoryIDs),
		brands:     encodeIDs(r.BrandIDs),
	}
	if r.EffectiveFrom != nil {
		enc.from = sql.NullString{String: formatTime(*r.EffectiveFrom), Valid: true}
	}
	if r.EffectiveTo != nil {
		enc.to = sql.NullString{String: formatTime(*r.EffectiveTo), Valid: true}
	}

	var err error
	if r.PriceConstraints != nil {
		if enc.price, err = jsonColumn(r.PriceConstraints); err != nil {
			return enc, fmt.Errorf("rule %s price_constraints: %w", r.ID, err)
		}
	}
	if r.MarginConstraints != nil {
		if enc.margin, err = jsonColumn(r.MarginConstraints); err != nil {
			return enc, fmt.Errorf("rule %s margin_constraints: %w", r.ID, err)
		}
	}
	if r.TimeConstraints != nil {
		if enc.time, err = jsonColumn(r.TimeConstraints); err != nil {
			return enc, fmt.Errorf("rule %s time_constraints: %w", r.ID, err)
		}
	}
	return enc, nil
}

func jsonColumn(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func encodeIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("invalid id set %q: %w", s, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

func nullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func nullJSON(raw types.RawParams) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(s sql.NullString) types.RawParams {
	if !s.Valid || s.String == "" {
		return nil
	}
	return types.RawParams(s.String)
}
