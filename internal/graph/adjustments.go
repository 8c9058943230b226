package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdjustmentKind determines how an adjustment folds into the running value.
type AdjustmentKind string

const (
	// Additive adds the adjustment value to the running value.
	Additive AdjustmentKind = "ADDITIVE"
	// Multiplicative scales the running value by the adjustment value.
	Multiplicative AdjustmentKind = "MULTIPLICATIVE"
	// Replacement discards the running value and restarts the fold from the
	// adjustment value. Later adjustments still apply on top.
	Replacement AdjustmentKind = "REPLACEMENT"
)

func validKind(k AdjustmentKind) bool {
	switch k {
	case Additive, Multiplicative, Replacement:
		return true
	}
	return false
}

// DefaultScenario is the scenario applied when none is specified, both at
// creation and at filter time.
const DefaultScenario = "default"

// Adjustment is a discretionary correction applied on top of a computed
// value without mutating the underlying node. Immutable once created,
// except for removal by id.
type Adjustment struct {
	ID        uuid.UUID
	Node      string
	Period    Period
	Value     float64
	Kind      AdjustmentKind
	Reason    string
	Scenario  string
	Tags      []string
	Priority  int
	CreatedAt time.Time

	// seq breaks priority ties: earlier creations apply first.
	seq uint64
}

func (a Adjustment) hasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AdjustmentOption customizes an adjustment at creation time.
type AdjustmentOption func(*Adjustment)

// WithScenario assigns the adjustment to a named what-if scenario.
func WithScenario(scenario string) AdjustmentOption {
	return func(a *Adjustment) { a.Scenario = scenario }
}

// WithTags attaches free-form tags for later filtering.
func WithTags(tags ...string) AdjustmentOption {
	return func(a *Adjustment) { a.Tags = append(a.Tags, tags...) }
}

// WithPriority sets the fold priority; lower priorities apply first.
func WithPriority(priority int) AdjustmentOption {
	return func(a *Adjustment) { a.Priority = priority }
}

// AdjustmentFilter selects which adjustments participate in a read. The
// zero value matches everything except non-default scenarios; a nil
// *AdjustmentFilter matches the default scenario only.
type AdjustmentFilter struct {
	// Scenarios includes only these scenarios. Empty means the default
	// scenario, unless AllScenarios is set.
	Scenarios []string
	// ExcludeScenarios rejects these scenarios.
	ExcludeScenarios []string
	// AllScenarios lifts the default-scenario restriction.
	AllScenarios bool

	// Tags includes adjustments carrying at least one of these tags
	// (set-intersection), or all of them when RequireAllTags is set.
	Tags           []string
	ExcludeTags    []string
	RequireAllTags bool

	// Kinds includes only these kinds; ExcludeKinds rejects.
	Kinds        []AdjustmentKind
	ExcludeKinds []AdjustmentKind

	// Periods restricts matching to these periods.
	Periods []Period
}

// TagFilter is the shorthand for "tag is in this set".
func TagFilter(tags ...string) *AdjustmentFilter {
	return &AdjustmentFilter{Tags: tags}
}

func (f *AdjustmentFilter) matches(a Adjustment) bool {
	if f == nil {
		return a.Scenario == DefaultScenario
	}

	if len(f.Scenarios) > 0 {
		if !containsString(f.Scenarios, a.Scenario) {
			return false
		}
	} else if !f.AllScenarios && a.Scenario != DefaultScenario {
		return false
	}
	if containsString(f.ExcludeScenarios, a.Scenario) {
		return false
	}

	if len(f.Tags) > 0 {
		if f.RequireAllTags {
			for _, tag := range f.Tags {
				if !a.hasTag(tag) {
					return false
				}
			}
		} else {
			any := false
			for _, tag := range f.Tags {
				if a.hasTag(tag) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
	}
	for _, tag := range f.ExcludeTags {
		if a.hasTag(tag) {
			return false
		}
	}

	if len(f.Kinds) > 0 && !containsKind(f.Kinds, a.Kind) {
		return false
	}
	if containsKind(f.ExcludeKinds, a.Kind) {
		return false
	}

	if len(f.Periods) > 0 {
		found := false
		for _, p := range f.Periods {
			if p == a.Period {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func containsString(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

func containsKind(ks []AdjustmentKind, k AdjustmentKind) bool {
	for _, kk := range ks {
		if kk == k {
			return true
		}
	}
	return false
}

// adjustmentStore indexes adjustments by (node, period) and by id.
type adjustmentStore struct {
	byKey map[string]map[Period][]Adjustment
	byID  map[uuid.UUID]Adjustment
	seq   uint64
}

func newAdjustmentStore() *adjustmentStore {
	return &adjustmentStore{
		byKey: make(map[string]map[Period][]Adjustment),
		byID:  make(map[uuid.UUID]Adjustment),
	}
}

func (s *adjustmentStore) add(a Adjustment) {
	s.seq++
	a.seq = s.seq
	periods, ok := s.byKey[a.Node]
	if !ok {
		periods = make(map[Period][]Adjustment)
		s.byKey[a.Node] = periods
	}
	periods[a.Period] = append(periods[a.Period], a)
	s.byID[a.ID] = a
}

func (s *adjustmentStore) remove(id uuid.UUID) bool {
	a, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	list := s.byKey[a.Node][a.Period]
	for i := range list {
		if list[i].ID == id {
			s.byKey[a.Node][a.Period] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.byKey[a.Node][a.Period]) == 0 {
		delete(s.byKey[a.Node], a.Period)
		if len(s.byKey[a.Node]) == 0 {
			delete(s.byKey, a.Node)
		}
	}
	return true
}

func (s *adjustmentStore) forKey(node string, p Period) []Adjustment {
	return append([]Adjustment(nil), s.byKey[node][p]...)
}

func (s *adjustmentStore) all() []Adjustment {
	out := make([]Adjustment, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// AddAdjustment records a discretionary correction for (node, period) and
// returns its generated id. The calculation cache is never touched:
// adjustments are folded in at read time only.
func (g *Graph) AddAdjustment(node string, p Period, value float64, kind AdjustmentKind, reason string, opts ...AdjustmentOption) (uuid.UUID, error) {
	if !validKind(kind) {
		return uuid.Nil, fmt.Errorf("unknown adjustment kind %q", kind)
	}
	if p == "" {
		return uuid.Nil, &PeriodError{Period: p, Reason: "empty period label"}
	}

	a := Adjustment{
		ID:        uuid.New(),
		Node:      node,
		Period:    p,
		Value:     value,
		Kind:      kind,
		Reason:    reason,
		Scenario:  DefaultScenario,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	sort.Strings(a.Tags)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.adjustments.add(a)
	g.log.Debug("adjustment added",
		zap.String("node", node),
		zap.String("period", string(p)),
		zap.String("kind", string(kind)),
		zap.String("scenario", a.Scenario),
		zap.Int("priority", a.Priority),
	)
	return a.ID, nil
}

// RemoveAdjustment deletes an adjustment by id. Removing an unknown id is a
// no-op.
func (g *Graph) RemoveAdjustment(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.adjustments.remove(id) {
		g.log.Debug("adjustment removed", zap.String("id", id.String()))
	}
}

// Adjustment looks up a single adjustment by id, for audit drill-down and
// removal confirmation.
func (g *Graph) Adjustment(id uuid.UUID) (Adjustment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.adjustments.byID[id]
	if !ok {
		return Adjustment{}, &AdjustmentNotFoundError{ID: id}
	}
	return a, nil
}

// Adjustments returns every adjustment recorded for (node, period),
// unfiltered, in creation order.
func (g *Graph) Adjustments(node string, p Period) []Adjustment {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.adjustments.forKey(node, p)
}

// AllAdjustments returns every adjustment in the graph, in creation order,
// for audit and export.
func (g *Graph) AllAdjustments() []Adjustment {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.adjustments.all()
}

// WasAdjusted reports whether AdjustedValue would fold in at least one
// adjustment for (node, period) under the given filter.
func (g *Graph) WasAdjusted(node string, p Period, f *AdjustmentFilter) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, a := range g.adjustments.forKey(node, p) {
		if f.matches(a) {
			return true
		}
	}
	return false
}

// AdjustedValue computes the node's base value and folds matching
// adjustments over it in priority order (ascending; creation order breaks
// ties). The folded result is never cached: adjustments are cheap and
// filters vary per call.
func (g *Graph) AdjustedValue(node string, p Period, f *AdjustmentFilter) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	base, err := g.calculate(node, p)
	if err != nil {
		return 0, err
	}

	selected := make([]Adjustment, 0, 4)
	for _, a := range g.adjustments.forKey(node, p) {
		if f.matches(a) {
			selected = append(selected, a)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Priority != selected[j].Priority {
			return selected[i].Priority < selected[j].Priority
		}
		return selected[i].seq < selected[j].seq
	})

	running := base
	for _, a := range selected {
		switch a.Kind {
		case Additive:
			running += a.Value
		case Multiplicative:
			running *= a.Value
		case Replacement:
			running = a.Value
		}
	}
	return running, nil
}
