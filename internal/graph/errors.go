package graph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NodeNotFoundError is returned when an operation references a node name
// that is not registered in the graph.
type NodeNotFoundError struct {
	Name string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %q not found", e.Name)
}

// DuplicateNodeError is returned by AddNode when the name is already taken.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q already exists", e.Name)
}

// UnknownInputError is returned when a node declares a dependency on a name
// that does not exist in the graph at the time of the add.
type UnknownInputError struct {
	Node  string
	Input string
}

func (e *UnknownInputError) Error() string {
	return fmt.Sprintf("node %q references unknown input %q", e.Node, e.Input)
}

// CircularDependencyError carries the offending cycle path, in dependency
// order, so callers can report exactly which edge closed the loop.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// NodeInUseError is returned by RemoveNode when other nodes still depend on
// the target and no cascade was requested.
type NodeInUseError struct {
	Node       string
	Dependents []string
}

func (e *NodeInUseError) Error() string {
	return fmt.Sprintf("node %q is still required by %s", e.Node, strings.Join(e.Dependents, ", "))
}

// MissingDataError is returned when a data node has no stored value for the
// requested period.
type MissingDataError struct {
	Node   string
	Period Period
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("node %q has no value for period %q", e.Node, e.Period)
}

// CalculationError wraps any failure while applying a node's rule: formula
// evaluation errors, division by zero, non-numeric results. It always
// carries the node and period where evaluation failed.
type CalculationError struct {
	Node   string
	Period Period
	Reason string
	Err    error
}

func (e *CalculationError) Error() string {
	msg := fmt.Sprintf("calculation failed for node %q, period %q: %s", e.Node, e.Period, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CalculationError) Unwrap() error { return e.Err }

// PeriodError is returned for unknown or malformed period labels.
type PeriodError struct {
	Period Period
	Reason string
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("period %q: %s", e.Period, e.Reason)
}

// ForecastConfigurationError is returned when a forecast node or growth
// model is misconfigured (missing RNG, curve offset out of range, ...).
type ForecastConfigurationError struct {
	Node   string
	Reason string
}

func (e *ForecastConfigurationError) Error() string {
	return fmt.Sprintf("forecast node %q misconfigured: %s", e.Node, e.Reason)
}

// InsufficientHistoryError is returned when a forecast node's historical
// window holds fewer periods than the configured minimum.
type InsufficientHistoryError struct {
	Node string
	Have int
	Want int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("forecast node %q needs at least %d historical periods, have %d", e.Node, e.Want, e.Have)
}

// AdjustmentNotFoundError is returned by Adjustment when no adjustment
// carries the given id. RemoveAdjustment deliberately does not use it.
type AdjustmentNotFoundError struct {
	ID uuid.UUID
}

func (e *AdjustmentNotFoundError) Error() string {
	return fmt.Sprintf("adjustment %s not found", e.ID)
}
