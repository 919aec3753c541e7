package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Case Status
// ============================================================================

// CaseStatus represents the lifecycle state of an investigation case.
type CaseStatus int

const (
	CaseStatusOpen     CaseStatus = 0
	CaseStatusResolved CaseStatus = 1
	CaseStatusInvalid  CaseStatus = 2
)

// String returns the canonical lowercase name of the status.
func (s CaseStatus) String() string {
	switch s {
	case CaseStatusOpen:
		return "open"
	case CaseStatusResolved:
		return "resolved"
	case CaseStatusInvalid:
		return "invalid"
	}
	return "unknown"
}

// ValidCaseStatuses contains all valid status values.
var ValidCaseStatuses = []CaseStatus{
	CaseStatusOpen,
	CaseStatusResolved,
	CaseStatusInvalid,
}

// IsValidCaseStatus checks if the given status is valid.
func IsValidCaseStatus(s CaseStatus) bool {
	for _, v := range ValidCaseStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseCaseStatus maps a status name to its CaseStatus, case-insensitively.
// "closed" is accepted as an alias of "resolved". An unrecognized name
// returns ok=false; whether that is a user error or a default is the
// caller's decision.
func ParseCaseStatus(name string) (CaseStatus, bool) {
	switch strings.ToLower(name) {
	case "open":
		return CaseStatusOpen, true
	case "resolved", "closed":
		return CaseStatusResolved, true
	case "invalid":
		return CaseStatusInvalid, true
	}
	return 0, false
}

// ============================================================================
// User Info Flags
// ============================================================================

// UserInfoFlags records how and why a user is attached to a case. Flags are
// OR-combined when a user is attached again for a new reason; bits are never
// cleared.
type UserInfoFlags uint32

const (
	// UserAddedBySignal marks a user attached because a signal matched them.
	UserAddedBySignal UserInfoFlags = 1 << iota
	// UserAddedByMerge marks a user attached when their batch merged into an
	// existing case.
	UserAddedByMerge
	// UserAddedManually marks a user attached by an investigator.
	UserAddedManually
)

// Combine returns the union of the two flag sets.
func (f UserInfoFlags) Combine(other UserInfoFlags) UserInfoFlags {
	return f | other
}

// Has reports whether all bits of other are set.
func (f UserInfoFlags) Has(other UserInfoFlags) bool {
	return f&other == other
}

// ============================================================================
// Case Model
// ============================================================================

// UserIdentity is a stable reference to a wiki user.
type UserIdentity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CaseUser is a user as attached to a case.
type CaseUser struct {
	User  UserIdentity  `json:"user"`
	Flags UserInfoFlags `json:"flags"`
}

// CaseSignal is a recorded (signal name, value) pair on a case, with
// optional provenance of the row that triggered the match.
type CaseSignal struct {
	Name         string `json:"name"`
	Value        string `json:"value"`
	TriggerID    int64  `json:"trigger_id,omitempty"`
	TriggerTable string `json:"trigger_table,omitempty"`
}

// Case groups users suspected of coordinated abuse. Cases are created Open,
// may move between Open, Resolved and Invalid in any direction, and are
// never physically deleted; Invalid is a soft-delete state.
type Case struct {
	ID           int64      `json:"id"`
	Reference    uuid.UUID  `json:"reference"`
	Status       CaseStatus `json:"status"`
	StatusReason string     `json:"status_reason"`

	Users   []CaseUser   `json:"users,omitempty"`
	Signals []CaseSignal `json:"signals,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the case is still actionable.
func (c *Case) IsOpen() bool {
	return c.Status == CaseStatusOpen
}

// HasUser reports whether the given user id is attached to the case.
func (c *Case) HasUser(userID int64) bool {
	for _, u := range c.Users {
		if u.User.ID == userID {
			return true
		}
	}
	return false
}
