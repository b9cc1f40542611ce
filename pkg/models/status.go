package models

import "strings"

// ChargeStatus is the per-case status of a charge
type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusDismissed ChargeStatus = "dismissed"
	ChargeStatusAcquitted ChargeStatus = "acquitted"
	ChargeStatusConvicted ChargeStatus = "convicted"
)

var chargeStatusRank = map[ChargeStatus]int{
	ChargeStatusPending:   1,
	ChargeStatusDismissed: 2,
	ChargeStatusAcquitted: 3,
	ChargeStatusConvicted: 4,
}

// ParseChargeStatus lower-cases and trims a reported status
func ParseChargeStatus(s string) ChargeStatus {
	return ChargeStatus(strings.ToLower(strings.TrimSpace(s)))
}

// Rank orders charge statuses; unknown statuses rank 0
func (s ChargeStatus) Rank() int {
	return chargeStatusRank[s]
}

// Advances reports whether moving from current to s is a promotion
func (s ChargeStatus) Advances(current ChargeStatus) bool {
	if s == "" {
		return false
	}
	if current == "" {
		return true
	}
	return s.Rank() > current.Rank()
}

// Case statuses in advancement order
const (
	CaseStatusOpen          = "open"
	CaseStatusInvestigation = "investigation"
	CaseStatusInTrial       = "in_trial"
	CaseStatusTransferred   = "transferred"
	CaseStatusJudgment      = "judgment"
	CaseStatusClosed        = "closed"
	CaseStatusConcluded     = "concluded"
	CaseStatusUnknown       = "unknown"
)

var caseStatusRank = map[string]int{
	CaseStatusOpen:          1,
	CaseStatusInvestigation: 2,
	CaseStatusInTrial:       3,
	CaseStatusTransferred:   4,
	CaseStatusJudgment:      5,
	CaseStatusClosed:        6,
	CaseStatusConcluded:     7,
}

// CaseStatusRank orders case statuses; unknown statuses rank 0
func CaseStatusRank(status string) int {
	return caseStatusRank[strings.ToLower(strings.TrimSpace(status))]
}

// CaseStatusAdvances reports whether next should replace current
func CaseStatusAdvances(current, next string) bool {
	next = strings.TrimSpace(next)
	if next == "" {
		return false
	}
	if strings.TrimSpace(current) == "" {
		return true
	}
	return CaseStatusRank(next) > CaseStatusRank(current)
}

// IsAdvancedStatus reports whether a case has moved past open
func IsAdvancedStatus(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return s != "" && s != CaseStatusOpen && s != CaseStatusUnknown
}
