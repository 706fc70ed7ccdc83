package entitlements

import (
	"strings"
	"time"

	"github.com/ManuelReschke/CalcFox/app/models"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// NormalizePlan maps stored plan values to a known plan, defaulting to free.
func NormalizePlan(plan string) Plan {
	if strings.ToLower(strings.TrimSpace(plan)) == string(PlanPro) {
		return PlanPro
	}
	return PlanFree
}

// IsPro is the single entitlement rule: a pro plan that is active and whose
// validity window has not ended.
func IsPro(plan, status string, endDate *time.Time, now time.Time) bool {
	if NormalizePlan(plan) != PlanPro {
		return false
	}
	if strings.ToLower(strings.TrimSpace(status)) != models.SubscriptionStatusActive {
		return false
	}
	return endDate == nil || now.Before(*endDate)
}

// EffectivePlan returns the plan a user may actually use right now.
func EffectivePlan(plan, status string, endDate *time.Time, now time.Time) Plan {
	if IsPro(plan, status, endDate, now) {
		return PlanPro
	}
	return PlanFree
}

// Snapshot is a read-only projection of a Subscription row.
type Snapshot struct {
	UserID    uint       `json:"user_id"`
	Plan      Plan       `json:"plan"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	IsPro     bool       `json:"is_pro"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// FromSubscription builds a snapshot and derives IsPro at now.
func FromSubscription(sub *models.Subscription, now time.Time) Snapshot {
	if sub == nil {
		return Snapshot{Plan: PlanFree, FetchedAt: now}
	}
	return Snapshot{
		UserID:    sub.UserID,
		Plan:      NormalizePlan(sub.Plan),
		Status:    sub.Status,
		StartDate: sub.StartDate,
		EndDate:   sub.EndDate,
		IsPro:     IsPro(sub.Plan, sub.Status, sub.EndDate, now),
		FetchedAt: now,
	}
}

// ActiveAt re-derives the entitlement for a later instant. A cached snapshot
// stops granting pro once its end date passes.
func (s Snapshot) ActiveAt(now time.Time) bool {
	return IsPro(string(s.Plan), s.Status, s.EndDate, now)
}

// EffectivePlanAt is the plan the snapshot grants at now.
func (s Snapshot) EffectivePlanAt(now time.Time) Plan {
	if s.ActiveAt(now) {
		return PlanPro
	}
	return PlanFree
}

// Limits describes what a plan unlocks in the calculators.
type Limits struct {
	MaxSavedCalculations int  `json:"max_saved_calculations"` // 0 = unlimited
	CanShare             bool `json:"can_share"`
	CanExportPDF         bool `json:"can_export_pdf"`
	CanExportExcel       bool `json:"can_export_excel"`
	ProCalculators       bool `json:"pro_calculators"`
}

// LimitsFor returns the feature limits of a plan.
func LimitsFor(plan Plan) Limits {
	switch plan {
	case PlanPro:
		return Limits{
			MaxSavedCalculations: 0,
			CanShare:             true,
			CanExportPDF:         true,
			CanExportExcel:       true,
			ProCalculators:       true,
		}
	default:
		return Limits{
			MaxSavedCalculations: 5,
			CanShare:             true,
		}
	}
}
