package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/CalcFox/app/models"
)

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: "pro", want: PlanPro},
		{in: " PRO ", want: PlanPro},
		{in: "premium", want: PlanFree},
		{in: "", want: PlanFree},
	}

	for _, tt := range tests {
		if got := NormalizePlan(tt.in); got != tt.want {
			t.Fatalf("NormalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPro(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name   string
		plan   string
		status string
		end    *time.Time
		want   bool
	}{
		{"pro active open ended", "pro", "active", nil, true},
		{"pro active future end", "pro", "active", &future, true},
		{"pro active past end", "pro", "active", &past, false},
		{"pro active ends now", "pro", "active", &now, false},
		{"pro inactive", "pro", "inactive", &future, false},
		{"pro expired", "pro", "expired", nil, false},
		{"free active", "free", "active", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPro(tt.plan, tt.status, tt.end, now))
		})
	}
}

func TestFromSubscription(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 1, 0)
	sub := &models.Subscription{
		UserID:  3,
		Plan:    models.PlanPro,
		Status:  models.SubscriptionStatusActive,
		EndDate: &end,
	}

	snap := FromSubscription(sub, now)
	assert.Equal(t, uint(3), snap.UserID)
	assert.Equal(t, PlanPro, snap.Plan)
	assert.True(t, snap.IsPro)
	assert.Equal(t, now, snap.FetchedAt)

	assert.True(t, snap.ActiveAt(end.Add(-time.Second)))
	assert.False(t, snap.ActiveAt(end.Add(time.Second)))
	assert.Equal(t, PlanFree, snap.EffectivePlanAt(end.Add(time.Second)))

	empty := FromSubscription(nil, now)
	assert.Equal(t, PlanFree, empty.Plan)
	assert.False(t, empty.IsPro)
}

func TestLimitsFor(t *testing.T) {
	free := LimitsFor(PlanFree)
	pro := LimitsFor(PlanPro)

	assert.False(t, free.CanExportPDF)
	assert.False(t, free.CanExportExcel)
	assert.Equal(t, 5, free.MaxSavedCalculations)
	assert.True(t, pro.CanExportPDF)
	assert.True(t, pro.CanExportExcel)
	assert.Equal(t, 0, pro.MaxSavedCalculations)
}
