package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	u, err := CreateUser("  alice  ", "Alice@Example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, "alice", u.Name)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, ROLE_USER, u.Role)
	assert.True(t, u.IsActive())
	assert.NotEqual(t, "secret123", u.Password)
	assert.True(t, u.CheckPassword("secret123"))
	assert.False(t, u.CheckPassword("wrong"))
}

func TestCreateUser_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"short name", "al", "alice@example.com", "secret123"},
		{"bad email", "alice", "not-an-email", "secret123"},
		{"short password", "alice", "alice@example.com", "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateUser(tt.username, tt.email, tt.password)
			assert.Error(t, err)
		})
	}
}

func TestNewFreeSubscription(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sub := NewFreeSubscription(7, now)

	assert.Equal(t, uint(7), sub.UserID)
	assert.Equal(t, PlanFree, sub.Plan)
	assert.Equal(t, SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.StartDate)
	assert.Equal(t, now, *sub.StartDate)
	assert.Nil(t, sub.EndDate)
}
