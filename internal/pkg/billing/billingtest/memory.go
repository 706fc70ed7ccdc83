// Package billingtest provides an in-memory billing.Repository and webhook
// payload builders for tests.
package billingtest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/app/models"
	"github.com/ManuelReschke/CalcFox/internal/pkg/billing"
)

// MemoryRepository implements billing.Repository on maps. The Fail* fields
// inject errors into the matching operation.
type MemoryRepository struct {
	mu            sync.Mutex
	subscriptions map[uint]models.Subscription
	profiles      map[uint]models.Profile
	events        map[string]models.BillingWebhookEvent
	orders        []models.BillingOrder
	nextID        uint

	FailActivate error
	FailProfile  error
	FailRecord   error
	FailOrder    error
	FailRead     error
}

var _ billing.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		subscriptions: map[uint]models.Subscription{},
		profiles:      map[uint]models.Profile{},
		events:        map[string]models.BillingWebhookEvent{},
	}
}

func (m *MemoryRepository) id() uint {
	m.nextID++
	return m.nextID
}

// SeedFreeUser creates the rows an account gets at registration.
func (m *MemoryRepository) SeedFreeUser(userID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := models.NewFreeSubscription(userID, time.Now())
	sub.ID = m.id()
	m.subscriptions[userID] = *sub
	m.profiles[userID] = models.Profile{ID: m.id(), UserID: userID, PlanType: models.PlanFree}
}

// PutSubscription overwrites a row directly, as an operator would.
func (m *MemoryRepository) PutSubscription(sub models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == 0 {
		sub.ID = m.id()
	}
	m.subscriptions[sub.UserID] = sub
}

// PutProfile overwrites a profile row directly.
func (m *MemoryRepository) PutProfile(p models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.profiles[p.UserID] = p
}

func (m *MemoryRepository) Subscription(userID uint) (models.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[userID]
	return sub, ok
}

func (m *MemoryRepository) Profile(userID uint) (models.Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	return p, ok
}

func (m *MemoryRepository) Event(provider, key string) (models.BillingWebhookEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[provider+"|"+key]
	return ev, ok
}

func (m *MemoryRepository) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *MemoryRepository) Orders() []models.BillingOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.BillingOrder(nil), m.orders...)
}

func (m *MemoryRepository) GetSubscriptionByUser(_ context.Context, userID uint) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRead != nil {
		return nil, m.FailRead
	}
	sub, ok := m.subscriptions[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (m *MemoryRepository) ActivateSubscription(_ context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailActivate != nil {
		return m.FailActivate
	}
	now := time.Now()
	existing, ok := m.subscriptions[sub.UserID]
	if ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.ID = m.id()
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m.subscriptions[sub.UserID] = *sub
	return nil
}

func (m *MemoryRepository) ExpireSubscriptions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sub := range m.subscriptions {
		if sub.Plan != models.PlanPro || sub.Status != models.SubscriptionStatusActive || sub.EndDate == nil {
			continue
		}
		if sub.EndDate.After(now) {
			continue
		}
		sub.Status = models.SubscriptionStatusExpired
		sub.UpdatedAt = now
		m.subscriptions[id] = sub
		n++
	}
	return n, nil
}

func (m *MemoryRepository) UpdateProfilePlanType(_ context.Context, userID uint, planType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailProfile != nil {
		return m.FailProfile
	}
	p, ok := m.profiles[userID]
	if !ok {
		p = models.Profile{ID: m.id(), UserID: userID}
	}
	p.PlanType = planType
	m.profiles[userID] = p
	return nil
}

func (m *MemoryRepository) ListProfileMirrors(_ context.Context, afterUserID uint, limit int) ([]billing.ProfileMirror, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint, 0, len(m.profiles))
	for id := range m.profiles {
		if id > afterUserID {
			if _, ok := m.subscriptions[id]; ok {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]billing.ProfileMirror, 0, len(ids))
	for _, id := range ids {
		sub := m.subscriptions[id]
		out = append(out, billing.ProfileMirror{
			UserID:   id,
			PlanType: m.profiles[id].PlanType,
			Plan:     sub.Plan,
			Status:   sub.Status,
			EndDate:  sub.EndDate,
		})
	}
	return out, nil
}

func (m *MemoryRepository) RecordWebhookDelivery(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRecord != nil {
		return false, nil, m.FailRecord
	}
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := m.events[key]; ok {
		stored.DeliveryCount++
		stored.UpdatedAt = time.Now()
		m.events[key] = stored
		return false, &stored, nil
	}
	stored := *event
	stored.ID = m.id()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.events[key] = stored
	return true, &stored, nil
}

func (m *MemoryRepository) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, ev := range m.events {
		if ev.ID != id {
			continue
		}
		now := time.Now()
		ev.ProcessedAt = &now
		ev.ProcessingError = processingError
		m.events[key] = ev
	}
	return nil
}

func (m *MemoryRepository) CreateOrder(_ context.Context, order *models.BillingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOrder != nil {
		return m.FailOrder
	}
	order.ID = m.id()
	m.orders = append(m.orders, *order)
	return nil
}

func (m *MemoryRepository) MarkOrderPaid(_ context.Context, provider, providerOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].Provider == provider && m.orders[i].ProviderOrderID == providerOrderID {
			m.orders[i].Status = models.BillingOrderStatusPaid
		}
	}
	return nil
}

// PaymentPayload builds a gateway notification body. notes may be nil, in
// which case the gateway's empty-array encoding is used.
func PaymentPayload(event, paymentID, orderID string, notes map[string]any) []byte {
	var notesValue any = []any{}
	if len(notes) > 0 {
		notesValue = notes
	}
	body := map[string]any{
		"entity":     "event",
		"account_id": "acc_test",
		"event":      event,
		"contains":   []string{"payment"},
		"created_at": time.Now().Unix(),
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"entity":   "payment",
					"amount":   49900,
					"currency": "INR",
					"status":   "captured",
					"order_id": orderID,
					"email":    "user@example.com",
					"notes":    notesValue,
				},
			},
		},
	}
	raw, _ := json.Marshal(body)
	return raw
}

// SignedDelivery signs body with secret the way the gateway does.
func SignedDelivery(body []byte, secret, eventID string) billing.WebhookDelivery {
	return billing.WebhookDelivery{
		Body:      body,
		Signature: billing.SignWebhookPayload(body, secret),
		EventID:   eventID,
	}
}
