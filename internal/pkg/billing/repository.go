package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/CalcFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetSubscriptionByUser(ctx context.Context, userID uint) (*models.Subscription, error)
	ActivateSubscription(ctx context.Context, sub *models.Subscription) error
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
	UpdateProfilePlanType(ctx context.Context, userID uint, planType string) error
	ListProfileMirrors(ctx context.Context, afterUserID uint, limit int) ([]ProfileMirror, error)
	RecordWebhookDelivery(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	CreateOrder(ctx context.Context, order *models.BillingOrder) error
	MarkOrderPaid(ctx context.Context, provider, providerOrderID string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscriptionByUser(ctx context.Context, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActivateSubscription writes absolute values for the user's row in a single
// INSERT ... ON DUPLICATE KEY UPDATE, so concurrent deliveries for the same
// user cannot interleave a read-modify-write.
func (r *gormRepository) ActivateSubscription(ctx context.Context, sub *models.Subscription) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan",
			"status",
			"billing_interval",
			"start_date",
			"end_date",
			"last_payment_id",
			"last_order_id",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Reload into a fresh value: after an update MySQL's insert id is not the
	// row id, and First on a non-zero ID would add it to the condition.
	var stored models.Subscription
	if err := db.Where("user_id = ?", sub.UserID).First(&stored).Error; err != nil {
		return err
	}
	*sub = stored
	return nil
}

func (r *gormRepository) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("plan = ? AND status = ? AND end_date IS NOT NULL AND end_date <= ?", models.PlanPro, models.SubscriptionStatusActive, now).
		Updates(map[string]interface{}{
			"status":     models.SubscriptionStatusExpired,
			"updated_at": now,
		})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) UpdateProfilePlanType(ctx context.Context, userID uint, planType string) error {
	tx := r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Update("plan_type", planType)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		// MySQL reports 0 rows when the value is unchanged, so only create the
		// profile if it does not exist at all.
		_, err := models.GetOrCreateProfile(r.db.WithContext(ctx), userID)
		if err != nil {
			return err
		}
		return r.db.WithContext(ctx).Model(&models.Profile{}).
			Where("user_id = ?", userID).
			Update("plan_type", planType).Error
	}
	return nil
}

func (r *gormRepository) ListProfileMirrors(ctx context.Context, afterUserID uint, limit int) ([]ProfileMirror, error) {
	var rows []ProfileMirror
	err := r.db.WithContext(ctx).
		Table("profiles AS p").
		Select("p.user_id AS user_id, p.plan_type AS plan_type, s.plan AS plan, s.status AS status, s.end_date AS end_date").
		Joins("JOIN subscriptions AS s ON s.user_id = p.user_id").
		Where("p.user_id > ? AND p.deleted_at IS NULL", afterUserID).
		Order("p.user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// RecordWebhookDelivery inserts the delivery log row or, for a redelivery,
// bumps its counter. The bool reports whether this was the first delivery.
func (r *gormRepository) RecordWebhookDelivery(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"delivery_count": gorm.Expr("delivery_count + 1"),
			"updated_at":     time.Now(),
		}),
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	// MySQL reports 1 affected row for an insert and 2 for an update.
	created := tx.RowsAffected == 1
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) CreateOrder(ctx context.Context, order *models.BillingOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *gormRepository) MarkOrderPaid(ctx context.Context, provider, providerOrderID string) error {
	return r.db.WithContext(ctx).Model(&models.BillingOrder{}).
		Where("provider = ? AND provider_order_id = ?", provider, providerOrderID).
		Update("status", models.BillingOrderStatusPaid).Error
}
