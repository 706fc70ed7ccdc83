package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CalcFox/internal/pkg/session"
	"github.com/ManuelReschke/CalcFox/internal/pkg/usercontext"
)

// PlanResolver derives the plan a user may use from the subscription store.
type PlanResolver interface {
	EffectivePlan(ctx context.Context, userID uint) (entitlements.Plan, error)
}

func setAnonymous(c *fiber.Ctx) {
	c.Locals(usercontext.KeyUserContext, usercontext.UserContext{})
	c.Locals(usercontext.KeyFromProtected, false)
	c.Locals(usercontext.KeyIsAdmin, false)
}

// NewUserContextMiddleware sets up the complete user context for every request.
// The plan is read from the session first and derived from the store when the
// session has none, then cached in the session.
func NewUserContextMiddleware(plans PlanResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		store := session.GetSessionStore()
		if store == nil {
			setAnonymous(c)
			return c.Next()
		}
		sess, err := store.Get(c)
		if err != nil {
			setAnonymous(c)
			return c.Next()
		}

		userID, ok := sess.Get(usercontext.KeyUserID).(uint)
		if !ok || userID == 0 {
			setAnonymous(c)
			return c.Next()
		}

		username, _ := sess.Get(usercontext.KeyUsername).(string)
		email, _ := sess.Get(usercontext.KeyEmail).(string)
		isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)
		plan, _ := sess.Get(usercontext.KeyUserPlan).(string)

		if plan == "" {
			plan = string(entitlements.PlanFree)
			if plans != nil {
				ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
				p, err := plans.EffectivePlan(ctx, userID)
				cancel()
				if err != nil {
					log.Warnf("[UserContext] Plan lookup failed for user %d: %v", userID, err)
				} else {
					plan = string(p)
					sess.Set(usercontext.KeyUserPlan, plan)
					if err := sess.Save(); err != nil {
						log.Warnf("[UserContext] Could not cache plan in session: %v", err)
					}
				}
			}
		}

		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
			UserID:     userID,
			Username:   username,
			Email:      email,
			IsLoggedIn: true,
			IsAdmin:    isAdmin,
			Plan:       plan,
		})
		c.Locals(usercontext.KeyFromProtected, true)
		c.Locals(usercontext.KeyUserID, userID)
		c.Locals(usercontext.KeyIsAdmin, isAdmin)

		return c.Next()
	}
}
