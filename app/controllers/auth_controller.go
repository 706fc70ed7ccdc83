package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/app/models"
	"github.com/ManuelReschke/CalcFox/app/repository"
	"github.com/ManuelReschke/CalcFox/internal/pkg/session"
	"github.com/ManuelReschke/CalcFox/internal/pkg/usercontext"
)

// AuthController handles account registration and the session lifecycle
type AuthController struct {
	users repository.UserRepository
}

// NewAuthController creates a new auth controller with repository
func NewAuthController(users repository.UserRepository) *AuthController {
	return &AuthController{users: users}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a free account.
func (ac *AuthController) HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	user, err := models.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "fields": fields})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration_failed"})
	}

	exists, err := ac.users.ExistsByEmail(user.Email)
	if err != nil {
		log.Errorf("[AuthController] Email lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration_failed"})
	}
	if exists {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken"})
	}

	if err := ac.users.Register(user, time.Now()); err != nil {
		log.Errorf("[AuthController] Registration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "registration_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": user.ID, "plan": models.PlanFree})
}

// HandleLogin starts a session. The cached plan is dropped so the next request
// derives it from the subscription row again.
func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	user, err := ac.users.GetByEmail(req.Email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[AuthController] User lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_failed"})
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_credentials"})
	}
	if !user.CheckPassword(req.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_credentials"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "account_disabled"})
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_unavailable"})
	}
	if err := sess.Regenerate(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_unavailable"})
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyEmail, user.Email)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)
	sess.Delete(usercontext.KeyUserPlan)
	if err := sess.Save(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_unavailable"})
	}

	if err := ac.users.TouchLastLogin(user.ID, time.Now()); err != nil {
		log.Warnf("[AuthController] Could not update last login for user %d: %v", user.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": user.ID, "username": user.Name})
}

// HandleLogout destroys the session including the cached plan.
func (ac *AuthController) HandleLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
	if err := sess.Destroy(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "logout_failed"})
	}
	c.Locals(usercontext.KeyFromProtected, false)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
