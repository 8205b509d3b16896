// Package accounts provides the account resolution and provisioning admin
// handlers for Fiber.
package accounts

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campusconnect/events-backend/model"
	"github.com/campusconnect/events-backend/provision"
)

// ResolveRequest is the body accepted by the resolve endpoint. The caller
// (authentication middleware) has already verified the token; only the
// extracted subject id and email claim arrive here.
type ResolveRequest struct {
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
}

// ResolveAccount maps a verified IdP identity onto exactly one local
// account, creating or linking as needed.
func ResolveAccount(resolver *provision.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ResolveRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		acct, err := resolver.Resolve(c.Context(), req.ExternalID, req.Email)
		if err != nil {
			status := statusForError(err)
			return c.Status(status).JSON(fiber.Map{
				"error": err.Error(),
				"code":  provision.CodeOf(err),
			})
		}

		return c.JSON(fiber.Map{"account": accountView(acct)})
	}
}

// ProvisioningStats serves the read-only provisioning aggregate.
func ProvisioningStats(store provision.Store, cfg provision.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := provision.Stats(c.Context(), store, cfg)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to aggregate provisioning stats",
			})
		}
		return c.JSON(stats)
	}
}

// TriggerReclamation manually invokes one reclamation sweep outside its
// schedule.
func TriggerReclamation(sweeper *provision.Sweeper) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := sweeper.RunOnce(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Reclamation sweep failed",
			})
		}
		return c.JSON(fiber.Map{
			"message": "Reclamation sweep complete",
			"result":  result,
		})
	}
}

// GetAccount retrieves one account by id.
func GetAccount(store provision.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		acct, err := store.AccountByID(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to fetch account",
			})
		}
		if acct == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Account not found",
			})
		}
		return c.JSON(fiber.Map{"account": accountView(acct)})
	}
}

func statusForError(err error) int {
	switch provision.ClassOf(err) {
	case provision.ClassValidation:
		return fiber.StatusBadRequest
	case provision.ClassConflict:
		return fiber.StatusConflict
	case provision.ClassExhausted:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func accountView(acct *model.Account) fiber.Map {
	view := fiber.Map{
		"id":            acct.ID,
		"username":      acct.Username,
		"email":         acct.Email,
		"external_id":   acct.ExternalID,
		"account_state": acct.AccountState,
		"created_at":    acct.CreatedAt,
	}
	if acct.LinkedAt != nil {
		view["linked_at"] = acct.LinkedAt
	}
	return view
}
