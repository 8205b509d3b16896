// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/graphql-go/graphql"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusconnect/events-backend/provision"
	"github.com/campusconnect/events-backend/restapi/modules/accounts"
	"github.com/campusconnect/events-backend/restapi/modules/auth"
)

// Deps bundles what the route handlers run against.
type Deps struct {
	Resolver *provision.Resolver
	Store    provision.Store
	Sweeper  *provision.Sweeper
	Config   provision.Config
	Schema   graphql.Schema
}

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
func SetupRoutes(app *fiber.App, deps Deps) {

	// API Group /api/v1
	api := app.Group("/api/v1")

	// GraphQL Route - Mounted within the api group to inherit path prefixes
	api.Post("/graphql", auth.RequireAuth, auth.RequireRole("admin"), GraphQLHandler(deps.Schema))

	// Account resolution, called by the authentication middleware after
	// token verification
	api.Post("/accounts/resolve", accounts.ResolveAccount(deps.Resolver))

	// Auth Routes
	authGroup := api.Group("/auth")
	authGroup.Post("/token", auth.IssueAdminToken())

	// Provisioning Administration (Admin)
	adminGroup := api.Group("/admin", auth.RequireAuth, auth.RequireRole("admin"))
	adminGroup.Get("/provisioning/stats", accounts.ProvisioningStats(deps.Store, deps.Config))
	adminGroup.Post("/provisioning/reclaim", accounts.TriggerReclamation(deps.Sweeper))
	adminGroup.Get("/accounts/:id", accounts.GetAccount(deps.Store))

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	log.Println("API routes initialized successfully")
}

// GraphQLHandler executes admin GraphQL queries against the schema.
func GraphQLHandler(schema graphql.Schema) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Query     string                 `json:"query"`
			Variables map[string]interface{} `json:"variables"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			Context:        c.Context(),
		})

		if len(result.Errors) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(result)
		}
		return c.JSON(result)
	}
}
