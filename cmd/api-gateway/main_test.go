package main

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/mhasan-dev/course-market-api/internal/handler"
	"github.com/mhasan-dev/course-market-api/pkg/config"
)

func registeredRoutes(r *gin.Engine) map[string]bool {
	routes := make(map[string]bool)
	for _, route := range r.Routes() {
		routes[fmt.Sprintf("%s %s", route.Method, route.Path)] = true
	}
	return routes
}

func TestRegisterRoutesMountsAPIPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}

	registerRoutes(r, cfg, nil,
		handler.NewAuthHandler(nil),
		handler.NewUserHandler(nil),
		handler.NewClassHandler(nil, nil),
		handler.NewSelectionHandler(nil, nil),
		handler.NewPaymentHandler(nil, nil, nil),
		handler.NewMetricsHandler(nil),
		nil, nil)

	routes := registeredRoutes(r)
	assert.True(t, routes["POST /api/v1/auth/register"])
	assert.True(t, routes["GET /api/v1/classes"])
	assert.True(t, routes["POST /api/v1/selectOrEnroll"])
	assert.True(t, routes["PATCH /api/v1/enroll/payments"])
	assert.True(t, routes["GET /api/v1/classes/payments-history/:email/export"])

	// Probes and metrics stay at the engine root.
	assert.True(t, routes["GET /health"])
	assert.True(t, routes["GET /ready"])
	assert.True(t, routes["GET /metrics"])
	assert.False(t, routes["POST /auth/register"])
}
