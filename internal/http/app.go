// Package http holds the composition types shared by cmd/api and the router:
// the App assembled at startup and the Module contract each bounded context
// implements to mount its routes.
package http

import (
	"context"
	"net/http"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/health. *pgxpool.Pool satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is populated by the composition root and handed to router.New.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	Health HealthChecker
	// Metrics is mounted at /metrics when set.
	Metrics    http.Handler
	Middleware []gin.HandlerFunc
	Modules    []Module
}

// Module is one bounded context (leads, qualification, routing, follow-ups,
// dispatch, notifications).
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext exposes the route groups a module may mount on.
//
//	V1        /api/v1, unauthenticated
//	Protected /api/v1, operator token required
//	Admin     /api/v1/admin, admin role on top of Protected
type RouterContext struct {
	Engine    *gin.Engine
	V1        *gin.RouterGroup
	Protected *gin.RouterGroup
	Admin     *gin.RouterGroup
	Config    config.JWTConfig
}
