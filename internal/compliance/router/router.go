// Package router registers the compliance HTTP routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/compliance-x/internal/compliance/biz"
	"github.com/kart-io/compliance-x/internal/compliance/handler"
)

// Services collects the business services the routes depend on.
type Services struct {
	Analyzer     *biz.Analyzer
	History      *biz.HistoryService
	RuleSets     *biz.RuleSetService
	Capabilities *biz.CapabilityRegistry
}

// Register installs all routes on the engine.
func Register(engine *gin.Engine, svc *Services) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	analysis := handler.NewAnalysisHandler(svc.Analyzer, svc.History)
	ruleSets := handler.NewRuleSetHandler(svc.RuleSets)
	capabilities := handler.NewCapabilityHandler(svc.Capabilities)

	v1 := engine.Group("/v1")
	{
		compliance := v1.Group("/compliance")
		{
			compliance.POST("/analyze", analysis.Submit)
			compliance.GET("/sessions/:session_id", analysis.Results)
			compliance.POST("/sessions/:session_id/stop", analysis.Stop)
			compliance.DELETE("/sessions/:session_id", analysis.Delete)
			compliance.PUT("/sessions/:session_id/title", analysis.Rename)
			compliance.GET("/history", analysis.History)
		}

		rules := v1.Group("/rulesets")
		{
			rules.POST("", ruleSets.Create)
			rules.GET("", ruleSets.List)
			rules.GET("/:id", ruleSets.Get)
			rules.POST("/:id/rules", ruleSets.AddRules)
			rules.GET("/:id/catalog", ruleSets.Catalog)
			rules.POST("/:id/deactivate", ruleSets.Deactivate)
			rules.DELETE("/:id", ruleSets.Delete)
		}

		caps := v1.Group("/capabilities")
		{
			caps.GET("", capabilities.List)
			caps.POST("/:name", capabilities.Invoke)
		}
	}
}
