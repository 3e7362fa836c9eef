// Package api exposes the session pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raphaelgruber/voxrecon/internal/service"
)

// Register mounts all routes on r.
func Register(r gin.IRouter, svc *service.Service, version string) {
	h := &handlers{svc: svc}

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/version", func(c *gin.Context) { ok(c, gin.H{"version": version}) })
	v1.GET("/pipeline-stats", h.pipelineStats)

	v1.POST("/sessions", h.createSession)
	v1.GET("/sessions", h.listSessions)
	v1.GET("/sessions/:id", h.getSession)
	v1.DELETE("/sessions/:id", h.deleteSession)

	s := v1.Group("/sessions/:id")
	s.POST("/utterances", h.addUtterances)
	s.POST("/embeddings", h.addEmbeddings)
	s.POST("/events", h.addEvents)
	s.POST("/memos", h.addMemos)
	s.POST("/turns", h.addTurns)
	s.PUT("/roster", h.setRoster)
	s.POST("/enroll", h.enroll)

	s.GET("/bindings", h.getBindings)
	s.POST("/bindings", h.updateBinding)

	s.POST("/schedule", h.schedule)
	s.POST("/increments", h.runIncrement)

	s.POST("/reconcile", h.reconcile)
	s.GET("/transcript", h.transcript)
	s.GET("/speaker-stats", h.speakerStats)
	s.GET("/evidence", h.evidence)

	s.POST("/report", h.generateReport)
	s.GET("/report", h.getReport)
	s.POST("/claims/:claim_id/regenerate", h.regenerateClaim)

	s.POST("/finalize", h.finalize)
	s.POST("/persist", h.persist)
	s.POST("/restore", h.restore)
}
