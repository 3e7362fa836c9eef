package api

import (
	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/scheduler"
	"github.com/raphaelgruber/voxrecon/internal/service"
)

type handlers struct {
	svc *service.Service
}

// audioRequest carries either a URL or inline base64 audio.
type audioRequest struct {
	URL        string `json:"url"`
	Data       []byte `json:"data"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (a audioRequest) toAudio() provider.Audio {
	return provider.Audio{
		URL:        a.URL,
		Data:       a.Data,
		Format:     a.Format,
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
	}
}

func (h *handlers) pipelineStats(c *gin.Context) {
	ok(c, h.svc.Collector().Snapshot())
}

func (h *handlers) createSession(c *gin.Context) {
	created(c, h.svc.CreateSession())
}

func (h *handlers) listSessions(c *gin.Context) {
	ok(c, h.svc.Sessions())
}

func (h *handlers) getSession(c *gin.Context) {
	info, err := h.svc.Session(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, info)
}

func (h *handlers) deleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": c.Param("id")})
}

func (h *handlers) addUtterances(c *gin.Context) {
	var req struct {
		Utterances []models.Utterance `json:"utterances" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.AddUtterances(c.Param("id"), req.Utterances); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"added": len(req.Utterances)})
}

func (h *handlers) addEmbeddings(c *gin.Context) {
	var req struct {
		Embeddings []models.CachedEmbedding `json:"embeddings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.svc.AddEmbeddings(c.Param("id"), req.Embeddings)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *handlers) addEvents(c *gin.Context) {
	var req struct {
		Events []models.SpeakerEvent `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.AddEvents(c.Param("id"), req.Events); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"added": len(req.Events)})
}

func (h *handlers) addMemos(c *gin.Context) {
	var req struct {
		Memos []models.Memo `json:"memos" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.AddMemos(c.Param("id"), req.Memos); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"added": len(req.Memos)})
}

func (h *handlers) addTurns(c *gin.Context) {
	var req struct {
		Turns []models.DiarizationTurn `json:"turns" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.AddLocalTurns(c.Param("id"), req.Turns); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"added": len(req.Turns)})
}

func (h *handlers) setRoster(c *gin.Context) {
	var req struct {
		Roster []models.RosterEntry `json:"roster"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.svc.SetRoster(c.Param("id"), req.Roster); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"participants": len(req.Roster)})
}

func (h *handlers) enroll(c *gin.Context) {
	var req struct {
		Participant models.RosterEntry `json:"participant"`
		Audio       audioRequest       `json:"audio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	entry, err := h.svc.Enroll(c.Request.Context(), c.Param("id"), req.Participant, req.Audio.toAudio())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, entry)
}

func (h *handlers) getBindings(c *gin.Context) {
	state, err := h.svc.State(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, state)
}

func (h *handlers) updateBinding(c *gin.Context) {
	var req service.BindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	state, err := h.svc.UpdateBinding(c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, state)
}

func (h *handlers) schedule(c *gin.Context) {
	var req struct {
		UnprocessedEndMs int64 `json:"unprocessed_end_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	dec, err := h.svc.Schedule(c.Param("id"), req.UnprocessedEndMs)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, dec)
}

func (h *handlers) runIncrement(c *gin.Context) {
	var req struct {
		Decision scheduler.Decision `json:"decision"`
		Audio    audioRequest       `json:"audio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	inc, err := h.svc.RunIncrement(c.Request.Context(), c.Param("id"), req.Decision, req.Audio.toAudio())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inc)
}

func (h *handlers) reconcile(c *gin.Context) {
	res, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *handlers) transcript(c *gin.Context) {
	res, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res.Transcript)
}

func (h *handlers) speakerStats(c *gin.Context) {
	res, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res.Stats)
}

func (h *handlers) evidence(c *gin.Context) {
	res, err := h.svc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"evidence": res.Evidence, "events": res.Events})
}

func (h *handlers) generateReport(c *gin.Context) {
	rep, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rep)
}

func (h *handlers) getReport(c *gin.Context) {
	rep, err := h.svc.LastReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rep)
}

func (h *handlers) regenerateClaim(c *gin.Context) {
	claim, err := h.svc.RegenerateClaim(c.Request.Context(), c.Param("id"), c.Param("claim_id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, claim)
}

func (h *handlers) finalize(c *gin.Context) {
	rep, err := h.svc.Finalize(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rep)
}

func (h *handlers) persist(c *gin.Context) {
	if err := h.svc.Persist(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"persisted": c.Param("id")})
}

func (h *handlers) restore(c *gin.Context) {
	info, err := h.svc.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, info)
}
