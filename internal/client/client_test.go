package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/api"
	"github.com/raphaelgruber/voxrecon/internal/config"
	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/provider"
	"github.com/raphaelgruber/voxrecon/internal/report"
	"github.com/raphaelgruber/voxrecon/internal/scheduler"
	"github.com/raphaelgruber/voxrecon/internal/service"
)

func newServer(t *testing.T) (*Client, *service.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := provider.NewRegistry()
	reg.RegisterSynthesizer(report.TemplateModelID, report.NewTemplateSynthesizer())
	svc := service.New(config.Default(), reg, service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	r := gin.New()
	api.Register(r, svc, "1.2.3")
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), svc
}

func seed(t *testing.T, svc *service.Service) string {
	t.Helper()
	id := svc.CreateSession().ID
	require.NoError(t, svc.AddUtterances(id, []models.Utterance{
		{ID: "u1", StreamRole: models.StreamStudents, StartMs: 0, EndMs: 3000, Text: "Hi, my name is Carol."},
		{ID: "u2", StreamRole: models.StreamStudents, StartMs: 3000, EndMs: 7000, Text: "Let's start with the budget and then the timeline"},
	}))
	require.NoError(t, svc.AddEvents(id, []models.SpeakerEvent{
		{StreamRole: models.StreamStudents, UtteranceID: "u1", ClusterID: "S0"},
		{StreamRole: models.StreamStudents, UtteranceID: "u2", ClusterID: "S0"},
	}))
	require.NoError(t, svc.AddMemos(id, []models.Memo{
		{MemoID: "m1", Type: models.MemoObservation, Text: "Carol organised the discussion"},
	}))
	return id
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("VOXRECON_SERVER_URL", "")
	t.Setenv("VOXRECON_CLIENT_TIMEOUT", "")
	c := New("")
	assert.Equal(t, "http://localhost:8080", c.baseURL)

	t.Setenv("VOXRECON_SERVER_URL", "http://recon:9000/")
	t.Setenv("VOXRECON_CLIENT_TIMEOUT", "30s")
	c = New("")
	assert.Equal(t, "http://recon:9000", c.baseURL)
	assert.Equal(t, "30s", c.httpClient.Timeout.String())
}

func TestVersionAndStats(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	snap, err := c.PipelineStats(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.Operations)
}

func TestSessionsAndFinalize(t *testing.T) {
	c, svc := newServer(t)
	ctx := context.Background()
	id := seed(t, svc)

	infos, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)
	assert.Equal(t, 2, infos[0].Utterances)

	transcript, err := c.Transcript(ctx, id)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, "Carol", transcript[1].Name())

	_, err = c.Report(ctx, id)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	rep, err := c.Finalize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, report.TemplateModelID, rep.ModelID)

	info, err := c.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusCompleted, info.Status)
	assert.True(t, info.HasReport)

	got, err := c.Report(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary, got.Summary)

	require.NoError(t, c.DeleteSession(ctx, id))
	_, err = c.GetSession(ctx, id)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Version(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, "upstream down", se.Message)
	assert.False(t, errors.Is(err, ErrNotFound))
}
