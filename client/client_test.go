package client

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"outreach/models"
	"outreach/utils"
)

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]interface{}
}

func newTestClient(t *testing.T, handler func(ctx *fasthttp.RequestCtx)) (*Client, *[]recorded) {
	t.Helper()

	var calls []recorded
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		rec := recorded{
			Method: string(ctx.Method()),
			Path:   string(ctx.Path()),
			Auth:   string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)),
		}
		if len(ctx.PostBody()) > 0 {
			_ = json.Unmarshal(ctx.PostBody(), &rec.Body)
		}
		calls = append(calls, rec)
		ctx.SetContentType("application/json")
		handler(ctx)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	hc := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
	return New("http://outreach.test/api/v1/", "tok", WithHTTPClient(hc), WithTimeout(2*time.Second)), &calls
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(v)
	ctx.SetBody(body)
}

func TestGetDraft(t *testing.T) {
	c, calls := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 200, map[string]interface{}{"draft": map[string]string{"content": "Subject: a\n\nb"}})
	})

	content, err := c.GetDraft(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, "Subject: a\n\nb", content)

	require.Len(t, *calls, 1)
	assert.Equal(t, "GET", (*calls)[0].Method)
	assert.Equal(t, "/api/v1/connections/12/draft", (*calls)[0].Path)
	assert.Equal(t, "Bearer tok", (*calls)[0].Auth)
}

func TestGetDraftMissing(t *testing.T) {
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 200, map[string]interface{}{"draft": nil})
	})

	content, err := c.GetDraft(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSaveDraftAndSend(t *testing.T) {
	c, calls := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 200, map[string]string{"message": "ok"})
	})

	require.NoError(t, c.SaveDraft(context.Background(), 3, "Subject: s\n\nb"))
	require.NoError(t, c.SendEmail(context.Background(), 3, "first_impression", "s", "b"))

	require.Len(t, *calls, 2)
	assert.Equal(t, "PUT", (*calls)[0].Method)
	assert.Equal(t, "Subject: s\n\nb", (*calls)[0].Body["content"])
	assert.Equal(t, "/api/v1/connections/3/send", (*calls)[1].Path)
	assert.Equal(t, "first_impression", (*calls)[1].Body["stage"])
	assert.Equal(t, "s", (*calls)[1].Body["subject"])
}

func TestUpdateStageReturnsTimeline(t *testing.T) {
	c, calls := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 200, map[string]interface{}{
			"timeline": models.Timeline{Stages: []models.Stage{{StageOrder: 1, StageStatus: models.StageDraft}}},
		})
	})

	tl, err := c.UpdateStage(context.Background(), 3, 9, models.StageUpdate{
		StageStatus:  models.StageDraft,
		DraftContent: utils.Pointer("b"),
	})
	require.NoError(t, err)
	require.NotNil(t, tl)
	assert.Equal(t, models.StageDraft, tl.Stages[0].StageStatus)

	assert.Equal(t, "PATCH", (*calls)[0].Method)
	assert.Equal(t, "/api/v1/connections/3/timeline/stages/9", (*calls)[0].Path)
	assert.Equal(t, "draft", (*calls)[0].Body["stage_status"])
	assert.Equal(t, "b", (*calls)[0].Body["draft_content"])
}

func TestAdvanceTimelineWithoutPayload(t *testing.T) {
	c, calls := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, 200, map[string]interface{}{"message": "advanced"})
	})

	tl, err := c.AdvanceTimeline(context.Background(), 3, models.TriggerSendEmail, 9)
	require.NoError(t, err)
	assert.Nil(t, tl)

	assert.Equal(t, "send_email", (*calls)[0].Body["trigger"])
	assert.Equal(t, float64(9), (*calls)[0].Body["stage_id"])
}

func TestAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, fasthttp.StatusConflict, map[string]string{"error": "invalid stage transition"})
	})

	_, err := c.UpdateStage(context.Background(), 1, 1, models.StageUpdate{StageStatus: models.StageWaiting})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fasthttp.StatusConflict, apiErr.Status)
	assert.Equal(t, "invalid stage transition", apiErr.Message)
}

func TestAPIErrorWithoutBody(t *testing.T) {
	c, _ := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	})

	err := c.MarkComposerOpened(context.Background(), 1)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestCanceledContext(t *testing.T) {
	c, calls := newTestClient(t, func(ctx *fasthttp.RequestCtx) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetTimeline(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *calls)
}

func TestUpdateStatus(t *testing.T) {
	c, calls := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		conn := models.Connection{Name: "Ada", EmailStatus: models.StatusFollowUp}
		writeJSON(ctx, 200, map[string]interface{}{"connection": conn})
	})

	conn, err := c.UpdateStatus(context.Background(), 5, models.StatusFollowUp)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFollowUp, conn.EmailStatus)
	assert.Equal(t, "/api/v1/connections/5/status", (*calls)[0].Path)
	assert.Equal(t, "Follow-up", (*calls)[0].Body["email_status"])
}
