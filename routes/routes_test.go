package routes

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"gorm.io/gorm"

	"outreach/client"
	"outreach/composer"
	"outreach/config"
	controller "outreach/controllers"
	"outreach/models"
	"outreach/progress"
	"outreach/timeline"
	"outreach/utils"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []utils.Email
}

func (m *recordingMailer) Send(email utils.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return "<test@outreach.test>", nil
}

type harness struct {
	db     *gorm.DB
	app    *fiber.App
	mailer *recordingMailer
	client *client.Client
	token  string
}

func newHarness(t *testing.T, sendLimit int) *harness {
	t.Helper()
	config.AppConfig.JWTSecret = "test-secret"

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.MigrateDB(db))

	user := models.User{Email: "owner@example.com", IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	token, err := utils.GenerateJWTToken(&user)
	require.NoError(t, err)

	h := &harness{db: db, mailer: &recordingMailer{}, token: token}
	h.app = fiber.New()
	SetupRoutes(h.app, Deps{
		DB:            db,
		Mailer:        h.mailer,
		Hub:           controller.NewTimelineHub(logrus.NewEntry(logrus.New())),
		SendRateLimit: sendLimit,
	})

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = h.app.Listener(ln) }()
	t.Cleanup(func() { _ = h.app.Shutdown() })

	hc := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
	h.client = client.New("http://outreach.test/api/v1", token, client.WithHTTPClient(hc), client.WithTimeout(2*time.Second))
	return h
}

func (h *harness) seedConnection(t *testing.T) models.Connection {
	t.Helper()
	var user models.User
	require.NoError(t, h.db.First(&user).Error)

	conn := models.Connection{UserID: user.ID, Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, h.db.Create(&conn).Error)
	_, err := models.InitializeTimeline(h.db, &conn)
	require.NoError(t, err)
	return conn
}

func TestHealthAndAuth(t *testing.T) {
	h := newHarness(t, 5)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.app.Test(httptest.NewRequest("GET", "/api/v1/connections", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/api/v1/connections", nil)
	req.Header.Set("Authorization", "Bearer "+h.token)
	resp, err = h.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.app.Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestComposerSessionAgainstAPI(t *testing.T) {
	h := newHarness(t, 5)
	seeded := h.seedConnection(t)
	ctx := context.Background()

	conn, err := h.client.GetConnection(ctx, seeded.ID)
	require.NoError(t, err)
	require.NotNil(t, conn.CurrentStageID)
	firstStage := *conn.CurrentStageID

	rec := timeline.NewReconciler(nil)
	var sent []uint
	session := composer.NewSession(h.client,
		composer.WithTimeline(rec),
		composer.WithListener(composer.Listener{OnEmailSent: func(id uint) { sent = append(sent, id) }}),
	)

	require.NoError(t, session.Open(ctx, *conn, nil))
	require.NoError(t, session.Edit(composer.FieldSubject, "Hello"))
	require.NoError(t, session.Edit(composer.FieldBody, "Nice to meet you"))
	require.NoError(t, session.SaveDraft(ctx, false))

	draft, err := h.client.GetDraft(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Subject: Hello\n\nNice to meet you", draft)

	require.NoError(t, session.Send(ctx))
	assert.Equal(t, []uint{conn.ID}, sent)
	assert.False(t, session.State().Open)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "ada@example.com", h.mailer.sent[0].To)
	assert.Equal(t, "Hello", h.mailer.sent[0].Subject)

	var stage models.Stage
	require.NoError(t, h.db.First(&stage, firstStage).Error)
	assert.Equal(t, models.StageSent, stage.StageStatus)
	require.NotNil(t, stage.EmailContent)
	assert.Equal(t, "Nice to meet you", *stage.EmailContent)

	var stored models.Connection
	require.NoError(t, h.db.First(&stored, conn.ID).Error)
	require.NotNil(t, stored.CurrentStageID)
	assert.NotEqual(t, firstStage, *stored.CurrentStageID)
	assert.Nil(t, stored.LastEmailDraft)
	assert.Equal(t, models.StatusFirstImpression, stored.EmailStatus)

	assert.NotNil(t, rec.Current(conn.ID))

	tl, err := h.client.GetTimeline(ctx, conn.ID)
	require.NoError(t, err)
	view := progress.BuildView(stored, tl)
	assert.Equal(t, progress.PercentComplete, view.Progress.Percent)
	require.Len(t, view.Stages, 3)
	assert.Equal(t, models.StageSent, view.Stages[0].StageStatus)
}

func TestSendIsRateLimited(t *testing.T) {
	h := newHarness(t, 1)
	conn := h.seedConnection(t)
	ctx := context.Background()

	require.NoError(t, h.client.SendEmail(ctx, conn.ID, composer.DefaultStageLabel, "Hi", "One"))

	err := h.client.SendEmail(ctx, conn.ID, composer.DefaultStageLabel, "Hi", "Two")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Len(t, h.mailer.sent, 1)
}
