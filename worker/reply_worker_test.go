package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"outreach/config"
	"outreach/models"
)

type fakeFetcher struct {
	mu       sync.Mutex
	messages []InboundMessage
	err      error
	polls    int
	seen     []uint32
}

func (f *fakeFetcher) FetchUnseen(ctx context.Context) ([]InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.messages, f.err
}

func (f *fakeFetcher) MarkSeen(ctx context.Context, uids []uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, uids...)
	return nil
}

func (f *fakeFetcher) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[uint]*models.Timeline
}

func (p *fakePublisher) Publish(connectionID uint, tl *models.Timeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published == nil {
		p.published = make(map[uint]*models.Timeline)
	}
	p.published[connectionID] = tl.Clone()
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func seedConnection(t *testing.T, db *gorm.DB, email string, sentFirst bool) (models.Connection, *models.Timeline) {
	t.Helper()
	user := models.User{Email: "owner-" + email, IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	conn := models.Connection{UserID: user.ID, Name: "Grace", Email: email}
	require.NoError(t, db.Create(&conn).Error)
	tl, err := models.InitializeTimeline(db, &conn)
	require.NoError(t, err)

	if sentFirst {
		now := time.Now()
		tl.Stages[0].StageStatus = models.StageSent
		tl.Stages[0].SentAt = &now
		require.NoError(t, db.Save(&tl.Stages[0]).Error)
	}
	return conn, tl
}

func newTestWorker(db *gorm.DB, fetcher MailboxFetcher, pub TimelinePublisher) *ReplyWorker {
	return NewReplyWorker(db, fetcher, pub, time.Minute, logrus.NewEntry(logrus.New()))
}

func TestRecordReplyMarksResponseStage(t *testing.T) {
	db := setupDB(t)
	conn, tl := seedConnection(t, db, "grace@example.com", true)
	pub := &fakePublisher{}
	rw := newTestWorker(db, &fakeFetcher{}, pub)

	date := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	marked, err := rw.RecordReply(InboundMessage{From: "Grace@Example.com", Body: "Sounds good\n", Date: date})
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	var stage models.Stage
	require.NoError(t, db.First(&stage, tl.Stages[2].ID).Error)
	assert.Equal(t, models.StageResponse, stage.StageType)
	assert.Equal(t, models.StageReceived, stage.StageStatus)
	require.NotNil(t, stage.ReceivedAt)
	assert.True(t, date.Equal(*stage.ReceivedAt))
	require.NotNil(t, stage.EmailContent)
	assert.Equal(t, "Sounds good", *stage.EmailContent)

	require.Contains(t, pub.published, conn.ID)
	assert.Equal(t, models.StageReceived, pub.published[conn.ID].Stages[2].StageStatus)

	// A second reply finds nothing left to mark
	marked, err = rw.RecordReply(InboundMessage{From: "grace@example.com"})
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestRecordReplyRequiresSentStage(t *testing.T) {
	db := setupDB(t)
	_, tl := seedConnection(t, db, "quiet@example.com", false)
	rw := newTestWorker(db, &fakeFetcher{}, nil)

	marked, err := rw.RecordReply(InboundMessage{From: "quiet@example.com"})
	require.NoError(t, err)
	assert.Zero(t, marked)

	var stage models.Stage
	require.NoError(t, db.First(&stage, tl.Stages[2].ID).Error)
	assert.Equal(t, models.StageWaiting, stage.StageStatus)
}

func TestRecordReplyUnknownSender(t *testing.T) {
	db := setupDB(t)
	seedConnection(t, db, "known@example.com", true)
	rw := newTestWorker(db, &fakeFetcher{}, nil)

	marked, err := rw.RecordReply(InboundMessage{From: "stranger@example.com"})
	require.NoError(t, err)
	assert.Zero(t, marked)

	marked, err = rw.RecordReply(InboundMessage{From: "  "})
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestPollFlagsHandledMessages(t *testing.T) {
	db := setupDB(t)
	seedConnection(t, db, "grace@example.com", true)
	fetcher := &fakeFetcher{messages: []InboundMessage{
		{UID: 7, From: "grace@example.com"},
		{UID: 8, From: "newsletter@example.com"},
	}}
	rw := newTestWorker(db, fetcher, nil)

	require.NoError(t, rw.Poll(context.Background()))
	assert.Equal(t, []uint32{7}, fetcher.seen)

	fetcher.err = errors.New("imap down")
	assert.ErrorContains(t, rw.Poll(context.Background()), "imap down")
}

func TestStartPollsOnTick(t *testing.T) {
	db := setupDB(t)
	fetcher := &fakeFetcher{}
	rw := newTestWorker(db, fetcher, nil)
	mock := clock.NewMock()
	rw.clock = mock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rw.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return fetcher.pollCount() >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestParseTextBody(t *testing.T) {
	raw := strings.Join([]string{
		"From: Grace <grace@example.com>",
		"To: me@example.com",
		"Subject: Re: Hello",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Happy to chat.",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Happy to chat.</p>",
		"--b1--",
		"",
	}, "\r\n")

	body, err := ParseTextBody(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Happy to chat.", strings.TrimSpace(body))

	plain := "From: a@example.com\r\nSubject: hi\r\n\r\nJust text\r\n"
	body, err = ParseTextBody(strings.NewReader(plain))
	require.NoError(t, err)
	assert.Equal(t, "Just text", strings.TrimSpace(body))
}
