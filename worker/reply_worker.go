package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/facebookgo/clock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreach/config"
	"outreach/models"
	"outreach/utils"
)

// InboundMessage is an unseen message pulled from the reply inbox
type InboundMessage struct {
	UID       uint32
	MessageID string
	From      string
	Subject   string
	Body      string
	Date      time.Time
}

// MailboxFetcher lists unseen messages and flags the handled ones as seen
type MailboxFetcher interface {
	FetchUnseen(ctx context.Context) ([]InboundMessage, error)
	MarkSeen(ctx context.Context, uids []uint32) error
}

// TimelinePublisher receives every timeline the worker changes
type TimelinePublisher interface {
	Publish(connectionID uint, tl *models.Timeline)
}

type ReplyWorker struct {
	db        *gorm.DB
	fetcher   MailboxFetcher
	publisher TimelinePublisher
	interval  time.Duration
	clock     clock.Clock
	logger    *logrus.Entry
}

func NewReplyWorker(db *gorm.DB, fetcher MailboxFetcher, publisher TimelinePublisher, interval time.Duration, logger *logrus.Entry) *ReplyWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReplyWorker{
		db:        db,
		fetcher:   fetcher,
		publisher: publisher,
		interval:  interval,
		clock:     clock.New(),
		logger:    logger,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.logger.WithField("interval", rw.interval.String()).Info("Reply worker started")
	ticker := rw.clock.Ticker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("Reply worker shutting down...")
			return
		case <-ticker.C:
			if err := rw.Poll(ctx); err != nil {
				utils.LogError("reply_poll_failed", err, nil)
				rw.logger.WithError(err).Warn("Reply poll failed")
			}
		}
	}
}

// Poll fetches unseen messages once and records those that come from a
// known connection.
func (rw *ReplyWorker) Poll(ctx context.Context) error {
	messages, err := rw.fetcher.FetchUnseen(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	var handled []uint32
	for _, msg := range messages {
		marked, err := rw.RecordReply(msg)
		if err != nil {
			rw.logger.WithFields(logrus.Fields{
				"from": msg.From,
				"uid":  msg.UID,
			}).WithError(err).Warn("Failed to record reply")
			continue
		}
		if marked > 0 {
			handled = append(handled, msg.UID)
		}
	}

	if len(handled) == 0 {
		return nil
	}
	if err := rw.fetcher.MarkSeen(ctx, handled); err != nil {
		return fmt.Errorf("failed to flag messages as seen: %w", err)
	}
	return nil
}

// RecordReply marks the response stage of every connection the sender
// belongs to as received. Only a response stage that follows a sent stage
// is eligible. It returns how many stages changed.
func (rw *ReplyWorker) RecordReply(msg InboundMessage) (int, error) {
	from := strings.ToLower(strings.TrimSpace(msg.From))
	if from == "" {
		return 0, nil
	}

	var conns []models.Connection
	if err := rw.db.Where("email = ?", from).Find(&conns).Error; err != nil {
		return 0, err
	}

	marked := 0
	for _, conn := range conns {
		var tl models.Timeline
		err := rw.db.Preload("Stages").Where("connection_id = ?", conn.ID).First(&tl).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return marked, err
		}
		tl.SortStages()

		stage := replyStage(&tl)
		if stage == nil {
			continue
		}

		receivedAt := msg.Date
		if receivedAt.IsZero() {
			receivedAt = rw.clock.Now()
		}
		stage.StageStatus = models.StageReceived
		stage.ReceivedAt = &receivedAt
		if body := strings.TrimSpace(msg.Body); body != "" {
			stage.EmailContent = &body
		}
		if err := rw.db.Save(stage).Error; err != nil {
			return marked, err
		}
		marked++

		rw.logger.WithFields(logrus.Fields{
			"connection_id": conn.ID,
			"stage_id":      stage.ID,
		}).Info("Reply recorded")
		utils.LogEvent("reply_received", map[string]interface{}{
			"connection_id": conn.ID,
			"stage_id":      stage.ID,
			"message_id":    msg.MessageID,
		})

		if rw.publisher != nil {
			rw.publisher.Publish(conn.ID, &tl)
		}
	}
	return marked, nil
}

// replyStage returns the first response stage after a sent stage that can
// still move to received. Stages must already be sorted.
func replyStage(tl *models.Timeline) *models.Stage {
	sawSent := false
	for i := range tl.Stages {
		s := &tl.Stages[i]
		if s.StageStatus == models.StageSent {
			sawSent = true
			continue
		}
		if sawSent && s.StageType == models.StageResponse && s.CanTransitionTo(models.StageReceived) {
			return s
		}
	}
	return nil
}

// IMAPFetcher reads replies from a single IMAP mailbox
type IMAPFetcher struct {
	cfg config.IMAPConfig
}

func NewIMAPFetcher(cfg config.IMAPConfig) *IMAPFetcher {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPFetcher{cfg: cfg}
}

func (f *IMAPFetcher) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)
	c, err := client.DialTLS(addr, &tls.Config{ServerName: f.cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := c.Login(f.cfg.Username, f.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}
	if _, err := c.Select(f.cfg.Mailbox, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select mailbox: %w", err)
	}
	return c, nil
}

func (f *IMAPFetcher) FetchUnseen(ctx context.Context) ([]InboundMessage, error) {
	c, err := f.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var out []InboundMessage
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		inbound := InboundMessage{UID: msg.Uid}
		if msg.Envelope != nil {
			inbound.MessageID = msg.Envelope.MessageId
			inbound.Subject = msg.Envelope.Subject
			inbound.Date = msg.Envelope.Date
			if len(msg.Envelope.From) > 0 {
				inbound.From = msg.Envelope.From[0].Address()
			}
		}
		if literal := msg.GetBody(section); literal != nil {
			if body, err := ParseTextBody(literal); err == nil {
				inbound.Body = body
			}
		}
		out = append(out, inbound)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("error during fetch: %w", err)
	}
	return out, ctx.Err()
}

func (f *IMAPFetcher) MarkSeen(ctx context.Context, uids []uint32) error {
	c, err := f.connect()
	if err != nil {
		return err
	}
	defer c.Logout()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil)
}

// ParseTextBody returns the text/plain part of an RFC 822 message
func ParseTextBody(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create message reader: %w", err)
	}

	var text string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "" && !strings.HasPrefix(contentType, "text/plain") {
			continue
		}
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		if text == "" {
			text = string(b)
		}
	}
	return text, nil
}
