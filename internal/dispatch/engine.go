package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/contact"
	"github.com/ignite/outreach/internal/event"
	"github.com/ignite/outreach/internal/pkg/distlock"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/progress"
	"github.com/ignite/outreach/internal/sender"
	"github.com/ignite/outreach/internal/template"
)

const maxSampleFailures = 10

// Request describes one campaign run.
type Request struct {
	SessionID string            `json:"session_id"`
	SenderKey string            `json:"sender"`
	Subject   string            `json:"subject"`
	Template  string            `json:"template"`
	Selection contact.Selection `json:"-"`

	BatchSize  int           `json:"batch_size"`
	BatchDelay time.Duration `json:"-"`
	SendTimeout time.Duration `json:"-"`
}

// Result summarizes a finished run.
type Result struct {
	SessionID    string   `json:"session_id"`
	Message      string   `json:"message"`
	EmailsSent   int      `json:"emails_sent"`
	FailedCount  int      `json:"failed_count"`
	Failures     []string `json:"failures,omitempty"`
	Total        int      `json:"total"`
}

// Engine runs campaigns one at a time per call: resolve the selection,
// render per contact, send at a bounded rate, and report progress.
// Sends are never retried and a failed contact never aborts the run.
type Engine struct {
	contacts   *contact.Store
	senders    *sender.Store
	events     *event.Store
	templates  *template.Store
	sessions   *SessionStore
	renderer   *template.Renderer
	hub        *progress.Hub
	limiter    *RateLimiter
	transports map[string]Transport

	lockRedis *redis.Client
	lockDB    *sql.DB

	batchSize   int
	batchDelay  time.Duration
	sendTimeout time.Duration
	environment string
}

// SetLockBackend enables the per-sender run lock so concurrent server
// instances cannot dispatch the same sender at once. Uses Redis when
// available, Postgres advisory locks otherwise.
func (en *Engine) SetLockBackend(rdb *redis.Client, db *sql.DB) {
	en.lockRedis = rdb
	en.lockDB = db
}

// EngineConfig carries the run defaults; each can be overridden per
// request.
type EngineConfig struct {
	BatchSize   int
	BatchDelay  time.Duration
	SendTimeout time.Duration
	Environment string
}

func NewEngine(
	contacts *contact.Store,
	senders *sender.Store,
	events *event.Store,
	templates *template.Store,
	sessions *SessionStore,
	renderer *template.Renderer,
	hub *progress.Hub,
	limiter *RateLimiter,
	transports map[string]Transport,
	cfg EngineConfig,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	return &Engine{
		contacts:    contacts,
		senders:     senders,
		events:      events,
		templates:   templates,
		sessions:    sessions,
		renderer:    renderer,
		hub:         hub,
		limiter:     limiter,
		transports:  transports,
		batchSize:   cfg.BatchSize,
		batchDelay:  cfg.BatchDelay,
		sendTimeout: cfg.SendTimeout,
		environment: cfg.Environment,
	}
}

// Run executes one campaign synchronously. Cancellation through ctx
// stops cleanly at the next contact boundary; partial completion is a
// normal terminal state.
func (en *Engine) Run(ctx context.Context, req *Request) (*Result, error) {
	snd, err := en.senders.GetActive(ctx, req.SenderKey)
	if err != nil {
		return nil, err
	}
	transport, ok := en.transports[snd.Transport]
	if !ok {
		return nil, &sender.ConfigurationError{Key: snd.Key, Reason: "no transport registered for " + snd.Transport}
	}

	if en.lockRedis != nil || en.lockDB != nil {
		lock := distlock.New(en.lockRedis, en.lockDB, "campaign:"+snd.Key, 30*time.Minute)
		got, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire campaign lock: %w", err)
		}
		if !got {
			return nil, &ConcurrencyError{SenderKey: snd.Key}
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				logger.Warn("campaign lock release failed", "sender_key", snd.Key, "error", err.Error())
			}
		}()
	}

	sel := req.Selection
	sel.SenderKey = snd.Key
	sel.SenderEmail = snd.FromEmail
	contacts, err := en.contacts.Select(ctx, sel)
	if err != nil {
		return nil, err
	}

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = en.batchSize
	}
	batchDelay := req.BatchDelay
	if batchDelay <= 0 {
		batchDelay = en.batchDelay
	}
	sendTimeout := req.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = en.sendTimeout
	}

	cfgSnapshot, _ := json.Marshal(map[string]interface{}{
		"batch_size":   batchSize,
		"batch_delay":  batchDelay.String(),
		"send_timeout": sendTimeout.String(),
		"selection":    sel.Describe(),
	})
	sess := &Session{
		ID:        req.SessionID,
		SenderKey: snd.Key,
		Subject:   req.Subject,
		HTML:      req.Template,
		Config:    cfgSnapshot,
		Total:     len(contacts),
		Status:    SessionRunning,
	}
	if err := en.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Info("campaign run started",
		"session_id", sess.ID, "sender_key", snd.Key, "total", sess.Total, "batch_size", batchSize)
	en.publish(ctx, &progress.Event{
		Type: progress.EventRunStarted, SessionID: sess.ID, Total: sess.Total,
	})

	result := &Result{SessionID: sess.ID, Total: sess.Total}
	cancelled := false

	batch := 0
	for start := 0; start < len(contacts); start += batchSize {
		end := start + batchSize
		if end > len(contacts) {
			end = len(contacts)
		}
		batch++

		en.publish(ctx, &progress.Event{
			Type: progress.EventBatchStarted, SessionID: sess.ID, Batch: batch,
			Index: start, Total: sess.Total,
		})

		for i, c := range contacts[start:end] {
			index := start + i + 1

			if ctx.Err() != nil {
				cancelled = true
				break
			}

			en.sendOne(ctx, sess, snd, transport, req, c, index, result)
			sess.CurrentIndex = index
		}
		if cancelled {
			break
		}

		sess.Sent = result.EmailsSent
		sess.Failed = result.FailedCount
		if err := en.sessions.UpdateProgress(ctx, sess); err != nil {
			logger.Warn("session checkpoint failed", "session_id", sess.ID, "error", err.Error())
		}

		en.publish(ctx, &progress.Event{
			Type: progress.EventBatchCompleted, SessionID: sess.ID, Batch: batch,
			Sent: result.EmailsSent, Failed: result.FailedCount,
			Remaining: len(contacts) - end, Total: sess.Total,
		})

		if end < len(contacts) && batchDelay > 0 {
			select {
			case <-ctx.Done():
				cancelled = true
			case <-time.After(batchDelay):
			}
			if cancelled {
				break
			}
		}
	}

	en.finish(sess, snd, req, result, cancelled)
	return result, nil
}

// sendOne validates, renders and sends a single contact's message.
// Every failure path increments the failure count and continues.
func (en *Engine) sendOne(
	ctx context.Context,
	sess *Session,
	snd *sender.Sender,
	transport Transport,
	req *Request,
	c *contact.Contact,
	index int,
	result *Result,
) {
	percent := progress.PercentOf(index, sess.Total)
	address := strings.TrimSpace(c.Email)
	if address == "" {
		// Blank addresses are skipped silently, not counted as failures.
		return
	}

	en.publish(ctx, &progress.Event{
		Type: progress.EventEmailStarted, SessionID: sess.ID,
		Email: address, Index: index, Percent: percent, Total: sess.Total,
	})

	if !contact.ValidEmail(address) {
		en.recordFailure(ctx, sess, result, address, index, percent, "Invalid email format")
		return
	}

	attrs := c.Attributes()
	subject := en.renderer.Render(req.Subject, attrs)
	html := en.renderer.Render(req.Template, attrs)

	msg := &Message{
		From:      snd.FromHeader(),
		To:        address,
		Subject:   subject,
		HTML:      html,
		PlainText: template.PlainText(html),
		Tags: map[string]string{
			"session_id":  sess.ID,
			"campaign":    sess.ID,
			"environment": en.environment,
			"contact_id":  strconv.FormatInt(c.ID, 10),
		},
		Reference: fmt.Sprintf("%s-%d", sess.ID, c.ID),
		APIKey:    snd.APIKey,
	}

	if en.limiter != nil {
		if err := en.limiter.Wait(ctx, snd.Key); err != nil {
			// Cancelled while waiting for a slot; the run loop stops at
			// the next contact boundary.
			return
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, en.sendTimeoutFor(req))
	emailID, err := transport.Send(sendCtx, msg)
	cancel()
	if err != nil {
		en.recordFailure(ctx, sess, result, address, index, percent, err.Error())
		return
	}

	result.EmailsSent++

	// Local bookkeeping event so status projection works before any
	// provider webhook arrives.
	sent := &event.Event{
		EventID:    fmt.Sprintf("local-%s-%d", sess.ID, c.ID),
		Type:       event.TypeSent,
		SenderKey:  snd.Key,
		EmailID:    emailID,
		FromEmail:  snd.FromEmail,
		ToEmail:    address,
		Subject:    subject,
		OccurredAt: time.Now(),
	}
	if err := en.events.Append(ctx, sent); err != nil {
		logger.Warn("send bookkeeping event failed",
			"session_id", sess.ID, "email", address, "error", err.Error())
	}

	en.publish(ctx, &progress.Event{
		Type: progress.EventEmailSent, SessionID: sess.ID,
		Email: address, Index: index, Percent: percent, Total: sess.Total,
	})
}

func (en *Engine) sendTimeoutFor(req *Request) time.Duration {
	if req.SendTimeout > 0 {
		return req.SendTimeout
	}
	return en.sendTimeout
}

func (en *Engine) recordFailure(ctx context.Context, sess *Session, result *Result, address string, index, percent int, reason string) {
	result.FailedCount++
	if len(result.Failures) < maxSampleFailures {
		result.Failures = append(result.Failures, fmt.Sprintf("%s: %s", address, reason))
	}
	logger.Warn("send failed", "session_id", sess.ID, "email", address, "reason", reason)
	en.publish(ctx, &progress.Event{
		Type: progress.EventEmailFailed, SessionID: sess.ID,
		Email: address, Index: index, Percent: percent, Error: reason, Total: sess.Total,
	})
}

func (en *Engine) finish(sess *Session, snd *sender.Sender, req *Request, result *Result, cancelled bool) {
	// Post-run bookkeeping must not depend on the request context, which
	// may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess.Sent = result.EmailsSent
	sess.Failed = result.FailedCount
	if cancelled {
		sess.Status = SessionCancelled
		sess.Error = "cancelled"
	} else {
		sess.Status = SessionCompleted
	}
	if err := en.sessions.Finish(ctx, sess); err != nil {
		logger.Warn("session finish failed", "session_id", sess.ID, "error", err.Error())
	}

	if result.EmailsSent > 0 {
		if err := en.senders.RecordUsage(ctx, snd.Key, result.EmailsSent); err != nil {
			logger.Warn("sender usage update failed", "sender_key", snd.Key, "error", err.Error())
		}
	}

	// The last-used template is remembered after every run, even one
	// where every send failed.
	tpl := &template.Template{SenderKey: snd.Key, Subject: req.Subject, HTML: req.Template}
	if err := en.templates.Save(ctx, tpl); err != nil {
		logger.Warn("template save failed", "sender_key", snd.Key, "error", err.Error())
	}

	rate := 0.0
	attempted := result.EmailsSent + result.FailedCount
	if attempted > 0 {
		rate = float64(result.EmailsSent) / float64(attempted) * 100
	}

	if cancelled {
		result.Message = fmt.Sprintf("Run cancelled after %d of %d contacts", sess.CurrentIndex, sess.Total)
		en.publish(ctx, &progress.Event{
			Type: progress.EventRunFailed, SessionID: sess.ID,
			Sent: result.EmailsSent, Failed: result.FailedCount, Error: "cancelled",
		})
	} else {
		result.Message = fmt.Sprintf("Campaign completed: %d sent, %d failed", result.EmailsSent, result.FailedCount)
		en.publish(ctx, &progress.Event{
			Type: progress.EventRunCompleted, SessionID: sess.ID,
			Sent: result.EmailsSent, Failed: result.FailedCount, SuccessRate: rate,
		})
	}

	logger.Info("campaign run finished",
		"session_id", sess.ID, "sender_key", snd.Key, "sent", result.EmailsSent,
		"failed", result.FailedCount, "status", sess.Status)
}

func (en *Engine) publish(ctx context.Context, ev *progress.Event) {
	if en.hub != nil {
		en.hub.Publish(ctx, ev)
	}
}
