package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/id"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/retry"
)

// UserStore lists broadcast-eligible users.
type UserStore interface {
	ListNotifiable(ctx context.Context) ([]domain.User, error)
}

// FailedQueue is the durable holding area for sends that exhausted retry.
type FailedQueue interface {
	Put(ctx context.Context, e *domain.FailedNotification) error
	List(ctx context.Context) ([]domain.FailedNotification, error)
	Delete(ctx context.Context, entryID string) error
	RecordRetry(ctx context.Context, entryID string, retryCount int, lastRetryMS int64) error
}

// FeedStore records successful deliveries for the in-app unread feed.
type FeedStore interface {
	Put(ctx context.Context, n *domain.Notification) error
}

// Mailer sends one email call; BatchMailer chunks and paces bulk sends.
type Mailer interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

type BatchMailer interface {
	SendBatch(ctx context.Context, recipients []string, subject, body string) (unsent []string, err error)
}

type DiscordSender interface {
	SendMessage(ctx context.Context, webhookURL, content string) error
}

type PushSender interface {
	SendPush(ctx context.Context, target, message string) error
}

// DeadLetterArchive keeps terminally dropped entries for manual inspection.
type DeadLetterArchive interface {
	StoreDropped(ctx context.Context, e *domain.FailedNotification) error
}

// Limiter guards outbound sends: Check bounds per-destination volume,
// Acquire bounds aggregate throughput.
type Limiter interface {
	Check(identity string) bool
	Acquire() error
}

// Report summarizes one broadcast.
type Report struct {
	Eligible int `json:"eligible"`
	Sent     int `json:"sent"`
	Queued   int `json:"queued"`
}

// SweepReport summarizes one failed-queue sweep.
type SweepReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Dropped   int `json:"dropped"`
}

type Config struct {
	Workers            int
	Retry              retry.Config
	FailedRetryCeiling int
	SendTimeout        time.Duration
}

type Service interface {
	BroadcastArticle(ctx context.Context, article *domain.Article) (*Report, error)
	ProcessFailedNotifications(ctx context.Context) (*SweepReport, error)
}

type ServiceDeps struct {
	Users   UserStore
	Queue   FailedQueue
	Feed    FeedStore
	Mailer  Mailer
	Batch   BatchMailer
	Discord DiscordSender
	Push    PushSender
	Archive DeadLetterArchive
	Limiter Limiter
	Config  Config
}

type service struct {
	users   UserStore
	queue   FailedQueue
	feed    FeedStore
	mailer  Mailer
	batch   BatchMailer
	discord DiscordSender
	push    PushSender
	archive DeadLetterArchive
	limiter Limiter
	cfg     Config
}

func NewService(deps ServiceDeps) Service {
	if deps.Config.Workers <= 0 {
		deps.Config.Workers = 4
	}
	return &service{
		users:   deps.Users,
		queue:   deps.Queue,
		feed:    deps.Feed,
		mailer:  deps.Mailer,
		batch:   deps.Batch,
		discord: deps.Discord,
		push:    deps.Push,
		archive: deps.Archive,
		limiter: deps.Limiter,
		cfg:     deps.Config,
	}
}

// sendJob is one user/channel delivery within a broadcast.
type sendJob struct {
	user        domain.User
	channel     domain.Channel
	destination string
}

// BroadcastArticle fans the article out to every eligible user per channel.
// One user's failure never aborts the broadcast: exhausted sends are queued
// for the sweep instead. Cancelling ctx stops issuing new sends; in-flight
// sends finish.
func (s *service) BroadcastArticle(ctx context.Context, article *domain.Article) (*Report, error) {
	if article == nil || article.ArticleID == "" {
		return nil, fmt.Errorf("article required: %w", domain.ErrBadRequest)
	}
	users, err := s.users.ListNotifiable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load eligible users: %w", err)
	}

	var (
		emailUsers []domain.User
		jobs       []sendJob
	)
	for _, u := range users {
		if u.WantsChannel(domain.ChannelEmail) {
			emailUsers = append(emailUsers, u)
		}
		if u.WantsChannel(domain.ChannelDiscord) {
			jobs = append(jobs, sendJob{user: u, channel: domain.ChannelDiscord, destination: u.DiscordWebhook})
		}
		if u.WantsChannel(domain.ChannelPush) {
			jobs = append(jobs, sendJob{user: u, channel: domain.ChannelPush, destination: u.PushTarget})
		}
	}

	report := &Report{Eligible: len(emailUsers) + len(jobs)}
	var mu sync.Mutex

	s.broadcastEmail(ctx, article, emailUsers, report, &mu)
	s.fanOut(ctx, article, jobs, report, &mu)

	slog.Info("broadcast finished",
		"article_id", article.ArticleID,
		"eligible", report.Eligible,
		"sent", report.Sent,
		"queued", report.Queued)
	return report, nil
}

// broadcastEmail delivers in provider-sized chunks. Recipients in a failed
// chunk are queued individually so the sweep can replay them one by one.
func (s *service) broadcastEmail(ctx context.Context, article *domain.Article, users []domain.User, report *Report, mu *sync.Mutex) {
	if len(users) == 0 {
		return
	}
	recipients := make([]string, len(users))
	for i, u := range users {
		recipients[i] = u.Email
	}

	subject, body := emailPayload(article)
	unsent, err := s.batch.SendBatch(ctx, recipients, subject, body)

	unsentSet := make(map[string]bool, len(unsent))
	for _, r := range unsent {
		unsentSet[r] = true
	}

	// Iterate users, not addresses: two accounts sharing an address each
	// get their own feed or queue entry.
	for i := range users {
		u := &users[i]
		if !unsentSet[u.Email] {
			s.recordDelivery(ctx, u, article, domain.ChannelEmail, subject)
			mu.Lock()
			report.Sent++
			mu.Unlock()
			continue
		}
		s.enqueueFailure(ctx, u, article, domain.ChannelEmail, u.Email, subject, body, err)
		mu.Lock()
		report.Queued++
		mu.Unlock()
	}
}

// fanOut runs discord/push jobs through a bounded worker pool so a broad
// user base cannot stampede the limiter.
func (s *service) fanOut(ctx context.Context, article *domain.Article, jobs []sendJob, report *Report, mu *sync.Mutex) {
	if len(jobs) == 0 {
		return
	}
	queue := make(chan sendJob)
	var wg sync.WaitGroup
	for range s.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				s.runJob(ctx, article, j, report, mu)
			}
		}()
	}
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			// Stop issuing; queue what never got a chance.
			s.enqueueFailure(ctx, &j.user, article, j.channel, j.destination, "", "", ctx.Err())
			mu.Lock()
			report.Queued++
			mu.Unlock()
		case queue <- j:
		}
	}
	close(queue)
	wg.Wait()
}

func (s *service) runJob(ctx context.Context, article *domain.Article, j sendJob, report *Report, mu *sync.Mutex) {
	message := channelPayload(j.channel, article)
	err := s.sendWithPolicy(ctx, j.channel, j.destination, "", message)
	if err != nil {
		s.enqueueFailure(ctx, &j.user, article, j.channel, j.destination, "", message, err)
		mu.Lock()
		report.Queued++
		mu.Unlock()
		return
	}
	s.recordDelivery(ctx, &j.user, article, j.channel, message)
	mu.Lock()
	report.Sent++
	mu.Unlock()
}

// sendWithPolicy is the guarded send path: sliding-window check per
// destination, then token-bucket acquisition and the channel call under the
// retry budget. A timeout counts as one failed attempt; a rate refusal
// aborts the budget immediately.
func (s *service) sendWithPolicy(ctx context.Context, channel domain.Channel, destination, subject, message string) error {
	if !s.limiter.Check(destination) {
		return fmt.Errorf("destination %s: %w", destination, domain.ErrRateExceeded)
	}
	cfg := s.cfg.Retry
	cfg.Name = string(channel) + " send"
	return retry.Do(ctx, cfg, func(ctx context.Context) error {
		if err := s.limiter.Acquire(); err != nil {
			return err
		}
		sctx := ctx
		if s.cfg.SendTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
			defer cancel()
		}
		switch channel {
		case domain.ChannelEmail:
			return s.mailer.SendEmail(sctx, []string{destination}, subject, message)
		case domain.ChannelDiscord:
			return s.discord.SendMessage(sctx, destination, message)
		case domain.ChannelPush:
			return s.push.SendPush(sctx, destination, message)
		}
		return fmt.Errorf("unknown channel %q: %w", channel, domain.ErrBadRequest)
	})
}

// ProcessFailedNotifications replays the queue through the same retry
// policy. Entries that succeed are removed; entries past the ceiling are
// archived and dropped; the rest stay with an updated retry count.
func (s *service) ProcessFailedNotifications(ctx context.Context) (*SweepReport, error) {
	entries, err := s.queue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed notifications: %w", err)
	}

	report := &SweepReport{}
	for i := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		e := entries[i]
		report.Processed++

		dest := e.Destination
		if e.Channel == domain.ChannelEmail {
			dest = e.Email
		}
		err := s.sendWithPolicy(ctx, e.Channel, dest, e.Subject, e.Message)
		if err == nil {
			if derr := s.queue.Delete(ctx, e.EntryID); derr != nil {
				slog.Warn("failed to remove replayed entry", "entry_id", e.EntryID, "err", derr)
			}
			report.Succeeded++
			continue
		}

		e.RetryCount++
		e.LastRetryTime = time.Now().UnixMilli()
		if e.RetryCount > s.cfg.FailedRetryCeiling {
			s.drop(ctx, &e, err)
			report.Dropped++
			continue
		}
		if uerr := s.queue.RecordRetry(ctx, e.EntryID, e.RetryCount, e.LastRetryTime); uerr != nil {
			slog.Warn("failed to record retry", "entry_id", e.EntryID, "err", uerr)
		}
	}
	return report, nil
}

// drop removes an entry past the retry ceiling, archiving it first.
// Dropping is terminal for the entry but never fatal to the sweep.
func (s *service) drop(ctx context.Context, e *domain.FailedNotification, cause error) {
	slog.Error("dropping notification past retry ceiling",
		"entry_id", e.EntryID,
		"user_id", e.UserID,
		"article_id", e.ArticleID,
		"channel", e.Channel,
		"retries", e.RetryCount,
		"err", cause)
	if aerr := s.archive.StoreDropped(ctx, e); aerr != nil {
		slog.Warn("failed to archive dropped entry", "entry_id", e.EntryID, "err", aerr)
	}
	if derr := s.queue.Delete(ctx, e.EntryID); derr != nil {
		slog.Warn("failed to delete dropped entry", "entry_id", e.EntryID, "err", derr)
	}
}

func (s *service) enqueueFailure(ctx context.Context, u *domain.User, article *domain.Article, channel domain.Channel, destination, subject, message string, cause error) {
	// The queue write must survive broadcast cancellation, otherwise a
	// cancelled broadcast loses track of its undelivered sends.
	ctx = context.WithoutCancel(ctx)
	entry := &domain.FailedNotification{
		EntryID:   id.New(),
		UserID:    u.UserID,
		ArticleID: article.ArticleID,
		Channel:   channel,
		Error:     errString(cause),
		Message:   message,
		Subject:   subject,
		CreatedAt: time.Now().UnixMilli(),
	}
	// Rebuild the payload when the caller never rendered one (a send that
	// was cancelled before it was issued); the sweep replays entries
	// verbatim, and an empty body can never deliver.
	if channel == domain.ChannelEmail {
		entry.Email = destination
		entry.Subject, entry.Message = emailPayload(article)
	} else {
		entry.Destination = destination
		if entry.Message == "" {
			entry.Message = channelPayload(channel, article)
		}
	}
	if err := s.queue.Put(ctx, entry); err != nil {
		slog.Error("failed to enqueue failed notification",
			"user_id", u.UserID, "article_id", article.ArticleID, "channel", channel, "err", err)
	}
}

func (s *service) recordDelivery(ctx context.Context, u *domain.User, article *domain.Article, channel domain.Channel, message string) {
	now := time.Now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		UserID:         u.UserID,
		ArticleID:      article.ArticleID,
		Channel:        channel,
		Message:        message,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.feed.Put(ctx, n); err != nil {
		slog.Warn("failed to record feed entry", "user_id", u.UserID, "article_id", article.ArticleID, "err", err)
	}
}

func emailPayload(article *domain.Article) (subject, body string) {
	subject = "New article: " + article.Title
	body = article.Summary
	if body != "" {
		body += "\n\n"
	}
	body += article.URL
	return subject, body
}

func channelPayload(channel domain.Channel, article *domain.Article) string {
	switch channel {
	case domain.ChannelDiscord:
		return fmt.Sprintf("**%s**\n%s", article.Title, article.URL)
	default:
		return fmt.Sprintf("%s %s", article.Title, article.URL)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
