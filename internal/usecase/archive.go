package usecase

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"gmail-archiver/internal/domain"
)

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// CredentialSource supplies the long-lived secrets for one invocation.
type CredentialSource interface {
	Credentials(ctx context.Context) (domain.Credentials, error)
}

// StaticCredentials is a CredentialSource for secrets injected at start-up.
type StaticCredentials domain.Credentials

func (s StaticCredentials) Credentials(context.Context) (domain.Credentials, error) {
	return domain.Credentials(s), nil
}

// Mailbox is an authenticated provider session.
type Mailbox interface {
	Messages(ctx context.Context, filter string) iter.Seq2[domain.MessageRef, error]
	Get(ctx context.Context, id string) (domain.MessageRecord, error)
}

// MailboxResolver turns secrets into a Mailbox, refreshing the access token.
type MailboxResolver interface {
	Resolve(ctx context.Context, creds domain.Credentials) (Mailbox, error)
}

// ResolverFunc adapts a function to MailboxResolver.
type ResolverFunc func(ctx context.Context, creds domain.Credentials) (Mailbox, error)

func (f ResolverFunc) Resolve(ctx context.Context, creds domain.Credentials) (Mailbox, error) {
	return f(ctx, creds)
}

type ObjectWriter interface {
	WriteMessage(ctx context.Context, namespace string, rec domain.MessageRecord) (string, error)
}

type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.RunRecord) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ArchiveInput struct {
	Filter    string
	Namespace string
	RunID     string
}

// ArchiveService copies every message matching a filter into object storage.
type ArchiveService struct {
	creds    CredentialSource
	resolver MailboxResolver
	writer   ObjectWriter
	runs     RunRecorder
	log      *slog.Logger
	now      func() time.Time
}

// NewArchiveService wires the orchestrator. runs may be nil to disable the
// run ledger; log may be nil to use slog.Default.
func NewArchiveService(c CredentialSource, r MailboxResolver, w ObjectWriter, runs RunRecorder, log *slog.Logger) (*ArchiveService, error) {
	if c == nil {
		return nil, errors.New("usecase: credential source must not be nil")
	}
	if r == nil {
		return nil, errors.New("usecase: mailbox resolver must not be nil")
	}
	if w == nil {
		return nil, errors.New("usecase: object writer must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ArchiveService{
		creds:    c,
		resolver: r,
		writer:   w,
		runs:     runs,
		log:      log,
		now:      time.Now,
	}, nil
}

// Archive resolves credentials, lists every matching id and then fetches and
// writes each message in list order. Per-message failures are counted and
// logged; only configuration, authentication and listing failures abort.
func (s *ArchiveService) Archive(ctx context.Context, in ArchiveInput) (domain.Summary, error) {
	filter := strings.TrimSpace(in.Filter)
	namespace := strings.TrimSpace(in.Namespace)
	if filter == "" {
		return domain.Summary{}, newError(ErrorConfig, "missing_filter_query", nil)
	}
	if namespace == "" {
		return domain.Summary{}, newError(ErrorConfig, "missing_namespace_segment", nil)
	}
	runID := strings.TrimSpace(in.RunID)
	if runID == "" {
		runID = newUUID()
	}

	log := s.log.With("run_id", runID, "namespace", namespace)
	started := s.now()
	summary, err := s.archive(ctx, log, filter, namespace)
	s.record(ctx, log, domain.RunRecord{
		RunID:      runID,
		Namespace:  namespace,
		Filter:     filter,
		Status:     runStatus(summary, err),
		ErrorCode:  errorCode(err),
		Summary:    summary,
		StartedAt:  started,
		FinishedAt: s.now(),
	})
	if err != nil {
		log.ErrorContext(ctx, "archive run failed", "code", CodeOf(err), "err", err)
		return summary, err
	}
	log.InfoContext(ctx, "archive run complete",
		"attempted", summary.Attempted, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

func (s *ArchiveService) archive(ctx context.Context, log *slog.Logger, filter, namespace string) (domain.Summary, error) {
	creds, err := s.creds.Credentials(ctx)
	if err != nil {
		return domain.Summary{}, newError(ErrorConfig, "secrets_load_error", err)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.RefreshToken == "" {
		return domain.Summary{}, newError(ErrorAuth, "missing_secret", nil)
	}

	mailbox, err := s.resolver.Resolve(ctx, creds)
	if err != nil {
		return domain.Summary{}, newError(ErrorAuth, "token_refresh_failed", err)
	}
	log.DebugContext(ctx, "credentials resolved")

	ids, err := listAll(ctx, mailbox, filter)
	if err != nil {
		return domain.Summary{}, err
	}
	log.InfoContext(ctx, "messages listed", "count", len(ids), "filter", filter)

	var summary domain.Summary
	for _, id := range ids {
		summary.Attempted++
		key, err := s.archiveOne(ctx, mailbox, namespace, id)
		if err != nil {
			summary.Failed++
			log.WarnContext(ctx, "message skipped", "message_id", id, "code", CodeOf(err), "err", err)
			continue
		}
		summary.Succeeded++
		log.DebugContext(ctx, "message archived", "message_id", id, "key", key)
	}
	return summary, nil
}

func listAll(ctx context.Context, mailbox Mailbox, filter string) ([]string, error) {
	var ids []string
	for ref, err := range mailbox.Messages(ctx, filter) {
		if err != nil {
			if status, ok := upstreamStatusCode(err); ok && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
				return nil, newError(ErrorAuth, "list_unauthorized", err)
			}
			return nil, newError(ErrorQuery, "list_failed", err)
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

func (s *ArchiveService) archiveOne(ctx context.Context, mailbox Mailbox, namespace, id string) (string, error) {
	rec, err := mailbox.Get(ctx, id)
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && (status == http.StatusNotFound || status == http.StatusGone) {
			return "", newError(ErrorNotFound, "message_not_found", err)
		}
		return "", newError(ErrorFetch, "message_fetch_failed", err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	key, err := s.writer.WriteMessage(ctx, namespace, rec)
	if err != nil {
		return "", newError(ErrorStorage, "object_write_failed", err)
	}
	return key, nil
}

func (s *ArchiveService) record(ctx context.Context, log *slog.Logger, run domain.RunRecord) {
	if s.runs == nil {
		return
	}
	if err := s.runs.RecordRun(ctx, run); err != nil {
		log.WarnContext(ctx, "run not recorded", "err", err)
	}
}

func runStatus(summary domain.Summary, err error) string {
	switch {
	case err != nil:
		return StatusFailed
	case summary.Failed > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return string(CodeOf(err))
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
