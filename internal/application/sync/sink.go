package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// Mailer delivers rendered run reports. The mailgun adapter implements it;
// when mail is disabled the adapter logs the body instead of sending.
type Mailer interface {
	Send(ctx context.Context, subject, body string, recipients []string) error
}

// Sink delivers run reports to their distribution lists: every run goes to
// the result list, failed records additionally to the error list
type Sink struct {
	mailer     Mailer
	resultList []string
	errorList  []string
	logger     *zap.Logger
}

// NewSink creates a report sink over the given mailer
func NewSink(mailer Mailer, resultList, errorList []string, logger *zap.Logger) *Sink {
	return &Sink{
		mailer:     mailer,
		resultList: resultList,
		errorList:  errorList,
		logger:     logger,
	}
}

// Deliver sends report to its lists. Both sends are attempted even when the
// first fails; the first failure is returned.
func (s *Sink) Deliver(ctx context.Context, report *sync.Report) error {
	body := report.Render()
	if body == "" {
		body = "No records required syncing.\n"
	} else {
		body = report.Summary() + "\n" + body
	}
	subject := fmt.Sprintf("qbnx %s: %s", report.Label, s.status(report))

	var firstErr error
	if len(s.resultList) > 0 {
		if err := s.mailer.Send(ctx, subject, body, s.resultList); err != nil {
			s.logger.Error("result report delivery failed", zap.Error(err))
			firstErr = err
		}
	}
	if report.HasErrors() && len(s.errorList) > 0 {
		if err := s.mailer.Send(ctx, subject, body, s.errorList); err != nil {
			s.logger.Error("error report delivery failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Sink) status(report *sync.Report) string {
	switch {
	case report.HasFatal():
		return "failed"
	case report.HasErrors():
		return "completed with errors"
	default:
		return "completed"
	}
}
