package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

type sentMail struct {
	subject    string
	body       string
	recipients []string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{subject: subject, body: body, recipients: recipients})
	return nil
}

func TestDeliverSuccessOnly(t *testing.T) {
	mailer := &fakeMailer{}
	sink := NewSink(mailer, []string{"ops@example.com"}, []string{"oncall@example.com"}, zap.NewNop())

	report := sync.NewReport("storefront to ledger")
	report.Add(sync.CategoryLedgerSuccess, "order 1 synced as N1")

	require.NoError(t, sink.Deliver(context.Background(), report))

	// No failures, so only the result list hears about the run.
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ops@example.com"}, mailer.sent[0].recipients)
	assert.Equal(t, "qbnx storefront to ledger: completed", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].body, "LEDGER SUCCESS: 1")
	assert.Contains(t, mailer.sent[0].body, "--- LEDGER SUCCESS ---")
	assert.Contains(t, mailer.sent[0].body, "order 1 synced as N1")
}

func TestDeliverWithErrors(t *testing.T) {
	mailer := &fakeMailer{}
	sink := NewSink(mailer, []string{"ops@example.com"}, []string{"oncall@example.com"}, zap.NewNop())

	report := sync.NewReport("storefront to ledger")
	report.Add(sync.CategoryLedgerSuccess, "order 1 synced as N1")
	report.Add(sync.CategoryLedgerOrder, "order 2: create failed")

	require.NoError(t, sink.Deliver(context.Background(), report))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "qbnx storefront to ledger: completed with errors", mailer.sent[0].subject)
	assert.Equal(t, []string{"oncall@example.com"}, mailer.sent[1].recipients)
	assert.Contains(t, mailer.sent[1].body, "LEDGER ORDER ERRORS: 1")
	assert.Contains(t, mailer.sent[1].body, "--- LEDGER ORDER ERRORS ---")
}

func TestDeliverEmptyReport(t *testing.T) {
	mailer := &fakeMailer{}
	sink := NewSink(mailer, []string{"ops@example.com"}, nil, zap.NewNop())

	require.NoError(t, sink.Deliver(context.Background(), sync.NewReport("inventory")))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "No records required syncing.\n", mailer.sent[0].body)
}

func TestDeliverFatalSubject(t *testing.T) {
	mailer := &fakeMailer{}
	sink := NewSink(mailer, []string{"ops@example.com"}, []string{"oncall@example.com"}, zap.NewNop())

	report := sync.NewReport("ledger to storefront")
	report.Add(sync.CategoryFatal, "authentication failed on ledger")

	require.NoError(t, sink.Deliver(context.Background(), report))
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "qbnx ledger to storefront: failed", mailer.sent[0].subject)
}

func TestDeliverSendFailure(t *testing.T) {
	mailer := &fakeMailer{err: fmt.Errorf("notify: send failed")}
	sink := NewSink(mailer, []string{"ops@example.com"}, nil, zap.NewNop())

	report := sync.NewReport("inventory")
	report.Add(sync.CategoryStorefrontSuccess, "inventory: 2 items updated")

	assert.Error(t, sink.Deliver(context.Background(), report))
}
