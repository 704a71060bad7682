package dispute

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"zone4/internal/models"
	"zone4/internal/repositories"
	"zone4/internal/services/ledger"
	"zone4/internal/services/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeTx runs the closure without a real database transaction.
type fakeTx struct{}

func (fakeTx) Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error {
	return fc(nil)
}

type fakeDisputeRepo struct {
	mu       sync.Mutex
	disputes map[string]*models.Dispute
}

func newFakeDisputeRepo() *fakeDisputeRepo {
	return &fakeDisputeRepo{disputes: make(map[string]*models.Dispute)}
}

func (f *fakeDisputeRepo) WithTx(tx *gorm.DB) repositories.DisputeRepository { return f }

func (f *fakeDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.disputes[d.ID] = &cp
	return nil
}

func (f *fakeDisputeRepo) FindByID(ctx context.Context, id string) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDisputeRepo) FindByTransactionID(ctx context.Context, transactionID string) ([]models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Dispute
	for _, d := range f.disputes {
		if d.TransactionID == transactionID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDisputeRepo) HasOpenDispute(ctx context.Context, transactionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.disputes {
		if d.TransactionID == transactionID && d.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDisputeRepo) ListByStatus(ctx context.Context, statuses []string, limit, offset int) ([]models.Dispute, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Dispute
	for _, d := range f.disputes {
		for _, s := range statuses {
			if d.Status == s {
				out = append(out, *d)
				break
			}
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeDisputeRepo) AdvanceStatus(ctx context.Context, id, expectedStatus, newStatus, resolution string, adminID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[id]
	if !ok || d.Status != expectedStatus {
		return false, nil
	}
	d.Status = newStatus
	if resolution != "" {
		d.Resolution = resolution
	}
	if adminID != 0 {
		d.ResolvedByAdminID = &adminID
	}
	return true, nil
}

// fakeLedger records the calls the register makes against the ledger.
type fakeLedger struct {
	tx *models.Transaction

	markDisputedErr error
	markedWith      []string
	resolvedWith    []ledger.Outcome
	settledWith     []ledger.Outcome
}

func (f *fakeLedger) Create(ctx context.Context, req ledger.CreateRequest) (*models.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) AgentConfirmTransfer(ctx context.Context, txID string, agentID uint, expectedStatus string) (*models.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) CustomerConfirmReceipt(ctx context.Context, txID string, customerID uint, expectedStatus string) (*models.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) CancelBeforeFulfillment(ctx context.Context, txID string, customerID uint, expectedStatus string) (*models.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) MarkDisputed(ctx context.Context, dbtx *gorm.DB, txID, expectedStatus, disputeID string) error {
	if f.markDisputedErr != nil {
		return f.markDisputedErr
	}
	f.markedWith = append(f.markedWith, disputeID)
	f.tx.Status = models.TransactionStatusDisputed
	f.tx.DisputeID = &disputeID
	return nil
}

func (f *fakeLedger) ResolveDispute(ctx context.Context, dbtx *gorm.DB, txID string, outcome ledger.Outcome) error {
	f.resolvedWith = append(f.resolvedWith, outcome)
	if outcome == ledger.OutcomeRelease {
		f.tx.Status = models.TransactionStatusCompleted
		f.tx.EscrowStatus = models.EscrowStatusReleasedToAgent
	} else {
		f.tx.Status = models.TransactionStatusCancelled
		f.tx.EscrowStatus = models.EscrowStatusReturnedToCustomer
	}
	return nil
}

func (f *fakeLedger) SettleResolved(ctx context.Context, tx *models.Transaction, outcome ledger.Outcome) {
	f.settledWith = append(f.settledWith, outcome)
}

func (f *fakeLedger) Get(ctx context.Context, id string, actor *models.UserClaims) (*models.Transaction, error) {
	if f.tx == nil || f.tx.ID != id {
		return nil, ledger.ErrTransactionNotFound
	}
	if actor != nil && actor.Role != models.RoleAdmin && !f.tx.IsParticipant(actor.UserID) {
		return nil, ledger.ErrNotParticipant
	}
	cp := *f.tx
	return &cp, nil
}

func (f *fakeLedger) List(ctx context.Context, actor *models.UserClaims, req ledger.ListRequest) ([]models.Transaction, int64, error) {
	return nil, 0, nil
}

type capturingPublisher struct {
	events []notification.StateChangeEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event notification.StateChangeEvent) {
	p.events = append(p.events, event)
}

type disputeFixture struct {
	repo      *fakeDisputeRepo
	ledger    *fakeLedger
	publisher *capturingPublisher
	svc       Service
}

func newDisputeFixture(status string) *disputeFixture {
	f := &disputeFixture{
		repo: newFakeDisputeRepo(),
		ledger: &fakeLedger{tx: &models.Transaction{
			ID:           "tx-1",
			CustomerID:   1,
			AgentID:      2,
			Status:       status,
			EscrowStatus: models.EscrowStatusHeld,
		}},
		publisher: &capturingPublisher{},
	}
	f.svc = NewService(fakeTx{}, f.repo, f.ledger, f.publisher)
	return f
}

func customerClaims() *models.UserClaims {
	return &models.UserClaims{UserID: 1, Role: models.RoleCustomer}
}

func validFileRequest() FileRequest {
	return FileRequest{
		TransactionID:             "tx-1",
		ExpectedTransactionStatus: models.TransactionStatusFundsInEscrow,
		IssueType:                 models.IssueTypePaymentNotReceived,
		Description:               "I sent the transfer two days ago and nothing arrived",
	}
}

func TestFileDispute(t *testing.T) {
	t.Run("creates the dispute and freezes the transaction together", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)

		d, err := f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
		require.NoError(t, err)

		assert.Equal(t, models.DisputeStatusOpen, d.Status)
		assert.Equal(t, uint(1), d.ReportedByUserID)
		require.Len(t, f.ledger.markedWith, 1)
		assert.Equal(t, d.ID, f.ledger.markedWith[0])
		assert.Equal(t, models.TransactionStatusDisputed, f.ledger.tx.Status)

		require.Len(t, f.publisher.events, 1)
		assert.Equal(t, models.TransactionStatusDisputed, f.publisher.events[0].Status)
		assert.Equal(t, d.ID, f.publisher.events[0].DisputeID)
	})

	t.Run("rejects invalid payloads", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*FileRequest)
		}{
			{"missing transaction", func(r *FileRequest) { r.TransactionID = "" }},
			{"missing token", func(r *FileRequest) { r.ExpectedTransactionStatus = "" }},
			{"unknown issue type", func(r *FileRequest) { r.IssueType = "vibes" }},
			{"description too short", func(r *FileRequest) { r.Description = "bad trade" }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
				req := validFileRequest()
				tt.mutate(&req)

				_, err := f.svc.FileDispute(context.Background(), customerClaims(), req)
				assert.ErrorIs(t, err, ErrValidation)
				assert.Empty(t, f.ledger.markedWith)
			})
		}
	})

	t.Run("non-participants cannot file", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		stranger := &models.UserClaims{UserID: 42, Role: models.RoleCustomer}

		_, err := f.svc.FileDispute(context.Background(), stranger, validFileRequest())
		assert.ErrorIs(t, err, ledger.ErrNotParticipant)
	})

	t.Run("terminal transactions are not disputable", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusCompleted)

		_, err := f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
		assert.ErrorIs(t, err, ErrNotDisputable)
	})

	t.Run("one open dispute per transaction", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)

		_, err := f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
		require.NoError(t, err)

		f.ledger.tx.Status = models.TransactionStatusFundsInEscrow
		_, err = f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
		assert.ErrorIs(t, err, ErrDisputeAlreadyOpen)
	})

	t.Run("a failed freeze surfaces and publishes nothing", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		f.ledger.markDisputedErr = ledger.ErrConcurrentModification

		_, err := f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
		assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
		assert.Empty(t, f.publisher.events)
	})
}

func TestAdvanceDispute(t *testing.T) {
	file := func(t *testing.T, f *disputeFixture) *models.Dispute {
		t.Helper()
		d, err := f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
		require.NoError(t, err)
		return d
	}
	underReview := func(t *testing.T, f *disputeFixture) *models.Dispute {
		t.Helper()
		d := file(t, f)
		_, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusUnderReview,
			ExpectedStatus: models.DisputeStatusOpen,
		})
		require.NoError(t, err)
		return d
	}

	t.Run("open to under_review", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := file(t, f)

		updated, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusUnderReview,
			ExpectedStatus: models.DisputeStatusOpen,
		})
		require.NoError(t, err)
		assert.Equal(t, models.DisputeStatusUnderReview, updated.Status)
		assert.Empty(t, f.ledger.resolvedWith)
	})

	t.Run("resolving settles the transaction in the same transaction", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := underReview(t, f)

		updated, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusResolved,
			ExpectedStatus: models.DisputeStatusUnderReview,
			Resolution:     "Agent provided proof of transfer, releasing escrow.",
			Outcome:        ledger.OutcomeRelease,
		})
		require.NoError(t, err)

		assert.Equal(t, models.DisputeStatusResolved, updated.Status)
		require.NotNil(t, updated.ResolvedByAdminID)
		assert.Equal(t, uint(9), *updated.ResolvedByAdminID)
		assert.Equal(t, []ledger.Outcome{ledger.OutcomeRelease}, f.ledger.resolvedWith)
		assert.Equal(t, []ledger.Outcome{ledger.OutcomeRelease}, f.ledger.settledWith)
		assert.Equal(t, models.TransactionStatusCompleted, f.ledger.tx.Status)
	})

	t.Run("escalation also takes an outcome", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := underReview(t, f)

		updated, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusEscalated,
			ExpectedStatus: models.DisputeStatusUnderReview,
			Resolution:     "Escalated to compliance, refunding the customer meanwhile.",
			Outcome:        ledger.OutcomeRefund,
		})
		require.NoError(t, err)
		assert.Equal(t, models.DisputeStatusEscalated, updated.Status)
		assert.Equal(t, []ledger.Outcome{ledger.OutcomeRefund}, f.ledger.resolvedWith)
		assert.Equal(t, models.TransactionStatusCancelled, f.ledger.tx.Status)
	})

	t.Run("terminal advance requires resolution notes", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := underReview(t, f)

		_, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusResolved,
			ExpectedStatus: models.DisputeStatusUnderReview,
			Outcome:        ledger.OutcomeRelease,
		})
		assert.ErrorIs(t, err, ErrResolutionRequired)
		assert.Empty(t, f.ledger.resolvedWith)
	})

	t.Run("terminal advance requires a known outcome", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := underReview(t, f)

		_, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusResolved,
			ExpectedStatus: models.DisputeStatusUnderReview,
			Resolution:     "Resolved without saying how to settle.",
			Outcome:        ledger.Outcome("split"),
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("disputes cannot close without review", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := file(t, f)

		for _, status := range []string{models.DisputeStatusResolved, models.DisputeStatusEscalated} {
			_, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
				NewStatus:      status,
				ExpectedStatus: models.DisputeStatusOpen,
				Resolution:     "Closing straight from open must not work.",
				Outcome:        ledger.OutcomeRelease,
			})
			assert.ErrorIs(t, err, ErrInvalidAdvance)
		}
		assert.Empty(t, f.ledger.resolvedWith)
	})

	t.Run("backwards moves are rejected", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := file(t, f)

		_, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusOpen,
			ExpectedStatus: models.DisputeStatusOpen,
		})
		assert.ErrorIs(t, err, ErrInvalidAdvance)
	})

	t.Run("stale expected status loses cleanly", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
		d := file(t, f)

		_, err := f.svc.AdvanceDispute(context.Background(), 9, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusUnderReview,
			ExpectedStatus: models.DisputeStatusOpen,
		})
		require.NoError(t, err)

		// Second admin still holding the "open" token.
		f.repo.disputes[d.ID].Status = models.DisputeStatusUnderReview
		_, err = f.svc.AdvanceDispute(context.Background(), 10, d.ID, AdvanceRequest{
			NewStatus:      models.DisputeStatusUnderReview,
			ExpectedStatus: models.DisputeStatusOpen,
		})
		assert.ErrorIs(t, err, ErrConcurrentResolution)
	})

	t.Run("unknown dispute", func(t *testing.T) {
		f := newDisputeFixture(models.TransactionStatusFundsInEscrow)

		_, err := f.svc.AdvanceDispute(context.Background(), 9, "missing", AdvanceRequest{
			NewStatus: models.DisputeStatusUnderReview,
		})
		assert.ErrorIs(t, err, ErrDisputeNotFound)
	})
}

func TestGet(t *testing.T) {
	f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
	d, err := f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
	require.NoError(t, err)

	t.Run("participants and admins can read", func(t *testing.T) {
		got, err := f.svc.Get(context.Background(), customerClaims(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)

		_, err = f.svc.Get(context.Background(), &models.UserClaims{UserID: 9, Role: models.RoleAdmin}, d.ID)
		assert.NoError(t, err)
	})

	t.Run("strangers cannot", func(t *testing.T) {
		stranger := &models.UserClaims{UserID: 42, Role: models.RoleCustomer}

		_, err := f.svc.Get(context.Background(), stranger, d.ID)
		assert.ErrorIs(t, err, ledger.ErrNotParticipant)

		_, err = f.svc.ListForTransaction(context.Background(), stranger, d.TransactionID)
		assert.ErrorIs(t, err, ledger.ErrNotParticipant)
	})

	t.Run("unknown dispute", func(t *testing.T) {
		_, err := f.svc.Get(context.Background(), customerClaims(), "missing")
		assert.ErrorIs(t, err, ErrDisputeNotFound)
	})
}

func TestListOpen(t *testing.T) {
	f := newDisputeFixture(models.TransactionStatusFundsInEscrow)
	_, err := f.svc.FileDispute(context.Background(), customerClaims(), validFileRequest())
	require.NoError(t, err)

	disputes, total, err := f.svc.ListOpen(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, disputes, 1)
	assert.True(t, disputes[0].IsOpen())
}
