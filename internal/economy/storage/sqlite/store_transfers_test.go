package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/domain/review"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/id"
)

func seedTransfer(t *testing.T, store *Store, schoolID, from, to string, amount int64) string {
	t.Helper()
	transferID := id.MustNewID()
	err := store.CreateTransfer(context.Background(), storage.PendingTransfer{
		ID:          transferID,
		SchoolID:    schoolID,
		FromUserID:  from,
		ToUserID:    to,
		Amount:      money.Cents(amount),
		Description: "snack money",
	})
	if err != nil {
		t.Fatalf("CreateTransfer() error = %v", err)
	}
	return transferID
}

func TestApproveTransferMovesMoney(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedStudent(t, store, "school-1", "5a", "bob", 0)
	seedAccount(t, store, "school-1", "alice", 1000)
	seedAccount(t, store, "school-1", "bob", 0)

	transferID := seedTransfer(t, store, "school-1", "alice", "bob", 400)

	transfer, err := store.ApproveTransfer(ctx, "school-1", transferID, "teacher-1")
	if err != nil {
		t.Fatalf("ApproveTransfer() error = %v", err)
	}
	if transfer.Status != review.StatusApproved {
		t.Errorf("status = %q, want %q", transfer.Status, review.StatusApproved)
	}
	if transfer.ReviewerID != "teacher-1" {
		t.Errorf("reviewer = %q, want teacher-1", transfer.ReviewerID)
	}
	if got := accountBalance(t, store, "school-1", "alice"); got != 600 {
		t.Errorf("sender balance = %v, want 600", got)
	}
	if got := accountBalance(t, store, "school-1", "bob"); got != 400 {
		t.Errorf("recipient balance = %v, want 400", got)
	}
	checkLedgerReconciles(t, store, "school-1", "alice")
	checkLedgerReconciles(t, store, "school-1", "bob")
}

// Funds are checked when the teacher approves, not when the student submits.
// A submission that outruns the sender's balance fails at review and leaves
// both balances untouched.
func TestApproveTransferInsufficientFundsAtReview(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedStudent(t, store, "school-1", "5a", "bob", 0)
	seedAccount(t, store, "school-1", "alice", 1000)
	seedAccount(t, store, "school-1", "bob", 0)

	first := seedTransfer(t, store, "school-1", "alice", "bob", 800)
	second := seedTransfer(t, store, "school-1", "alice", "bob", 800)

	if _, err := store.ApproveTransfer(ctx, "school-1", first, "teacher-1"); err != nil {
		t.Fatalf("ApproveTransfer(first) error = %v", err)
	}
	_, err := store.ApproveTransfer(ctx, "school-1", second, "teacher-1")
	wantCode(t, err, apperrors.CodeInsufficientFunds)

	if got := accountBalance(t, store, "school-1", "alice"); got != 200 {
		t.Errorf("sender balance = %v, want 200", got)
	}
	if got := accountBalance(t, store, "school-1", "bob"); got != 800 {
		t.Errorf("recipient balance = %v, want 800", got)
	}
}

// Two simultaneous approvals drawing on the same balance must serialize: the
// loser blocks on the write lock, re-reads the committed balance, and fails
// with InsufficientFunds rather than a raw busy error.
func TestApproveTransferConcurrentDoubleSpend(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedStudent(t, store, "school-1", "5a", "bob", 0)
	seedAccount(t, store, "school-1", "alice", 500)
	seedAccount(t, store, "school-1", "bob", 0)

	first := seedTransfer(t, store, "school-1", "alice", "bob", 500)
	second := seedTransfer(t, store, "school-1", "alice", "bob", 500)

	results := make(chan error, 2)
	for _, transferID := range []string{first, second} {
		go func() {
			_, err := store.ApproveTransfer(ctx, "school-1", transferID, "teacher-1")
			results <- err
		}()
	}

	var errs []error
	for range 2 {
		errs = append(errs, <-results)
	}
	if (errs[0] == nil) == (errs[1] == nil) {
		t.Fatalf("ApproveTransfer() concurrent errors = [%v, %v], want exactly one failure", errs[0], errs[1])
	}
	for _, err := range errs {
		if err != nil {
			wantCode(t, err, apperrors.CodeInsufficientFunds)
		}
	}

	if got := accountBalance(t, store, "school-1", "alice"); got != 0 {
		t.Errorf("sender balance = %v, want 0", got)
	}
	if got := accountBalance(t, store, "school-1", "bob"); got != 500 {
		t.Errorf("recipient balance = %v, want 500", got)
	}
	checkLedgerReconciles(t, store, "school-1", "alice")
	checkLedgerReconciles(t, store, "school-1", "bob")
}

func TestDenyTransferLeavesBalances(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedStudent(t, store, "school-1", "5a", "bob", 0)
	seedAccount(t, store, "school-1", "alice", 1000)
	seedAccount(t, store, "school-1", "bob", 0)

	transferID := seedTransfer(t, store, "school-1", "alice", "bob", 400)

	transfer, err := store.DenyTransfer(ctx, "school-1", transferID, "teacher-1", "ask in person first")
	if err != nil {
		t.Fatalf("DenyTransfer() error = %v", err)
	}
	if transfer.Status != review.StatusDenied {
		t.Errorf("status = %q, want %q", transfer.Status, review.StatusDenied)
	}
	if transfer.DenialReason != "ask in person first" {
		t.Errorf("denial reason = %q", transfer.DenialReason)
	}
	if got := accountBalance(t, store, "school-1", "alice"); got != 1000 {
		t.Errorf("sender balance = %v, want 1000", got)
	}
}

// Resolved transfers are terminal; a second review attempt fails and nothing
// moves twice.
func TestReviewTransferTwice(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedStudent(t, store, "school-1", "5a", "bob", 0)
	seedAccount(t, store, "school-1", "alice", 1000)
	seedAccount(t, store, "school-1", "bob", 0)

	transferID := seedTransfer(t, store, "school-1", "alice", "bob", 400)
	if _, err := store.ApproveTransfer(ctx, "school-1", transferID, "teacher-1"); err != nil {
		t.Fatalf("ApproveTransfer() error = %v", err)
	}

	_, err := store.ApproveTransfer(ctx, "school-1", transferID, "teacher-1")
	wantCode(t, err, apperrors.CodeTransferAlreadyResolved)
	_, err = store.DenyTransfer(ctx, "school-1", transferID, "teacher-1", "")
	wantCode(t, err, apperrors.CodeTransferAlreadyResolved)

	if got := accountBalance(t, store, "school-1", "bob"); got != 400 {
		t.Errorf("recipient balance = %v, want 400", got)
	}
}

func TestListTransfersByStatus(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedStudent(t, store, "school-1", "5a", "bob", 0)
	seedAccount(t, store, "school-1", "alice", 1000)
	seedAccount(t, store, "school-1", "bob", 0)

	first := seedTransfer(t, store, "school-1", "alice", "bob", 100)
	seedTransfer(t, store, "school-1", "alice", "bob", 200)

	if _, err := store.ApproveTransfer(ctx, "school-1", first, "teacher-1"); err != nil {
		t.Fatalf("ApproveTransfer() error = %v", err)
	}

	pending, err := store.ListTransfersByStatus(ctx, "school-1", review.StatusPending)
	if err != nil {
		t.Fatalf("ListTransfersByStatus() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Amount != 200 {
		t.Errorf("pending = %+v, want one transfer of 200", pending)
	}

	mine, err := store.ListTransfersByUser(ctx, "school-1", "bob")
	if err != nil {
		t.Fatalf("ListTransfersByUser() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListTransfersByUser() returned %d transfers, want 2", len(mine))
	}
}

func TestGetTransferNotFound(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	_, err := store.GetTransfer(context.Background(), "school-1", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTransfer() error = %v, want ErrNotFound", err)
	}
}
