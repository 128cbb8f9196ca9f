package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/edutown/economy/internal/economy/domain/ledger"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
	"github.com/edutown/economy/internal/platform/id"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "economy.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func seedStudent(t *testing.T, store *Store, schoolID, townClass, userID string, salary money.Cents) {
	t.Helper()
	student := storage.Student{
		ID:          userID,
		SchoolID:    schoolID,
		TownClass:   townClass,
		DisplayName: "Student " + userID,
	}
	if salary > 0 {
		student.JobTitle = "worker"
		student.JobSalary = salary
		student.Employed = true
	}
	if err := store.CreateStudent(context.Background(), student); err != nil {
		t.Fatalf("CreateStudent(%s) error = %v", userID, err)
	}
}

func seedAccount(t *testing.T, store *Store, schoolID, userID string, balance money.Cents) string {
	t.Helper()
	accountID := id.MustNewID()
	err := store.CreateAccount(context.Background(), storage.Account{
		ID:       accountID,
		SchoolID: schoolID,
		UserID:   userID,
		Balance:  balance,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", userID, err)
	}
	return accountID
}

func accountBalance(t *testing.T, store *Store, schoolID, userID string) money.Cents {
	t.Helper()
	account, err := store.GetAccountByUser(context.Background(), schoolID, userID)
	if err != nil {
		t.Fatalf("GetAccountByUser(%s) error = %v", userID, err)
	}
	return account.Balance
}

// checkLedgerReconciles asserts the account balance equals the signed sum of
// its ledger entries.
func checkLedgerReconciles(t *testing.T, store *Store, schoolID, userID string) {
	t.Helper()
	account, err := store.GetAccountByUser(context.Background(), schoolID, userID)
	if err != nil {
		t.Fatalf("GetAccountByUser(%s) error = %v", userID, err)
	}
	sum, err := store.SumLedgerForAccount(context.Background(), schoolID, account.ID)
	if err != nil {
		t.Fatalf("SumLedgerForAccount(%s) error = %v", account.ID, err)
	}
	if sum != account.Balance {
		t.Errorf("ledger sum = %v, balance = %v; want equal", sum, account.Balance)
	}
}

func TestStudentRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 50000)
	seedStudent(t, store, "school-1", "5a", "bob", 0)

	alice, err := store.GetStudent(ctx, "school-1", "alice")
	if err != nil {
		t.Fatalf("GetStudent() error = %v", err)
	}
	if !alice.Employed || alice.JobSalary != 50000 {
		t.Errorf("alice = %+v, want employed with salary 50000", alice)
	}

	bob, err := store.GetStudent(ctx, "school-1", "bob")
	if err != nil {
		t.Fatalf("GetStudent() error = %v", err)
	}
	if bob.Employed || bob.JobTitle != "" {
		t.Errorf("bob = %+v, want unemployed", bob)
	}

	students, err := store.ListStudentsByTownClass(ctx, "school-1", "5a")
	if err != nil {
		t.Fatalf("ListStudentsByTownClass() error = %v", err)
	}
	if len(students) != 2 {
		t.Errorf("ListStudentsByTownClass() returned %d students, want 2", len(students))
	}
}

func TestCreateStudentDuplicate(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	err := store.CreateStudent(context.Background(), storage.Student{
		ID:          "alice",
		SchoolID:    "school-1",
		TownClass:   "5a",
		DisplayName: "Alice Again",
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("CreateStudent() error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetStudentNotFound(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	_, err := store.GetStudent(context.Background(), "school-1", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetStudent() error = %v, want ErrNotFound", err)
	}
}

func TestCreateAccountOpeningBalance(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 2500)

	if got := accountBalance(t, store, "school-1", "alice"); got != 2500 {
		t.Errorf("balance = %v, want 2500", got)
	}
	checkLedgerReconciles(t, store, "school-1", "alice")
}

func TestCreateAccountDuplicateUser(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 0)

	err := store.CreateAccount(context.Background(), storage.Account{
		ID:       id.MustNewID(),
		SchoolID: "school-1",
		UserID:   "alice",
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("CreateAccount() error = %v, want ErrAlreadyExists", err)
	}
}

func TestDepositAndFine(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 1000)

	account, err := store.Deposit(ctx, "school-1", "alice", 500, "good behavior")
	if err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if account.Balance != 1500 {
		t.Errorf("balance after deposit = %v, want 1500", account.Balance)
	}

	// Fines have no floor; the balance may go negative.
	account, err = store.Fine(ctx, "school-1", "alice", 2000, "late homework")
	if err != nil {
		t.Fatalf("Fine() error = %v", err)
	}
	if account.Balance != -500 {
		t.Errorf("balance after fine = %v, want -500", account.Balance)
	}
	checkLedgerReconciles(t, store, "school-1", "alice")
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	seedAccount(t, store, "school-1", "alice", 0)

	if _, err := store.Deposit(context.Background(), "school-1", "alice", 0, ""); err == nil {
		t.Error("Deposit(0) error = nil, want error")
	}
}

func TestListLedgerEntriesPagination(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	accountID := seedAccount(t, store, "school-1", "alice", 0)

	for i := 0; i < 5; i++ {
		if _, err := store.Deposit(ctx, "school-1", "alice", 100, "allowance"); err != nil {
			t.Fatalf("Deposit() error = %v", err)
		}
	}

	var seen int
	var token string
	for {
		page, err := store.ListLedgerEntries(ctx, "school-1", accountID, 2, token)
		if err != nil {
			t.Fatalf("ListLedgerEntries() error = %v", err)
		}
		for _, entry := range page.Entries {
			if entry.Type != ledger.EntryDeposit {
				t.Errorf("entry type = %q, want %q", entry.Type, ledger.EntryDeposit)
			}
		}
		seen += len(page.Entries)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	if seen != 5 {
		t.Errorf("paged through %d entries, want 5", seen)
	}
}

// Entry ids are random, so pagination must key on the timestamp to keep pages
// in insertion order.
func TestListLedgerEntriesChronologicalOrder(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	seedStudent(t, store, "school-1", "5a", "alice", 0)
	accountID := seedAccount(t, store, "school-1", "alice", 0)

	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		fixedClock(store, start.Add(time.Duration(i)*time.Hour))
		description := fmt.Sprintf("day %d", i)
		if _, err := store.Deposit(ctx, "school-1", "alice", 100, description); err != nil {
			t.Fatalf("Deposit() error = %v", err)
		}
	}

	var descriptions []string
	var token string
	for {
		page, err := store.ListLedgerEntries(ctx, "school-1", accountID, 2, token)
		if err != nil {
			t.Fatalf("ListLedgerEntries() error = %v", err)
		}
		for _, entry := range page.Entries {
			descriptions = append(descriptions, entry.Description)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	want := []string{"day 0", "day 1", "day 2", "day 3", "day 4"}
	if !slices.Equal(descriptions, want) {
		t.Errorf("entry order = %v, want %v", descriptions, want)
	}

	if _, err := store.ListLedgerEntries(ctx, "school-1", accountID, 2, "garbage"); !apperrors.IsCode(err, apperrors.CodeFieldRequired) {
		t.Errorf("ListLedgerEntries(bad token) error = %v, want %v", err, apperrors.CodeFieldRequired)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := Open("  "); err == nil {
		t.Error("Open(blank) error = nil, want error")
	}
}

func TestReadyRejectsCanceledContext(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.GetStudent(ctx, "school-1", "alice"); !errors.Is(err, context.Canceled) {
		t.Errorf("GetStudent() error = %v, want context.Canceled", err)
	}
}

// fixedClock pins the store clock for deterministic timestamps.
func fixedClock(store *Store, at time.Time) {
	store.clock = func() time.Time { return at }
}

func wantCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if got := apperrors.GetCode(err); got != code {
		t.Errorf("error code = %q (err = %v), want %q", got, err, code)
	}
}
