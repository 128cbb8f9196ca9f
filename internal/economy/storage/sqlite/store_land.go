package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edutown/economy/internal/economy/domain/land"
	"github.com/edutown/economy/internal/economy/domain/ledger"
	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/domain/review"
	"github.com/edutown/economy/internal/economy/domain/treasury"
	"github.com/edutown/economy/internal/economy/storage"
	apperrors "github.com/edutown/economy/internal/platform/errors"
)

// CreateParcel inserts one town land parcel. Grid positions are unique per
// town class.
func (s *Store) CreateParcel(ctx context.Context, parcel storage.Parcel) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	parcelID := strings.TrimSpace(parcel.ID)
	schoolID := strings.TrimSpace(parcel.SchoolID)
	townClass := strings.TrimSpace(parcel.TownClass)
	if parcelID == "" {
		return fmt.Errorf("parcel id is required")
	}
	if schoolID == "" || townClass == "" {
		return fmt.Errorf("school id and town class are required")
	}
	if parcel.BaseValue <= 0 {
		return fmt.Errorf("parcel base value must be positive")
	}
	createdAt := parcel.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO land_parcels (
		   id, school_id, town_class, grid_x, grid_y, biome, base_value, owner_id, purchased_at, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		parcelID,
		schoolID,
		townClass,
		parcel.GridX,
		parcel.GridY,
		parcel.Biome,
		int64(parcel.BaseValue),
		nullString(parcel.OwnerID),
		nullMillis(parcel.PurchasedAt),
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create parcel: %w", err)
	}
	return nil
}

// GetParcel returns one parcel by id.
func (s *Store) GetParcel(ctx context.Context, schoolID, parcelID string) (storage.Parcel, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Parcel{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		selectParcelSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, parcelID,
	)
	parcel, err := scanParcel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Parcel{}, storage.ErrNotFound
		}
		return storage.Parcel{}, fmt.Errorf("get parcel: %w", err)
	}
	return parcel, nil
}

// ListParcels returns the town's parcels in grid order.
func (s *Store) ListParcels(ctx context.Context, schoolID, townClass string) ([]storage.Parcel, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		selectParcelSQL+` WHERE school_id = ? AND town_class = ? ORDER BY grid_y ASC, grid_x ASC`,
		schoolID, townClass,
	)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	defer rows.Close()

	var parcels []storage.Parcel
	for rows.Next() {
		parcel, err := scanParcel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parcel: %w", err)
		}
		parcels = append(parcels, parcel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parcels: %w", err)
	}
	return parcels, nil
}

// CreatePurchaseRequest records one student offer on a parcel. The parcel
// must be unowned, the offer must meet the value floor, and a requester may
// hold only one pending request per parcel. All checks run inside the insert
// transaction.
func (s *Store) CreatePurchaseRequest(ctx context.Context, request storage.PurchaseRequest) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	requestID := strings.TrimSpace(request.ID)
	schoolID := strings.TrimSpace(request.SchoolID)
	if requestID == "" {
		return fmt.Errorf("purchase request id is required")
	}
	if schoolID == "" {
		return fmt.Errorf("school id is required")
	}
	createdAt := request.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		parcel, err := parcelTx(tx, schoolID, request.ParcelID)
		if err != nil {
			return err
		}
		if parcel.Owned() {
			return apperrors.New(apperrors.CodeLandAlreadyOwned, "parcel is already owned")
		}
		value := land.CurrentValue(parcel.BaseValue, parcel.Owned(), parcel.PurchasedAt, createdAt)
		if err := land.ValidateOffer(request.OfferedPrice, value); err != nil {
			return err
		}

		var pending int
		err = tx.QueryRow(
			`SELECT COUNT(1) FROM land_purchase_requests
			  WHERE school_id = ? AND parcel_id = ? AND requester_id = ? AND status = ?`,
			schoolID, request.ParcelID, request.RequesterID, string(review.StatusPending),
		).Scan(&pending)
		if err != nil {
			return fmt.Errorf("count pending requests: %w", err)
		}
		if pending > 0 {
			return apperrors.New(apperrors.CodeLandDuplicateRequest, "a pending request for this parcel already exists")
		}

		_, err = tx.Exec(
			`INSERT INTO land_purchase_requests (
			   id, school_id, parcel_id, requester_id, offered_price, status, created_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			requestID,
			schoolID,
			request.ParcelID,
			request.RequesterID,
			int64(request.OfferedPrice),
			string(review.StatusPending),
			toMillis(createdAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetPurchaseRequest returns one purchase request by id.
func (s *Store) GetPurchaseRequest(ctx context.Context, schoolID, requestID string) (storage.PurchaseRequest, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PurchaseRequest{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		selectPurchaseRequestSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, requestID,
	)
	request, err := scanPurchaseRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PurchaseRequest{}, storage.ErrNotFound
		}
		return storage.PurchaseRequest{}, fmt.Errorf("get purchase request: %w", err)
	}
	return request, nil
}

// ListPendingPurchaseRequests returns the school's pending requests, oldest
// first.
func (s *Store) ListPendingPurchaseRequests(ctx context.Context, schoolID string) ([]storage.PurchaseRequest, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		selectPurchaseRequestSQL+` WHERE school_id = ? AND status = ? ORDER BY created_at ASC, id ASC`,
		schoolID, string(review.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list purchase requests: %w", err)
	}
	defer rows.Close()

	var requests []storage.PurchaseRequest
	for rows.Next() {
		request, err := scanPurchaseRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase requests: %w", err)
	}
	return requests, nil
}

// ApprovePurchaseRequest settles one land sale: the buyer is debited, the
// payment moves into the town treasury, ownership transfers, and every other
// pending request on the parcel is denied. All in one transaction; funds and
// ownership are re-checked at approval time.
func (s *Store) ApprovePurchaseRequest(ctx context.Context, schoolID, requestID, reviewerID string) (storage.PurchaseRequest, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PurchaseRequest{}, err
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		request, err := purchaseRequestForReviewTx(tx, schoolID, requestID)
		if err != nil {
			return err
		}
		parcel, err := parcelTx(tx, schoolID, request.ParcelID)
		if err != nil {
			return err
		}
		if parcel.Owned() {
			return apperrors.New(apperrors.CodeLandAlreadyOwned, "parcel is already owned")
		}

		accountID, err := accountIDByUserTx(tx, schoolID, request.RequesterID)
		if err != nil {
			return err
		}
		if err := debitAccountTx(tx, schoolID, accountID, request.OfferedPrice, 0, now); err != nil {
			return err
		}
		if err := appendLedgerTx(tx, schoolID, accountID, "", request.OfferedPrice, ledger.EntryWithdrawal, "land purchase", now); err != nil {
			return err
		}
		if err := ensureTreasuryTx(tx, schoolID, parcel.TownClass, now); err != nil {
			return err
		}
		if err := adjustTreasuryTx(tx, schoolID, parcel.TownClass, request.OfferedPrice, now); err != nil {
			return err
		}
		if err := appendTreasuryEntryTx(tx, schoolID, parcel.TownClass, request.OfferedPrice, treasury.EntryDeposit, "land sale", now); err != nil {
			return err
		}

		_, err = tx.Exec(
			`UPDATE land_parcels SET owner_id = ?, purchased_at = ? WHERE school_id = ? AND id = ?`,
			request.RequesterID, toMillis(now), schoolID, parcel.ID,
		)
		if err != nil {
			return fmt.Errorf("transfer parcel ownership: %w", err)
		}

		if err := resolvePurchaseRequestTx(tx, schoolID, requestID, review.StatusApproved, reviewerID, "", now); err != nil {
			return err
		}

		// Competing offers on the sold parcel lose automatically.
		_, err = tx.Exec(
			`UPDATE land_purchase_requests
			    SET status = ?, reviewer_id = ?, reviewed_at = ?, denial_reason = ?
			  WHERE school_id = ? AND parcel_id = ? AND status = ?`,
			string(review.StatusDenied),
			nullString(reviewerID),
			toMillis(now),
			"parcel was sold to another buyer",
			schoolID,
			parcel.ID,
			string(review.StatusPending),
		)
		if err != nil {
			return fmt.Errorf("deny sibling requests: %w", err)
		}
		return nil
	})
	if err != nil {
		// A stale request on a sold parcel resolves itself so the teacher
		// never reviews it again.
		if apperrors.IsCode(err, apperrors.CodeLandAlreadyOwned) {
			denyErr := s.withTx(ctx, func(tx *sql.Tx) error {
				return resolvePurchaseRequestTx(tx, schoolID, requestID, review.StatusDenied, reviewerID, "parcel was sold to another buyer", now)
			})
			if denyErr != nil {
				return storage.PurchaseRequest{}, denyErr
			}
		}
		return storage.PurchaseRequest{}, err
	}
	return s.GetPurchaseRequest(ctx, schoolID, requestID)
}

// DenyPurchaseRequest resolves one pending purchase request without moving
// money or ownership.
func (s *Store) DenyPurchaseRequest(ctx context.Context, schoolID, requestID, reviewerID, reason string) (storage.PurchaseRequest, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PurchaseRequest{}, err
	}

	now := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := purchaseRequestForReviewTx(tx, schoolID, requestID); err != nil {
			return err
		}
		return resolvePurchaseRequestTx(tx, schoolID, requestID, review.StatusDenied, reviewerID, reason, now)
	})
	if err != nil {
		return storage.PurchaseRequest{}, err
	}
	return s.GetPurchaseRequest(ctx, schoolID, requestID)
}

// SwapParcelPositions exchanges the grid positions of two parcels in one
// transaction. The unique position index ignores NULLs, so the first parcel
// is parked off-grid while the second moves, then takes the vacated slot.
func (s *Store) SwapParcelPositions(ctx context.Context, schoolID, parcelA, parcelB string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if parcelA == parcelB {
		return apperrors.New(apperrors.CodeLandSwapSameParcel, "cannot swap a parcel with itself")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		first, err := parcelTx(tx, schoolID, parcelA)
		if err != nil {
			return err
		}
		second, err := parcelTx(tx, schoolID, parcelB)
		if err != nil {
			return err
		}
		if first.TownClass != second.TownClass {
			return fmt.Errorf("parcels belong to different town classes")
		}

		_, err = tx.Exec(
			`UPDATE land_parcels SET grid_x = NULL, grid_y = NULL WHERE school_id = ? AND id = ?`,
			schoolID, first.ID,
		)
		if err != nil {
			return fmt.Errorf("stage parcel swap: %w", err)
		}
		_, err = tx.Exec(
			`UPDATE land_parcels SET grid_x = ?, grid_y = ? WHERE school_id = ? AND id = ?`,
			first.GridX, first.GridY, schoolID, second.ID,
		)
		if err != nil {
			return fmt.Errorf("move second parcel: %w", err)
		}
		_, err = tx.Exec(
			`UPDATE land_parcels SET grid_x = ?, grid_y = ? WHERE school_id = ? AND id = ?`,
			second.GridX, second.GridY, schoolID, first.ID,
		)
		if err != nil {
			return fmt.Errorf("move first parcel: %w", err)
		}
		return nil
	})
}

const selectParcelSQL = `SELECT id, school_id, town_class, grid_x, grid_y, biome, base_value, owner_id, purchased_at, created_at
  FROM land_parcels`

func scanParcel(row rowScanner) (storage.Parcel, error) {
	var parcel storage.Parcel
	var gridX, gridY sql.NullInt64
	var baseValue, createdAt int64
	var ownerID sql.NullString
	var purchasedAt sql.NullInt64
	err := row.Scan(
		&parcel.ID,
		&parcel.SchoolID,
		&parcel.TownClass,
		&gridX,
		&gridY,
		&parcel.Biome,
		&baseValue,
		&ownerID,
		&purchasedAt,
		&createdAt,
	)
	if err != nil {
		return storage.Parcel{}, err
	}
	parcel.GridX = int(gridX.Int64)
	parcel.GridY = int(gridY.Int64)
	parcel.BaseValue = money.Cents(baseValue)
	parcel.OwnerID = scanNullString(ownerID)
	parcel.PurchasedAt = scanNullMillis(purchasedAt)
	parcel.CreatedAt = fromMillis(createdAt)
	return parcel, nil
}

func parcelTx(tx *sql.Tx, schoolID, parcelID string) (storage.Parcel, error) {
	row := tx.QueryRow(
		selectParcelSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, parcelID,
	)
	parcel, err := scanParcel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Parcel{}, storage.ErrNotFound
		}
		return storage.Parcel{}, fmt.Errorf("load parcel: %w", err)
	}
	return parcel, nil
}

const selectPurchaseRequestSQL = `SELECT id, school_id, parcel_id, requester_id, offered_price, status,
       reviewer_id, reviewed_at, denial_reason, created_at
  FROM land_purchase_requests`

func scanPurchaseRequest(row rowScanner) (storage.PurchaseRequest, error) {
	var request storage.PurchaseRequest
	var offeredPrice, createdAt int64
	var status string
	var reviewerID, denialReason sql.NullString
	var reviewedAt sql.NullInt64
	err := row.Scan(
		&request.ID,
		&request.SchoolID,
		&request.ParcelID,
		&request.RequesterID,
		&offeredPrice,
		&status,
		&reviewerID,
		&reviewedAt,
		&denialReason,
		&createdAt,
	)
	if err != nil {
		return storage.PurchaseRequest{}, err
	}
	request.OfferedPrice = money.Cents(offeredPrice)
	request.Status = review.Status(status)
	request.ReviewerID = scanNullString(reviewerID)
	request.ReviewedAt = scanNullMillis(reviewedAt)
	request.DenialReason = scanNullString(denialReason)
	request.CreatedAt = fromMillis(createdAt)
	return request, nil
}

func purchaseRequestForReviewTx(tx *sql.Tx, schoolID, requestID string) (storage.PurchaseRequest, error) {
	row := tx.QueryRow(
		selectPurchaseRequestSQL+` WHERE school_id = ? AND id = ?`,
		schoolID, requestID,
	)
	request, err := scanPurchaseRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PurchaseRequest{}, storage.ErrNotFound
		}
		return storage.PurchaseRequest{}, fmt.Errorf("load purchase request: %w", err)
	}
	if request.Status.IsTerminal() {
		return storage.PurchaseRequest{}, apperrors.WithMetadata(apperrors.CodeLandRequestAlreadyResolved,
			"purchase request has already been resolved",
			map[string]string{"status": string(request.Status)})
	}
	return request, nil
}

func resolvePurchaseRequestTx(tx *sql.Tx, schoolID, requestID string, status review.Status, reviewerID, reason string, now time.Time) error {
	_, err := tx.Exec(
		`UPDATE land_purchase_requests
		    SET status = ?, reviewer_id = ?, reviewed_at = ?, denial_reason = ?
		  WHERE school_id = ? AND id = ?`,
		string(status),
		nullString(reviewerID),
		toMillis(now),
		nullString(reason),
		schoolID,
		requestID,
	)
	if err != nil {
		return fmt.Errorf("resolve purchase request: %w", err)
	}
	return nil
}
