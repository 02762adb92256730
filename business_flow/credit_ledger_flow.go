package businessflow

import (
	"context"
	"fmt"

	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
)

// CreditLedger handles credit reservation, consumption and release. One credit
// pays for one recipient send. Reserve is all-or-nothing: a batch that does not
// fit the free balance is rejected outright, never partially admitted.
type CreditLedger interface {
	Reserve(ctx context.Context, customerID, campaignID uint, amount uint) (*models.CreditReservation, error)
	ConsumeUnit(ctx context.Context, reservationID uint) error
	ReleaseUnit(ctx context.Context, reservationID uint) error
	ReleaseUnits(ctx context.Context, reservationID uint, units uint) error
	// SettleRemainder releases every still-outstanding unit and marks the
	// reservation settled. Called when the campaign reaches a terminal state.
	SettleRemainder(ctx context.Context, reservationID uint) error
}

// CreditLedgerImpl implements the credit ledger over wallet and reservation repositories
type CreditLedgerImpl struct {
	walletRepo      repository.WalletRepository
	reservationRepo repository.CreditReservationRepository
	tx              repository.Transactor
}

// NewCreditLedger creates a new credit ledger instance
func NewCreditLedger(
	walletRepo repository.WalletRepository,
	reservationRepo repository.CreditReservationRepository,
	tx repository.Transactor,
) CreditLedger {
	return &CreditLedgerImpl{
		walletRepo:      walletRepo,
		reservationRepo: reservationRepo,
		tx:              tx,
	}
}

// Reserve places a hold of amount credits on the customer's wallet. The wallet
// row is locked for the duration of the transaction, so two concurrent
// reservations for the same customer can never oversubscribe the free balance.
func (l *CreditLedgerImpl) Reserve(ctx context.Context, customerID, campaignID uint, amount uint) (*models.CreditReservation, error) {
	var reservation *models.CreditReservation

	err := l.tx.WithTx(ctx, func(txCtx context.Context) error {
		wallet, err := l.walletRepo.ByCustomerIDForUpdate(txCtx, customerID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return ErrWalletNotFound
		}
		if !wallet.CanReserve(amount) {
			return ErrInsufficientCredits
		}

		if err := l.walletRepo.AdjustBalances(txCtx, wallet.ID, -int64(amount), int64(amount), 0); err != nil {
			return err
		}

		reservation = &models.CreditReservation{
			WalletID:   wallet.ID,
			CustomerID: customerID,
			CampaignID: campaignID,
			Amount:     amount,
			Status:     models.ReservationStatusActive,
		}
		return l.reservationRepo.Save(txCtx, reservation)
	})
	if err != nil {
		return nil, err
	}

	return reservation, nil
}

// ConsumeUnit makes one reserved credit permanent after a successful send
func (l *CreditLedgerImpl) ConsumeUnit(ctx context.Context, reservationID uint) error {
	return l.tx.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := l.reservationRepo.ByID(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return ErrReservationNotFound
		}

		ok, err := l.reservationRepo.AddConsumed(txCtx, reservationID, 1)
		if err != nil {
			return err
		}
		if !ok {
			return ErrReservationExhausted
		}

		return l.walletRepo.AdjustBalances(txCtx, reservation.WalletID, 0, -1, 1)
	})
}

// ReleaseUnit returns one reserved credit to the free balance
func (l *CreditLedgerImpl) ReleaseUnit(ctx context.Context, reservationID uint) error {
	return l.ReleaseUnits(ctx, reservationID, 1)
}

// ReleaseUnits returns the given number of reserved credits to the free balance
func (l *CreditLedgerImpl) ReleaseUnits(ctx context.Context, reservationID uint, units uint) error {
	if units == 0 {
		return nil
	}
	return l.tx.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := l.reservationRepo.ByID(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return ErrReservationNotFound
		}

		ok, err := l.reservationRepo.AddReleased(txCtx, reservationID, units)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("release of %d units exceeds reservation %d: %w", units, reservationID, ErrReservationExhausted)
		}

		return l.walletRepo.AdjustBalances(txCtx, reservation.WalletID, int64(units), -int64(units), 0)
	})
}

// SettleRemainder releases all outstanding units and settles the reservation
func (l *CreditLedgerImpl) SettleRemainder(ctx context.Context, reservationID uint) error {
	return l.tx.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := l.reservationRepo.ByID(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return ErrReservationNotFound
		}

		if outstanding := reservation.Outstanding(); outstanding > 0 {
			ok, err := l.reservationRepo.AddReleased(txCtx, reservationID, outstanding)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("settle of reservation %d lost a race: %w", reservationID, ErrReservationExhausted)
			}
			if err := l.walletRepo.AdjustBalances(txCtx, reservation.WalletID, int64(outstanding), -int64(outstanding), 0); err != nil {
				return err
			}
		}

		return l.reservationRepo.Settle(txCtx, reservationID)
	})
}
