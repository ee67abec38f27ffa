package store

import (
	"context"

	"tunelock/internal/domain"

	"gorm.io/gorm"
)

// TransactionStore is read-only: transactions belong to the payment
// subsystem and are only consulted during issuance.
type TransactionStore struct{ db *gorm.DB }

func (s *Store) Transactions() *TransactionStore { return &TransactionStore{db: s.DB} }

func (t *TransactionStore) Get(ctx context.Context, id domain.TransactionID) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := t.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &txn, nil
}
