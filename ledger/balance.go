/*
balance.go - The three-bucket balance accessor

PURPOSE:
  The Accounts accessor is the only path through which organizer balances
  change. It answers "how much does this organizer have?" and applies
  credits and debits to one of the three buckets:

    pending:   revenue collected but still inside the holding window
    available: revenue eligible for withdrawal
    withdrawn: cumulative amount already paid out

  No component may ever SET a balance. Only credit/debit by a positive
  amount exists, which keeps every bucket reconstructible from the ledger.

CONCURRENCY:
  Two concurrent events for the same organizer (a sale settling while a
  withdrawal confirms) must not interleave a read-modify-write. The
  BalanceStore implementation serializes per-organizer mutations; this
  layer adds validation and the organizer-existence fast-fail on top.

ERROR SEMANTICS:
  A debit that would drive a bucket negative fails with
  InsufficientBalanceError and leaves the bucket untouched. Amounts are
  always positive; direction is the operation, never the sign.

SEE ALSO:
  - store.go: BalanceStore contract
  - settlement: Pairs these mutations with ledger appends in one transaction
*/
package ledger

import "context"

// Accounts exposes atomic read/update operations on organizer balances.
type Accounts struct {
	Balances   BalanceStore
	Organizers OrganizerStore
}

func NewAccounts(balances BalanceStore, organizers OrganizerStore) *Accounts {
	return &Accounts{Balances: balances, Organizers: organizers}
}

// Credit adds amount to the organizer's bucket and returns the resulting
// snapshot.
func (a *Accounts) Credit(ctx context.Context, id OrganizerID, bucket Bucket, amount Money) (Balances, error) {
	if err := a.validate(ctx, id, bucket, amount); err != nil {
		return Balances{}, err
	}
	return a.Balances.Credit(ctx, id, bucket, amount)
}

// Debit subtracts amount from the organizer's bucket. Rejects any debit that
// would drive the bucket negative.
func (a *Accounts) Debit(ctx context.Context, id OrganizerID, bucket Bucket, amount Money) (Balances, error) {
	if err := a.validate(ctx, id, bucket, amount); err != nil {
		return Balances{}, err
	}
	return a.Balances.Debit(ctx, id, bucket, amount)
}

// GetBalances returns a read-only snapshot of the three buckets.
func (a *Accounts) GetBalances(ctx context.Context, id OrganizerID) (Balances, error) {
	if err := a.requireOrganizer(ctx, id); err != nil {
		return Balances{}, err
	}
	return a.Balances.GetBalances(ctx, id)
}

func (a *Accounts) validate(ctx context.Context, id OrganizerID, bucket Bucket, amount Money) error {
	if !bucket.Valid() {
		return ErrInvalidBucket
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return a.requireOrganizer(ctx, id)
}

func (a *Accounts) requireOrganizer(ctx context.Context, id OrganizerID) error {
	o, err := a.Organizers.GetOrganizer(ctx, id)
	if err != nil {
		return err
	}
	if o == nil {
		return ErrOrganizerNotFound
	}
	return nil
}
