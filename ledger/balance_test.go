package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oltking/hdticketdesk-sub003/ledger"
	"github.com/Oltking/hdticketdesk-sub003/ledger/store"
)

func newAccounts(t *testing.T) (*ledger.Accounts, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	err := mem.SaveOrganizer(context.Background(), ledger.OrganizerAccount{
		ID:        "org-1",
		Name:      "Test Org",
		Currency:  ledger.DefaultCurrency,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return ledger.NewAccounts(mem, mem), mem
}

// =============================================================================
// CREDIT / DEBIT
// =============================================================================

func TestAccounts_CreditAndDebit(t *testing.T) {
	// GIVEN: A fresh organizer account
	accounts, _ := newAccounts(t)
	ctx := context.Background()

	// WHEN: Crediting pending and debiting part of it back
	bal, err := accounts.Credit(ctx, "org-1", ledger.BucketPending, usd(100))
	require.NoError(t, err)
	assert.True(t, bal.Pending.Equal(usd(100)))

	bal, err = accounts.Debit(ctx, "org-1", ledger.BucketPending, usd(40))
	require.NoError(t, err)

	// THEN: The snapshot reflects both mutations
	assert.True(t, bal.Pending.Equal(usd(60)))
	assert.True(t, bal.Available.IsZero())
	assert.True(t, bal.Total().Equal(usd(60)))
}

func TestAccounts_DebitFloor(t *testing.T) {
	// GIVEN: 50 available
	accounts, _ := newAccounts(t)
	ctx := context.Background()
	_, err := accounts.Credit(ctx, "org-1", ledger.BucketAvailable, usd(50))
	require.NoError(t, err)

	// WHEN: Debiting more than the bucket holds
	_, err = accounts.Debit(ctx, "org-1", ledger.BucketAvailable, usd(50.01))

	// THEN: The debit is rejected with the structured error
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var ib *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, ledger.OrganizerID("org-1"), ib.OrganizerID)
	assert.Equal(t, ledger.BucketAvailable, ib.Bucket)
	assert.True(t, ib.Available.Equal(usd(50)))
	assert.True(t, ib.Requested.Equal(usd(50.01)))

	// AND: The bucket is untouched
	bal, err := accounts.GetBalances(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, bal.Available.Equal(usd(50)))
}

func TestAccounts_DebitToExactlyZero(t *testing.T) {
	// Draining a bucket to exactly zero is allowed.
	accounts, _ := newAccounts(t)
	ctx := context.Background()

	_, err := accounts.Credit(ctx, "org-1", ledger.BucketPending, usd(75.25))
	require.NoError(t, err)

	bal, err := accounts.Debit(ctx, "org-1", ledger.BucketPending, usd(75.25))
	require.NoError(t, err)
	assert.True(t, bal.Pending.IsZero())
}

func TestAccounts_Validation(t *testing.T) {
	accounts, _ := newAccounts(t)
	ctx := context.Background()

	// Unknown organizer
	_, err := accounts.Credit(ctx, "org-ghost", ledger.BucketPending, usd(10))
	assert.ErrorIs(t, err, ledger.ErrOrganizerNotFound)

	// Unknown bucket
	_, err = accounts.Credit(ctx, "org-1", "escrow", usd(10))
	assert.ErrorIs(t, err, ledger.ErrInvalidBucket)

	// Zero and negative amounts
	_, err = accounts.Credit(ctx, "org-1", ledger.BucketPending, usd(0))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = accounts.Debit(ctx, "org-1", ledger.BucketPending, usd(-5))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestAccounts_BucketsAreIndependent(t *testing.T) {
	// GIVEN: Money in all three buckets
	accounts, _ := newAccounts(t)
	ctx := context.Background()

	_, err := accounts.Credit(ctx, "org-1", ledger.BucketPending, usd(100))
	require.NoError(t, err)
	_, err = accounts.Credit(ctx, "org-1", ledger.BucketAvailable, usd(200))
	require.NoError(t, err)
	bal, err := accounts.Credit(ctx, "org-1", ledger.BucketWithdrawn, usd(300))
	require.NoError(t, err)

	// THEN: Each bucket holds its own value; total excludes withdrawn
	assert.True(t, bal.Pending.Equal(usd(100)))
	assert.True(t, bal.Available.Equal(usd(200)))
	assert.True(t, bal.Withdrawn.Equal(usd(300)))
	assert.True(t, bal.Total().Equal(usd(300)), "total is pending+available only")
}

func TestAccounts_ExactDecimalArithmetic(t *testing.T) {
	// 0.1 + 0.2 must be exactly 0.3. This is the whole point of the
	// decimal type: the float64 answer is 0.30000000000000004.
	accounts, _ := newAccounts(t)
	ctx := context.Background()

	_, err := accounts.Credit(ctx, "org-1", ledger.BucketPending, usd(0.1))
	require.NoError(t, err)
	bal, err := accounts.Credit(ctx, "org-1", ledger.BucketPending, usd(0.2))
	require.NoError(t, err)

	assert.True(t, bal.Pending.Equal(ledger.MustParseMoney("0.3", ledger.DefaultCurrency)))
}
