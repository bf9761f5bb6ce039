package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/dialdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Claim_LowestIDFirst(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	first := addAgent(t, db, "First", "+15550000001", domain.AgentAvailable)
	addAgent(t, db, "Second", "+15550000002", domain.AgentAvailable)

	ledger := NewAgentLedger(db)
	claim, err := ledger.ClaimAvailableAgent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claim)

	assert.Equal(t, first, claim.AgentID)
	assert.Equal(t, "+15550000001", claim.PhoneNumber)

	agent, err := ledger.Get(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOnCall, agent.Status)
}

func TestLedger_Claim_SkipsNonAvailable(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	addAgent(t, db, "Busy", "+15550000001", domain.AgentOnCall)
	addAgent(t, db, "Off", "+15550000002", domain.AgentOffline)
	free := addAgent(t, db, "Free", "+15550000003", domain.AgentAvailable)

	ledger := NewAgentLedger(db)
	claim, err := ledger.ClaimAvailableAgent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, free, claim.AgentID)
}

func TestLedger_Claim_NoneAvailable(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	addAgent(t, db, "Off", "+15550000001", domain.AgentOffline)

	ledger := NewAgentLedger(db)
	claim, err := ledger.ClaimAvailableAgent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claim)
}

// TestLedger_Claim_MutualExclusion is the core correctness property: with K
// available agents and N concurrent claimants, exactly K claims succeed and
// no agent is handed to more than one claimant.
func TestLedger_Claim_MutualExclusion(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)

	const available = 3
	const claimants = 20
	for i := range available {
		addAgent(t, db, fmt.Sprintf("Agent %d", i), fmt.Sprintf("+1555000%04d", i), domain.AgentAvailable)
	}

	ledger := NewAgentLedger(db)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims []domain.AgentClaim
		misses int
	)
	for range claimants {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := ledger.ClaimAvailableAgent(context.Background())
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if claim == nil {
				misses++
				return
			}
			claims = append(claims, *claim)
		}()
	}
	wg.Wait()

	assert.Len(t, claims, available)
	assert.Equal(t, claimants-available, misses)

	seen := make(map[int64]bool)
	for _, c := range claims {
		assert.False(t, seen[c.AgentID], "agent %d claimed twice", c.AgentID)
		seen[c.AgentID] = true
	}
}

func TestLedger_Release_Idempotent(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	addAgent(t, db, "A", "+15550000001", domain.AgentAvailable)

	ledger := NewAgentLedger(db)
	ctx := context.Background()

	claim, err := ledger.ClaimAvailableAgent(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)

	released, err := ledger.ReleaseAgent(ctx, claim.AgentID)
	require.NoError(t, err)
	assert.True(t, released)

	agent, err := ledger.Get(ctx, claim.AgentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentAvailable, agent.Status)

	// Second release is a no-op
	released, err = ledger.ReleaseAgent(ctx, claim.AgentID)
	require.NoError(t, err)
	assert.False(t, released)
}

func TestLedger_Release_ThenReclaimable(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	id := addAgent(t, db, "A", "+15550000001", domain.AgentAvailable)

	ledger := NewAgentLedger(db)
	ctx := context.Background()

	claim, err := ledger.ClaimAvailableAgent(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)

	none, err := ledger.ClaimAvailableAgent(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = ledger.ReleaseAgent(ctx, id)
	require.NoError(t, err)

	again, err := ledger.ClaimAvailableAgent(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, id, again.AgentID)
}

func TestLedger_SetStatus(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	id := addAgent(t, db, "A", "+15550000001", domain.AgentAvailable)

	ledger := NewAgentLedger(db)
	ctx := context.Background()

	agent, err := ledger.SetStatus(ctx, id, domain.AgentUnavailable, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentUnavailable, agent.Status)

	// Phone number only
	agent, err = ledger.SetStatus(ctx, id, "", "+15559998888")
	require.NoError(t, err)
	assert.Equal(t, "+15559998888", agent.PhoneNumber)
	assert.Equal(t, domain.AgentUnavailable, agent.Status)

	// Both at once
	agent, err = ledger.SetStatus(ctx, id, domain.AgentAvailable, "+15557776666")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentAvailable, agent.Status)
	assert.Equal(t, "+15557776666", agent.PhoneNumber)
}

func TestLedger_SetStatus_Errors(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	id := addAgent(t, db, "A", "+15550000001", domain.AgentAvailable)

	ledger := NewAgentLedger(db)
	ctx := context.Background()

	_, err := ledger.SetStatus(ctx, id, "sleeping", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ledger.SetStatus(ctx, id, "", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ledger.SetStatus(ctx, 9999, domain.AgentAvailable, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_Get_NotFound(t *testing.T) {
	db := testDB(t)
	ledger := NewAgentLedger(db)

	_, err := ledger.Get(context.Background(), 424242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_ReleaseStuck(t *testing.T) {
	db := testDB(t)
	clearAgents(t, db)
	stuck := addAgent(t, db, "Stuck", "+15550000001", domain.AgentOnCall)
	fresh := addAgent(t, db, "Fresh", "+15550000002", domain.AgentOnCall)
	busy := addAgent(t, db, "Busy", "+15550000003", domain.AgentOnCall)

	// Backdate the stuck and busy agents' transitions
	old := time.Now().UTC().Add(-3 * time.Hour).Format(time.RFC3339)
	for _, id := range []int64{stuck, busy} {
		_, err := db.sql.Exec("UPDATE agents SET last_status_update = ? WHERE id = ?", old, id)
		require.NoError(t, err)
	}

	// The busy agent is on a long but legitimate conversation: its call is
	// still transferred.
	calls := NewCallStore(db)
	_, err := calls.Create(context.Background(), "CA-long", "+1555", time.Now().Add(-3*time.Hour))
	require.NoError(t, err)
	linked, err := calls.LinkAgentAndTransfer(context.Background(), "CA-long", busy)
	require.NoError(t, err)
	require.True(t, linked)

	ledger := NewAgentLedger(db)
	released, err := ledger.ReleaseStuck(context.Background(), time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []int64{stuck}, released)

	a, err := ledger.Get(context.Background(), stuck)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentAvailable, a.Status)

	b, err := ledger.Get(context.Background(), fresh)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOnCall, b.Status)

	c, err := ledger.Get(context.Background(), busy)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentOnCall, c.Status)
}
