package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/domain/tool"
	xerrors "qrloop-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTool(t *testing.T, s *Store) int64 {
	t.Helper()
	tl := &tool.Tool{OwnerIdentityID: 1, Name: "cafe", Status: tool.ToolStatusActive}
	require.NoError(t, s.Create(context.Background(), tl))
	return tl.ID
}

func userPtr(v string) *string { return &v }

func TestStore_RollbackRestoresState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	toolID := seedTool(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx qrcampaign.Tx) error {
		require.NoError(t, tx.InsertCode(ctx, &qrcampaign.QRCodeInstance{
			Code: "QR1-A", ToolID: toolID, UserID: userPtr("alice"), Status: qrcampaign.CodeStatusIssued,
		}))
		_, err := tx.RecordScan(ctx, toolID, "alice", time.Now())
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetProgress(ctx, toolID, "alice")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	codes, total, err := s.ListCodes(ctx, toolID, &qrcampaign.CodeListFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, codes)
}

func TestStore_InsertCodeConflicts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	toolID := seedTool(t, s)

	err := s.InTx(ctx, func(tx qrcampaign.Tx) error {
		require.NoError(t, tx.InsertCode(ctx, &qrcampaign.QRCodeInstance{
			Code: "QR1-A", ToolID: toolID, UserID: userPtr("alice"), Status: qrcampaign.CodeStatusIssued,
		}))

		err := tx.InsertCode(ctx, &qrcampaign.QRCodeInstance{
			Code: "QR1-B", ToolID: toolID, UserID: userPtr("alice"), Status: qrcampaign.CodeStatusIssued,
		})
		assert.ErrorIs(t, err, xerrors.ErrConflict)

		err = tx.InsertCode(ctx, &qrcampaign.QRCodeInstance{
			Code: "QR1-A", ToolID: toolID, UserID: userPtr("bob"), Status: qrcampaign.CodeStatusIssued,
		})
		assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)

		exists, err := tx.CodeExists(ctx, "QR1-A")
		require.NoError(t, err)
		assert.True(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ConsumeCodeOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	toolID := seedTool(t, s)

	err := s.InTx(ctx, func(tx qrcampaign.Tx) error {
		code := &qrcampaign.QRCodeInstance{Code: "QR1-A", ToolID: toolID, Status: qrcampaign.CodeStatusIssued}
		require.NoError(t, tx.InsertCode(ctx, code))

		ok, err := tx.ConsumeCode(ctx, code.ID, "alice", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.ConsumeCode(ctx, code.ID, "alice", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := tx.FindCodeByCode(ctx, "QR1-A")
		require.NoError(t, err)
		assert.Equal(t, qrcampaign.CodeStatusScanned, got.Status)
		assert.Equal(t, 1, got.ScanCount)
		require.NotNil(t, got.UserID)
		assert.Equal(t, "alice", *got.UserID)

		// Scanned codes are terminal.
		require.NoError(t, tx.MarkCodeExpired(ctx, code.ID))
		got, _ = tx.FindCodeByCode(ctx, "QR1-A")
		assert.Equal(t, qrcampaign.CodeStatusScanned, got.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ApplyReward(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	toolID := seedTool(t, s)

	err := s.InTx(ctx, func(tx qrcampaign.Tx) error {
		_, err := tx.ApplyReward(ctx, toolID, "ghost", nil)
		assert.ErrorIs(t, err, xerrors.ErrNotFound)

		for i := 0; i < 3; i++ {
			_, err := tx.RecordScan(ctx, toolID, "alice", time.Now())
			require.NoError(t, err)
		}

		carry := 1
		p, err := tx.ApplyReward(ctx, toolID, "alice", &carry)
		require.NoError(t, err)
		assert.Equal(t, 1, p.CurrentStreak)
		assert.Equal(t, 3, p.TotalScans)
		assert.Equal(t, 1, p.RewardsEarned)

		p, err = tx.ApplyReward(ctx, toolID, "alice", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, p.CurrentStreak)
		assert.Equal(t, 2, p.RewardsEarned)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ToolRepository(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, name := range []string{"Coffee Club", "Gym", "coffee beans"} {
		require.NoError(t, s.Create(ctx, &tool.Tool{OwnerIdentityID: 7, Name: name, Status: tool.ToolStatusActive}))
	}
	require.NoError(t, s.Create(ctx, &tool.Tool{OwnerIdentityID: 8, Name: "Other coffee", Status: tool.ToolStatusActive}))

	owner := int64(7)
	tools, total, err := s.List(ctx, &owner, &tool.ToolListFilters{Search: "COFFEE"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, tools, 2)

	require.NoError(t, s.UpdateStatus(ctx, tools[0].ID, tool.ToolStatusInactive))
	inactive := tool.ToolStatusInactive
	_, total, err = s.List(ctx, nil, &tool.ToolListFilters{Status: &inactive})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	assert.ErrorIs(t, s.UpdateWebhookKeyHash(ctx, 999, "x"), xerrors.ErrNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(tx qrcampaign.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
