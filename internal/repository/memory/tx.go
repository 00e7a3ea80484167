// internal/repository/memory/tx.go
package memory

import (
	"context"
	"time"

	"qrloop-service/internal/domain/qrcampaign"
	xerrors "qrloop-service/internal/pkg/errors"
)

// memTx operates on the live state while the store mutex is held.
type memTx struct {
	st *state
}

func (s *state) findToolCampaign(toolID int64) (*qrcampaign.ToolCampaign, error) {
	t, ok := s.tools[toolID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &qrcampaign.ToolCampaign{
		ToolID:          t.ID,
		OwnerIdentityID: t.OwnerIdentityID,
		Config:          t.QRConfig,
	}, nil
}

func (t *memTx) CodeExists(ctx context.Context, code string) (bool, error) {
	_, ok := t.st.codeIndex[code]
	return ok, nil
}

func (t *memTx) FindToolCampaign(ctx context.Context, toolID int64) (*qrcampaign.ToolCampaign, error) {
	return t.st.findToolCampaign(toolID)
}

func (t *memTx) FindCodeByCode(ctx context.Context, code string) (*qrcampaign.QRCodeInstance, error) {
	id, ok := t.st.codeIndex[code]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	c := t.st.codes[id]
	return &c, nil
}

func (t *memTx) FindActiveCode(ctx context.Context, toolID int64, userID string) (*qrcampaign.QRCodeInstance, error) {
	for _, c := range t.st.codes {
		if c.ToolID == toolID && c.Status == qrcampaign.CodeStatusIssued && c.UserID != nil && *c.UserID == userID {
			return &c, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (t *memTx) InsertCode(ctx context.Context, code *qrcampaign.QRCodeInstance) error {
	if code.UserID != nil {
		if _, err := t.FindActiveCode(ctx, code.ToolID, *code.UserID); err == nil {
			return xerrors.ErrConflict
		}
	}
	if _, taken := t.st.codeIndex[code.Code]; taken {
		return xerrors.ErrDuplicateEntry
	}

	t.st.nextCodeID++
	code.ID = t.st.nextCodeID
	code.ScanCount = 0
	code.CreatedAt = time.Now()
	t.st.codes[code.ID] = *code
	t.st.codeIndex[code.Code] = code.ID
	return nil
}

func (t *memTx) ConsumeCode(ctx context.Context, codeID int64, userID string, now time.Time) (bool, error) {
	c, ok := t.st.codes[codeID]
	if !ok || c.ScannedAt != nil || c.Status != qrcampaign.CodeStatusIssued {
		return false, nil
	}
	if c.UserID != nil && *c.UserID != userID {
		return false, nil
	}

	if c.UserID == nil {
		uid := userID
		c.UserID = &uid
	}
	scannedAt := now
	c.ScannedAt = &scannedAt
	c.ScanCount++
	c.Status = qrcampaign.CodeStatusScanned
	t.st.codes[codeID] = c
	return true, nil
}

func (t *memTx) MarkCodeExpired(ctx context.Context, codeID int64) error {
	c, ok := t.st.codes[codeID]
	if !ok || c.Status != qrcampaign.CodeStatusIssued || c.ScannedAt != nil {
		return nil
	}
	c.Status = qrcampaign.CodeStatusExpired
	t.st.codes[codeID] = c
	return nil
}

func (t *memTx) EnsureProgress(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	return t.mutateProgress(toolID, userID, func(p *qrcampaign.CampaignProgress) {})
}

func (t *memTx) RecordScan(ctx context.Context, toolID int64, userID string, now time.Time) (*qrcampaign.CampaignProgress, error) {
	return t.mutateProgress(toolID, userID, func(p *qrcampaign.CampaignProgress) {
		p.CurrentStreak++
		p.TotalScans++
		at := now
		p.LastScanAt = &at
	})
}

func (t *memTx) IncrementCodesIssued(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	return t.mutateProgress(toolID, userID, func(p *qrcampaign.CampaignProgress) {
		p.CodesIssued++
	})
}

func (t *memTx) ApplyReward(ctx context.Context, toolID int64, userID string, resetStreakTo *int) (*qrcampaign.CampaignProgress, error) {
	if _, ok := t.st.progress[progressKey{toolID, userID}]; !ok {
		return nil, xerrors.ErrNotFound
	}
	return t.mutateProgress(toolID, userID, func(p *qrcampaign.CampaignProgress) {
		p.RewardsEarned++
		if resetStreakTo != nil {
			p.CurrentStreak = *resetStreakTo
		}
	})
}

func (t *memTx) CreateRewardEvent(ctx context.Context, event *qrcampaign.RewardEvent) error {
	t.st.nextEvtID++
	event.ID = t.st.nextEvtID
	event.CreatedAt = time.Now()
	t.st.rewards = append(t.st.rewards, *event)
	return nil
}

func (t *memTx) mutateProgress(toolID int64, userID string, mutate func(p *qrcampaign.CampaignProgress)) (*qrcampaign.CampaignProgress, error) {
	key := progressKey{toolID, userID}
	p, ok := t.st.progress[key]
	if !ok {
		p = qrcampaign.CampaignProgress{ToolID: toolID, UserID: userID}
	}
	mutate(&p)
	p.UpdatedAt = time.Now()
	t.st.progress[key] = p

	out := p
	return &out, nil
}
