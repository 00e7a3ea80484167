// internal/repository/memory/store.go
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/domain/tool"
	xerrors "qrloop-service/internal/pkg/errors"
)

type progressKey struct {
	toolID int64
	userID string
}

type state struct {
	tools      map[int64]tool.Tool
	codes      map[int64]qrcampaign.QRCodeInstance
	codeIndex  map[string]int64
	progress   map[progressKey]qrcampaign.CampaignProgress
	rewards    []qrcampaign.RewardEvent
	nextToolID int64
	nextCodeID int64
	nextEvtID  int64
}

func (s *state) clone() state {
	c := *s
	c.tools = make(map[int64]tool.Tool, len(s.tools))
	for k, v := range s.tools {
		c.tools[k] = v
	}
	c.codes = make(map[int64]qrcampaign.QRCodeInstance, len(s.codes))
	for k, v := range s.codes {
		c.codes[k] = v
	}
	c.codeIndex = make(map[string]int64, len(s.codeIndex))
	for k, v := range s.codeIndex {
		c.codeIndex[k] = v
	}
	c.progress = make(map[progressKey]qrcampaign.CampaignProgress, len(s.progress))
	for k, v := range s.progress {
		c.progress[k] = v
	}
	c.rewards = append([]qrcampaign.RewardEvent(nil), s.rewards...)
	return c
}

// Store keeps tools, codes, progress and reward events in process memory.
// Transactions are serialized by a single mutex and roll back by restoring
// a snapshot taken when they began.
type Store struct {
	mu sync.Mutex
	st state
}

func NewStore() *Store {
	return &Store{
		st: state{
			tools:     make(map[int64]tool.Tool),
			codes:     make(map[int64]qrcampaign.QRCodeInstance),
			codeIndex: make(map[string]int64),
			progress:  make(map[progressKey]qrcampaign.CampaignProgress),
		},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx qrcampaign.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	if err := fn(&memTx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) FindToolCampaign(ctx context.Context, toolID int64) (*qrcampaign.ToolCampaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.findToolCampaign(toolID)
}

func (s *Store) GetProgress(ctx context.Context, toolID int64, userID string) (*qrcampaign.CampaignProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.st.progress[progressKey{toolID, userID}]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListCodes(ctx context.Context, toolID int64, filters *qrcampaign.CodeListFilters) ([]qrcampaign.QRCodeInstance, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []qrcampaign.QRCodeInstance{}
	for _, c := range s.st.codes {
		if c.ToolID != toolID {
			continue
		}
		if filters.UserID != "" && (c.UserID == nil || *c.UserID != filters.UserID) {
			continue
		}
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	return paginate(matched, filters.Page, filters.PageSize), int64(len(matched)), nil
}

func (s *Store) ListRewardEvents(ctx context.Context, toolID int64, filters *qrcampaign.RewardListFilters) ([]qrcampaign.RewardEvent, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []qrcampaign.RewardEvent{}
	for i := len(s.st.rewards) - 1; i >= 0; i-- {
		e := s.st.rewards[i]
		if e.ToolID != toolID {
			continue
		}
		if filters.UserID != "" && e.UserID != filters.UserID {
			continue
		}
		matched = append(matched, e)
	}

	return paginate(matched, filters.Page, filters.PageSize), int64(len(matched)), nil
}

// Tool repository

func (s *Store) Create(ctx context.Context, t *tool.Tool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.nextToolID++
	now := time.Now()
	t.ID = s.st.nextToolID
	t.CreatedAt = now
	t.UpdatedAt = now
	s.st.tools[t.ID] = *t
	return nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*tool.Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.tools[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &t, nil
}

func (s *Store) List(ctx context.Context, ownerID *int64, filters *tool.ToolListFilters) ([]tool.Tool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(filters.Search)
	matched := []tool.Tool{}
	for _, t := range s.st.tools {
		if ownerID != nil && t.OwnerIdentityID != *ownerID {
			continue
		}
		if filters.Status != nil && t.Status != *filters.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	return paginate(matched, filters.Page, filters.PageSize), int64(len(matched)), nil
}

func (s *Store) UpdateQRConfig(ctx context.Context, id int64, cfg qrcampaign.CampaignConfig) error {
	return s.updateTool(id, func(t *tool.Tool) { t.QRConfig = cfg })
}

func (s *Store) UpdateWebhookKeyHash(ctx context.Context, id int64, hash string) error {
	return s.updateTool(id, func(t *tool.Tool) { t.WebhookKeyHash = hash })
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status tool.ToolStatus) error {
	return s.updateTool(id, func(t *tool.Tool) { t.Status = status })
}

func (s *Store) updateTool(id int64, mutate func(t *tool.Tool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.tools[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	mutate(&t)
	t.UpdatedAt = time.Now()
	s.st.tools[id] = t
	return nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 || pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var (
	_ qrcampaign.Store = (*Store)(nil)
	_ tool.Repository  = (*Store)(nil)
)
