// internal/service/tool/tool.go
package tool

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"qrloop-service/internal/domain/tool"
	xerrors "qrloop-service/internal/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const webhookKeyPrefix = "qrk_"

// Actor is the authenticated dashboard caller.
type Actor struct {
	IdentityID int64
	Admin      bool
}

type ToolService struct {
	repo   tool.Repository
	logger *zap.Logger
}

func NewToolService(repo tool.Repository, logger *zap.Logger) *ToolService {
	return &ToolService{
		repo:   repo,
		logger: logger,
	}
}

// CreateTool validates the campaign config and stores a new tool. The plaintext
// webhook key is only ever returned here and from RotateWebhookKey.
func (s *ToolService) CreateTool(ctx context.Context, actor Actor, req *tool.CreateToolRequest) (*tool.CreateToolResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", xerrors.ErrInvalidInput)
	}
	if err := req.QRConfig.Validate(); err != nil {
		return nil, err
	}

	key, hash, err := newWebhookKey()
	if err != nil {
		return nil, err
	}

	t := &tool.Tool{
		OwnerIdentityID: actor.IdentityID,
		Name:            name,
		ToolType:        tool.ToolTypeQRCampaign,
		Status:          tool.ToolStatusActive,
		QRConfig:        req.QRConfig,
		WebhookKeyHash:  hash,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		s.logger.Error("failed to create tool", zap.Error(err))
		return nil, fmt.Errorf("failed to create tool: %w", err)
	}

	s.logger.Info("tool created",
		zap.Int64("tool_id", t.ID),
		zap.Int64("owner_identity_id", t.OwnerIdentityID),
		zap.Bool("is_recurring", t.QRConfig.IsRecurring),
	)

	return &tool.CreateToolResponse{Tool: t, WebhookKey: key}, nil
}

// GetTool returns a tool the actor owns, or any tool for admins
func (s *ToolService) GetTool(ctx context.Context, actor Actor, id int64) (*tool.Tool, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && !t.OwnedBy(actor.IdentityID) {
		return nil, xerrors.ErrForbidden
	}
	return t, nil
}

// Authorize checks that the actor may operate on the tool.
func (s *ToolService) Authorize(ctx context.Context, actor Actor, id int64) error {
	_, err := s.GetTool(ctx, actor, id)
	return err
}

func (s *ToolService) ListTools(ctx context.Context, actor Actor, filters *tool.ToolListFilters) (*tool.ToolListResponse, error) {
	var owner *int64
	if !actor.Admin {
		owner = &actor.IdentityID
	}

	tools, total, err := s.repo.List(ctx, owner, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &tool.ToolListResponse{
		Tools:      tools,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages,
	}, nil
}

// UpdateQRConfig replaces the campaign config. Codes already issued keep their
// expiry; everything else applies from the next scan on.
func (s *ToolService) UpdateQRConfig(ctx context.Context, actor Actor, id int64, req *tool.UpdateQRConfigRequest) (*tool.Tool, error) {
	t, err := s.GetTool(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := req.QRConfig.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateQRConfig(ctx, id, req.QRConfig); err != nil {
		return nil, fmt.Errorf("failed to update qr config: %w", err)
	}
	t.QRConfig = req.QRConfig

	s.logger.Info("tool qr config updated", zap.Int64("tool_id", id))
	return t, nil
}

func (s *ToolService) UpdateStatus(ctx context.Context, actor Actor, id int64, status tool.ToolStatus) (*tool.Tool, error) {
	if status != tool.ToolStatusActive && status != tool.ToolStatusInactive {
		return nil, fmt.Errorf("%w: unknown status %q", xerrors.ErrInvalidInput, status)
	}

	t, err := s.GetTool(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	t.Status = status

	s.logger.Info("tool status updated",
		zap.Int64("tool_id", id),
		zap.String("status", string(status)),
	)
	return t, nil
}

// RotateWebhookKey invalidates the current key and returns a new one.
func (s *ToolService) RotateWebhookKey(ctx context.Context, actor Actor, id int64) (string, error) {
	if _, err := s.GetTool(ctx, actor, id); err != nil {
		return "", err
	}

	key, hash, err := newWebhookKey()
	if err != nil {
		return "", err
	}

	if err := s.repo.UpdateWebhookKeyHash(ctx, id, hash); err != nil {
		return "", fmt.Errorf("failed to rotate webhook key: %w", err)
	}

	s.logger.Info("tool webhook key rotated", zap.Int64("tool_id", id))
	return key, nil
}

// AuthenticateWebhook resolves the tool a webhook call targets and checks its key.
// Inactive tools refuse webhook traffic.
func (s *ToolService) AuthenticateWebhook(ctx context.Context, id int64, key string) (*tool.Tool, error) {
	if !strings.HasPrefix(key, webhookKeyPrefix) {
		return nil, xerrors.ErrUnauthorized
	}

	t, err := s.repo.FindByID(ctx, id)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(t.WebhookKeyHash), []byte(key)); err != nil {
		return nil, xerrors.ErrUnauthorized
	}
	if t.Status != tool.ToolStatusActive {
		return nil, xerrors.ErrForbidden
	}

	return t, nil
}

func newWebhookKey() (string, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate webhook key: %w", err)
	}
	key := webhookKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash webhook key: %w", err)
	}
	return key, string(hash), nil
}
