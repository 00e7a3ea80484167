// internal/repository/postgres/tool_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrloop-service/internal/domain/qrcampaign"
	"qrloop-service/internal/domain/tool"
	xerrors "qrloop-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const toolColumns = `id, owner_identity_id, name, tool_type, status, qr_config,
		       webhook_key_hash, created_at, updated_at`

type ToolRepository struct {
	db querier
}

func NewToolRepository(db *pgxpool.Pool) *ToolRepository {
	return &ToolRepository{db: db}
}

// Create inserts a tool and fills in its generated columns
func (r *ToolRepository) Create(ctx context.Context, t *tool.Tool) error {
	query := `
		INSERT INTO tools (owner_identity_id, name, tool_type, status, qr_config, webhook_key_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	configJSON, err := json.Marshal(t.QRConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal qr config: %w", err)
	}

	err = r.db.QueryRow(
		ctx, query,
		t.OwnerIdentityID, t.Name, t.ToolType, t.Status, configJSON, t.WebhookKeyHash,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create tool: %w", err)
	}

	return nil
}

// FindByID retrieves a tool by ID
func (r *ToolRepository) FindByID(ctx context.Context, id int64) (*tool.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools WHERE id = $1`

	t, err := scanTool(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tool: %w", err)
	}

	return t, nil
}

// FindToolCampaign loads the slice of a tool the campaign engine needs.
func (r *ToolRepository) FindToolCampaign(ctx context.Context, toolID int64) (*qrcampaign.ToolCampaign, error) {
	query := `SELECT id, owner_identity_id, qr_config FROM tools WHERE id = $1`

	var tc qrcampaign.ToolCampaign
	var configJSON []byte

	err := r.db.QueryRow(ctx, query, toolID).Scan(&tc.ToolID, &tc.OwnerIdentityID, &configJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tool: %w", err)
	}

	if err := json.Unmarshal(configJSON, &tc.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal qr config: %w", err)
	}

	return &tc, nil
}

// List retrieves tools with filters. A nil ownerID lists every owner's tools.
func (r *ToolRepository) List(ctx context.Context, ownerID *int64, filters *tool.ToolListFilters) ([]tool.Tool, int64, error) {
	conditions := []string{}
	args := []interface{}{}
	argPos := 1

	if ownerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_identity_id = $%d", argPos))
		args = append(args, *ownerID)
		argPos++
	}

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argPos))
		args = append(args, "%"+filters.Search+"%")
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM tools %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tools: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM tools
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, toolColumns, whereClause, argPos, argPos+1)

	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	tools := []tool.Tool{}
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tool: %w", err)
		}
		tools = append(tools, *t)
	}

	return tools, total, rows.Err()
}

// UpdateQRConfig replaces a tool's campaign config
func (r *ToolRepository) UpdateQRConfig(ctx context.Context, id int64, cfg qrcampaign.CampaignConfig) error {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal qr config: %w", err)
	}

	query := `UPDATE tools SET qr_config = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, configJSON, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update qr config: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

func (r *ToolRepository) UpdateWebhookKeyHash(ctx context.Context, id int64, hash string) error {
	query := `UPDATE tools SET webhook_key_hash = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update webhook key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

func (r *ToolRepository) UpdateStatus(ctx context.Context, id int64, status tool.ToolStatus) error {
	query := `UPDATE tools SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}

func scanTool(row rowScanner) (*tool.Tool, error) {
	var t tool.Tool
	var configJSON []byte

	err := row.Scan(
		&t.ID, &t.OwnerIdentityID, &t.Name, &t.ToolType, &t.Status, &configJSON,
		&t.WebhookKeyHash, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &t.QRConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal qr config: %w", err)
		}
	}

	return &t, nil
}
