// internal/repository/postgres/qr_code_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrloop-service/internal/domain/qrcampaign"
	xerrors "qrloop-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

const codeColumns = `id, code, tool_id, user_id, is_recurring, status,
		       scanned_at, scan_count, expires_at, metadata, created_at`

type QRCodeRepository struct {
	db querier
}

func NewQRCodeRepository(db querier) *QRCodeRepository {
	return &QRCodeRepository{db: db}
}

func (r *QRCodeRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qr_codes WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

// FindByCode retrieves a code by its opaque string
func (r *QRCodeRepository) FindByCode(ctx context.Context, code string) (*qrcampaign.QRCodeInstance, error) {
	query := `SELECT ` + codeColumns + ` FROM qr_codes WHERE code = $1`

	c, err := scanCode(r.db.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find code: %w", err)
	}

	return c, nil
}

// FindActive returns the user's issued code for the tool, expired or not.
func (r *QRCodeRepository) FindActive(ctx context.Context, toolID int64, userID string) (*qrcampaign.QRCodeInstance, error) {
	query := `
		SELECT ` + codeColumns + `
		FROM qr_codes
		WHERE tool_id = $1 AND user_id = $2 AND status = 'issued'
	`

	c, err := scanCode(r.db.QueryRow(ctx, query, toolID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active code: %w", err)
	}

	return c, nil
}

// Insert stores a new issued code. A conflict on either unique index leaves the
// transaction usable and is reported as ErrConflict or ErrDuplicateEntry.
func (r *QRCodeRepository) Insert(ctx context.Context, c *qrcampaign.QRCodeInstance) error {
	query := `
		INSERT INTO qr_codes (code, tool_id, user_id, is_recurring, status, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
		RETURNING id, scan_count, created_at
	`

	var metadataJSON []byte
	var err error

	if c.Metadata != nil {
		metadataJSON, err = json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	err = r.db.QueryRow(
		ctx, query,
		c.Code, c.ToolID, c.UserID, c.IsRecurring, c.Status, c.ExpiresAt, metadataJSON,
	).Scan(&c.ID, &c.ScanCount, &c.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		if c.UserID != nil {
			if _, ferr := r.FindActive(ctx, c.ToolID, *c.UserID); ferr == nil {
				return xerrors.ErrConflict
			}
		}
		return xerrors.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("failed to insert code: %w", err)
	}

	return nil
}

// Consume is the compare-and-swap that makes a code single use.
func (r *QRCodeRepository) Consume(ctx context.Context, codeID int64, userID string, now time.Time) (bool, error) {
	query := `
		UPDATE qr_codes
		SET scanned_at = $3, scan_count = scan_count + 1, status = 'scanned',
		    user_id = COALESCE(user_id, $2)
		WHERE id = $1 AND scanned_at IS NULL AND status = 'issued'
		  AND (user_id IS NULL OR user_id = $2)
	`

	result, err := r.db.Exec(ctx, query, codeID, userID, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume code: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *QRCodeRepository) MarkExpired(ctx context.Context, codeID int64) error {
	query := `
		UPDATE qr_codes SET status = 'expired'
		WHERE id = $1 AND status = 'issued' AND scanned_at IS NULL
	`
	if _, err := r.db.Exec(ctx, query, codeID); err != nil {
		return fmt.Errorf("failed to expire code: %w", err)
	}
	return nil
}

// List retrieves a page of a tool's codes, newest first
func (r *QRCodeRepository) List(ctx context.Context, toolID int64, filters *qrcampaign.CodeListFilters) ([]qrcampaign.QRCodeInstance, int64, error) {
	conditions := []string{"tool_id = $1"}
	args := []interface{}{toolID}
	argPos := 2

	if filters.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argPos))
		args = append(args, filters.UserID)
		argPos++
	}

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM qr_codes %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count codes: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM qr_codes
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, codeColumns, whereClause, argPos, argPos+1)

	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	codes := []qrcampaign.QRCodeInstance{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, *c)
	}

	return codes, total, rows.Err()
}

func scanCode(row rowScanner) (*qrcampaign.QRCodeInstance, error) {
	var c qrcampaign.QRCodeInstance
	var metadataJSON []byte

	err := row.Scan(
		&c.ID, &c.Code, &c.ToolID, &c.UserID, &c.IsRecurring, &c.Status,
		&c.ScannedAt, &c.ScanCount, &c.ExpiresAt, &metadataJSON, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &c, nil
}
