// internal/repository/postgres/reward_event_repo.go
package postgres

import (
	"context"
	"fmt"
	"strings"

	"qrloop-service/internal/domain/qrcampaign"

	"github.com/lib/pq"
)

type RewardEventRepository struct {
	db querier
}

func NewRewardEventRepository(db querier) *RewardEventRepository {
	return &RewardEventRepository{db: db}
}

func (r *RewardEventRepository) Create(ctx context.Context, e *qrcampaign.RewardEvent) error {
	query := `
		INSERT INTO reward_events (
			tool_id, user_id, code_id, ordinal, streak_at_reward, tags_to_add, message_to_send
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	tags := []string(e.TagsToAdd)
	if tags == nil {
		tags = []string{}
	}

	err := r.db.QueryRow(
		ctx, query,
		e.ToolID, e.UserID, e.CodeID, e.Ordinal, e.StreakAtReward, pq.Array(tags), e.MessageToSend,
	).Scan(&e.ID, &e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create reward event: %w", err)
	}

	return nil
}

// List retrieves a page of reward events for a tool, newest first
func (r *RewardEventRepository) List(ctx context.Context, toolID int64, filters *qrcampaign.RewardListFilters) ([]qrcampaign.RewardEvent, int64, error) {
	conditions := []string{"tool_id = $1"}
	args := []interface{}{toolID}
	argPos := 2

	if filters.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argPos))
		args = append(args, filters.UserID)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM reward_events %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reward events: %w", err)
	}

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`
		SELECT id, tool_id, user_id, code_id, ordinal, streak_at_reward,
		       tags_to_add, message_to_send, created_at
		FROM reward_events
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	args = append(args, filters.PageSize, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reward events: %w", err)
	}
	defer rows.Close()

	events := []qrcampaign.RewardEvent{}
	for rows.Next() {
		var e qrcampaign.RewardEvent
		var tags []string
		err := rows.Scan(
			&e.ID, &e.ToolID, &e.UserID, &e.CodeID, &e.Ordinal, &e.StreakAtReward,
			pq.Array(&tags), &e.MessageToSend, &e.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan reward event: %w", err)
		}
		e.TagsToAdd = pq.StringArray(tags)
		events = append(events, e)
	}

	return events, total, rows.Err()
}
