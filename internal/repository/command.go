package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

type CommandRepository struct {
	db DB
}

func NewCommandRepository(db DB) *CommandRepository {
	return &CommandRepository{db: db}
}

func (r *CommandRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// SelectTimedOut returns sent commands whose ack window has elapsed, oldest first.
func (r *CommandRepository) SelectTimedOut(ctx context.Context, ext RepoExtension, timeoutSeconds, limit int) ([]model.DeviceCommand, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		SELECT command_id::text, device_id::text, status, sent_at, error_message, updated_at
		FROM device_commands
		WHERE status = 'sent'
		  AND sent_at IS NOT NULL
		  AND sent_at <= NOW() - make_interval(secs => $1)
		ORDER BY sent_at ASC
		LIMIT $2;
	`

	rows, err := ext.Query(ctx, query, timeoutSeconds, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select timed out commands: %w", err)
	}

	defer rows.Close()

	var commands []model.DeviceCommand

	for rows.Next() {
		var cmd model.DeviceCommand
		if err := rows.Scan(
			&cmd.CommandID,
			&cmd.DeviceID,
			&cmd.Status,
			&cmd.SentAt,
			&cmd.ErrorMessage,
			&cmd.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}

		commands = append(commands, cmd)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commands: %w", err)
	}

	return commands, nil
}

// MarkTimedOut moves a command from sent to timeout. It reports false when the row is no longer
// sent, which means another writer got there first.
func (r *CommandRepository) MarkTimedOut(ctx context.Context, ext RepoExtension, commandID, deviceID, errorMessage string) (bool, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		UPDATE device_commands
		SET status = 'timeout', error_message = $3, updated_at = NOW()
		WHERE command_id = $1 AND device_id = $2 AND status = 'sent';
	`

	tag, err := ext.Exec(ctx, query, commandID, deviceID, errorMessage)
	if err != nil {
		return false, fmt.Errorf("failed to mark command timed out: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}
