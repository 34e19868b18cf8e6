package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagevault/internal/models"
	"imagevault/internal/queue"
)

// ActivityWriter persists activity entries.
type ActivityWriter interface {
	Record(ctx context.Context, entry models.ActivityEntry) error
}

type Processor struct {
	logger   zerolog.Logger
	activity ActivityWriter
}

func NewProcessor(logger zerolog.Logger, activity ActivityWriter) *Processor {
	return &Processor{
		logger:   logger,
		activity: activity,
	}
}

// Handle dispatches a stream message. Malformed and unknown messages are logged
// and acknowledged so they do not block the group; write failures are returned
// and the message stays pending.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	payload, err := queue.DecodeMessage(msg.Values)
	if err != nil {
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("drop undecodable message")
		return nil
	}

	switch payload.Type {
	case queue.TypeActivity:
		return p.handleActivity(ctx, msg.ID, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) handleActivity(ctx context.Context, id string, payload queue.ActivityMessage) error {
	entry, err := payload.Entry()
	if err != nil {
		p.logger.Warn().Err(err).Str("message_id", id).Msg("drop invalid activity message")
		return nil
	}
	if err := p.activity.Record(ctx, entry); err != nil {
		return fmt.Errorf("record activity %s: %w", entry.SavedFilename, err)
	}
	p.logger.Debug().Str("message_id", id).Str("saved_filename", entry.SavedFilename).Msg("activity recorded")
	return nil
}
