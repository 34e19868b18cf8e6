package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imagevault/internal/models"
)

const TypeActivity = "activity"

// ActivityMessage is the flat field set written to the activity stream.
type ActivityMessage struct {
	Type           string `json:"type"`
	Username       string `json:"username"`
	SavedFilename  string `json:"saved_filename"`
	PostedFilename string `json:"posted_filename"`
	IP             string `json:"ip"`
	UserAgent      string `json:"user_agent"`
	Referer        string `json:"referer"`
	CreatedAt      string `json:"created_at"`
}

func EncodeActivity(entry models.ActivityEntry) map[string]any {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return map[string]any{
		"type":            TypeActivity,
		"username":        entry.Username,
		"saved_filename":  entry.SavedFilename,
		"posted_filename": entry.PostedFilename,
		"ip":              entry.IP,
		"user_agent":      entry.UserAgent,
		"referer":         entry.Referer,
		"created_at":      created.Format(time.RFC3339Nano),
	}
}

// DecodeMessage reads stream fields into an ActivityMessage. Unknown fields are ignored.
func DecodeMessage(values map[string]any) (ActivityMessage, error) {
	var msg ActivityMessage
	raw, err := json.Marshal(values)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}

func (m ActivityMessage) Entry() (models.ActivityEntry, error) {
	entry := models.ActivityEntry{
		Username:       m.Username,
		SavedFilename:  m.SavedFilename,
		PostedFilename: m.PostedFilename,
		IP:             m.IP,
		UserAgent:      m.UserAgent,
		Referer:        m.Referer,
	}
	if m.SavedFilename == "" {
		return entry, fmt.Errorf("activity message without saved_filename")
	}
	if m.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
		if err != nil {
			return entry, fmt.Errorf("parse created_at: %w", err)
		}
		entry.CreatedAt = t
	}
	return entry, nil
}

// ActivityPublisher appends upload activity to a Redis stream for the worker to persist.
type ActivityPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewActivityPublisher(client redis.Cmdable, stream string, maxLen int64) *ActivityPublisher {
	return &ActivityPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *ActivityPublisher) Record(ctx context.Context, entry models.ActivityEntry) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: EncodeActivity(entry),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
