package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/doorsync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix  = "presence:"
	eventDevicesPrefix = "event:%s:devices"
	presenceTTL        = 90 * time.Second // a bit over two missed sync heartbeats
)

type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

// SetPresence refreshes a device's presence with automatic TTL. Devices
// heartbeat once per sync cycle; a device that stops syncing ages out and
// reads as offline.
func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now()

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(presence.DeviceID)
	if err := r.client.Set(ctx, key, data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	// Remember which devices ever worked this event so ListByEvent can
	// report the offline ones too.
	eventKey := fmt.Sprintf(eventDevicesPrefix, presence.EventID)
	if err := r.client.SAdd(ctx, eventKey, presence.DeviceID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add device to event set: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) GetPresence(ctx context.Context, deviceID uuid.UUID) (*models.Presence, error) {
	key := presenceKey(deviceID)

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// No presence = device is offline
		return &models.Presence{
			DeviceID: deviceID,
			Status:   string(models.StatusOffline),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence models.Presence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &presence, nil
}

// ListByEvent returns presence for every device that has heartbeated this
// event, offline ones included. Values are fetched in one MGET round trip.
func (r *RedisPresenceRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Presence, error) {
	eventKey := fmt.Sprintf(eventDevicesPrefix, eventID)

	ids, err := r.client.SMembers(ctx, eventKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list event devices: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	deviceIDs := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		deviceID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("corrupt device id %q in event set: %w", id, err)
		}
		deviceIDs[i] = deviceID
		keys[i] = presenceKey(deviceID)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	presences := make([]models.Presence, 0, len(results))
	for i, result := range results {
		if result == nil {
			presences = append(presences, models.Presence{
				DeviceID: deviceIDs[i],
				EventID:  eventID,
				Status:   string(models.StatusOffline),
			})
			continue
		}

		data, ok := result.(string)
		if !ok {
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			// If we can't unmarshal, treat as offline
			presences = append(presences, models.Presence{
				DeviceID: deviceIDs[i],
				EventID:  eventID,
				Status:   string(models.StatusOffline),
			})
			continue
		}
		presences = append(presences, presence)
	}

	return presences, nil
}

// Helper: build Redis key for presence
func presenceKey(deviceID uuid.UUID) string {
	return presenceKeyPrefix + deviceID.String()
}
