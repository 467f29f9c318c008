package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/harmaja/presence-engine/pkg/mqtt"
	"github.com/harmaja/presence-engine/pkg/redis"
)

const areaStateTTL = 24 * time.Hour

// AreaStatePayload is the public state published per area, retained on
// MQTT and mirrored into Redis.
type AreaStatePayload struct {
	Area        string  `json:"area"`
	Probability float64 `json:"probability"`
	Occupied    bool    `json:"occupied"`
	Threshold   float64 `json:"threshold"`
	GlobalPrior float64 `json:"global_prior"`
	ComputedAt  string  `json:"computed_at"`
}

// publishAreaState pushes the area's current fusion output to MQTT
// (retained) and Redis. Publish failures are logged, never propagated;
// stale output must not block the engine.
func (a *Agent) publishAreaState(ctx context.Context, area *AreaState) {
	area.mu.Lock()
	payload := AreaStatePayload{
		Area:        area.Name,
		Probability: area.Probability,
		Occupied:    area.Occupied,
		Threshold:   area.Threshold,
		GlobalPrior: area.GlobalPrior,
		ComputedAt:  area.ComputedAt.UTC().Format(time.RFC3339),
	}
	area.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("Failed to marshal area state", "area", payload.Area, "error", err)
		return
	}

	if err := a.mqtt.Publish(mqtt.AreaStateTopic(payload.Area), 0, true, data); err != nil {
		a.logger.Error("Failed to publish area state", "area", payload.Area, "error", err)
	}

	if err := a.redis.Set(ctx, redis.AreaStateKey(payload.Area), string(data), areaStateTTL); err != nil {
		a.logger.Error("Failed to mirror area state to Redis", "area", payload.Area, "error", err)
	}
}

// publishSensorState mirrors one sensor's latest reading into Redis
// for diagnostics.
func (a *Agent) publishSensorState(ctx context.Context, areaName, entity, state string, at time.Time) {
	key := redis.SensorStateKey(areaName, entity)
	if err := a.redis.HSet(ctx, key, "state", state); err != nil {
		a.logger.Debug("Failed to mirror sensor state", "entity", entity, "error", err)
		return
	}
	if err := a.redis.HSet(ctx, key, "last_seen", at.UTC().Format(time.RFC3339)); err != nil {
		a.logger.Debug("Failed to mirror sensor timestamp", "entity", entity, "error", err)
	}
	if err := a.redis.Expire(ctx, key, areaStateTTL); err != nil {
		a.logger.Debug("Failed to set sensor state TTL", "entity", entity, "error", err)
	}
}
