package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harmaja/presence-engine/internal/store"
	"github.com/harmaja/presence-engine/pkg/config"
	"github.com/harmaja/presence-engine/pkg/mqtt"
	"github.com/harmaja/presence-engine/pkg/redis"
)

// AnalyzeTopic triggers a full analysis run; the report publishes on
// AnalysisReportTopic.
const (
	AnalyzeTopic        = "presence/command/analyze"
	AnalysisReportTopic = "presence/analysis/report"
)

// Agent owns the runtime: the area arena, the sensor evidence intake,
// the decay tick and the scheduled analysis cycle. All areas live in
// the arena by index; nothing holds an owning back-reference.
type Agent struct {
	mqtt   mqtt.Client
	redis  redis.Client
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location

	queue   *TaskQueue
	tracker *intervalTracker

	areas    []*AreaState
	byEntity map[string]int

	analysisMu sync.Mutex
}

// NewAgent builds the agent from its dependencies and the area layout.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, st *store.Store,
	cfg *config.Config, layout *config.AreaLayout, logger *slog.Logger) (*Agent, error) {

	loc := time.Local

	a := &Agent{
		mqtt:     mqttClient,
		redis:    redisClient,
		store:    st,
		cfg:      cfg,
		logger:   logger.With("component", "coordinator"),
		loc:      loc,
		queue:    NewTaskQueue(64, logger),
		tracker:  newIntervalTracker(),
		byEntity: make(map[string]int),
	}

	for i, ac := range layout.Areas {
		sleepWindow := sleepWindowFunc(ac.SleepWindow, cfg.Latitude, cfg.Longitude, loc)
		area, err := newAreaState(i, ac, sleepWindow, a.logger)
		if err != nil {
			return nil, err
		}
		a.areas = append(a.areas, area)
		for entity := range area.Sensors {
			a.byEntity[entity] = i
		}
	}

	return a, nil
}

// Start connects the transports, registers areas and sensors in the
// store, subscribes to evidence topics and launches the background
// loops. It blocks until the context is cancelled.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting presence coordinator",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress(),
		"areas", len(a.areas))

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	if err := a.registerAreas(ctx); err != nil {
		return fmt.Errorf("failed to register areas: %w", err)
	}

	a.queue.Start(ctx)

	if err := a.mqtt.Subscribe(mqtt.TopicRawSensors, 0, a.handleSensorMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}
	if err := a.mqtt.Subscribe(AnalyzeTopic, 0, a.handleAnalyzeTrigger); err != nil {
		return fmt.Errorf("failed to subscribe to analyze trigger: %w", err)
	}

	go a.decayLoop(ctx)
	go a.analysisLoop(ctx)

	// Publish the initial state so consumers see something before the
	// first evidence arrives.
	for _, area := range a.areas {
		area.recompute(time.Now().UTC(), a.loc)
		a.publishAreaState(ctx, area)
	}

	a.logger.Info("Presence coordinator started",
		"sensor_topic", mqtt.TopicRawSensors,
		"decay_tick", time.Duration(a.cfg.DecayTickSec)*time.Second,
		"analysis_interval", time.Duration(a.cfg.AnalysisIntervalSec)*time.Second)

	<-ctx.Done()
	a.logger.Info("Presence coordinator stopping")
	return nil
}

// Stop gracefully shuts the agent down.
func (a *Agent) Stop() error {
	a.logger.Info("Stopping presence coordinator")

	a.mqtt.Disconnect()

	// Published area state is only live while the agent updates it.
	// Clear the keys so consumers see an absent area rather than a
	// probability frozen at shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	keys := make([]string, 0, len(a.areas))
	for _, area := range a.areas {
		keys = append(keys, redis.AreaStateKey(area.Name))
	}
	if len(keys) > 0 {
		if err := a.redis.Del(ctx, keys...); err != nil {
			a.logger.Warn("Failed to clear published area state", "error", err)
		}
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Error closing store", "error", err)
		return err
	}

	a.logger.Info("Presence coordinator stopped")
	return nil
}

// registerAreas upserts areas and sensors so learned likelihoods from
// earlier runs carry over, and loads persisted priors into the arena.
func (a *Agent) registerAreas(ctx context.Context) error {
	for _, area := range a.areas {
		id, err := a.store.EnsureArea(ctx, area.Name, area.Purpose, area.Threshold)
		if err != nil {
			return err
		}
		area.ID = id

		for entity, record := range area.Sensors {
			if _, err := a.store.EnsureSensor(ctx, id, entity,
				string(record.Category), record.Weight); err != nil {
				return err
			}
		}

		persisted, err := a.store.SensorsForArea(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range persisted {
			record, ok := area.Sensors[p.Entity]
			if !ok {
				continue
			}
			if err := record.SetLikelihoods(p.ProbTrue, p.ProbFalse); err != nil {
				a.logger.Warn("Ignoring persisted likelihoods",
					"entity", p.Entity, "error", err)
			}
		}

		if prior, ok, err := a.store.GlobalPriorForArea(ctx, id); err != nil {
			return err
		} else if ok {
			area.GlobalPrior = prior.Value
		}

		timePriors, err := a.store.TimePriorsForArea(ctx, id)
		if err != nil {
			return err
		}
		for key, tp := range timePriors {
			area.TimePriors[key] = tp.Value
		}
	}
	return nil
}

// sensorPayload is the evidence message published by the host on
// presence/raw/{area}/{entity}.
type sensorPayload struct {
	State     string   `json:"state"`
	Value     *float64 `json:"value,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

func (a *Agent) handleSensorMessage(msg mqtt.Message) {
	topic := msg.Topic()

	_, entity, err := mqtt.ParseRawTopic(topic)
	if err != nil {
		a.logger.Warn("Invalid sensor topic", "topic", topic, "error", err)
		return
	}

	idx, ok := a.byEntity[entity]
	if !ok {
		a.logger.Debug("Ignoring unconfigured entity", "entity", entity)
		return
	}
	area := a.areas[idx]

	var payload sensorPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		a.logger.Error("Failed to parse sensor payload", "topic", topic, "error", err)
		return
	}

	at := time.Now().UTC()
	if payload.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			at = parsed.UTC()
		} else {
			a.logger.Debug("Unparseable sensor timestamp, using arrival time",
				"entity", entity, "timestamp", payload.Timestamp)
		}
	}

	ctx := context.Background()

	area.mu.Lock()
	record := area.Sensors[entity]
	if record.Category.IsNumeric() {
		if payload.Value != nil {
			a.tracker.Sample(entity, *payload.Value, at)
		}
	} else {
		a.tracker.Observe(entity, payload.State, at)
	}
	changed := record.Observe(payload.State, payload.Value, at)
	area.mu.Unlock()

	a.publishSensorState(ctx, area.Name, entity, payload.State, at)

	// Only an effective evidence edge triggers recomputation.
	if !changed {
		return
	}

	area.recompute(at, a.loc)
	a.publishAreaState(ctx, area)
}

func (a *Agent) handleAnalyzeTrigger(msg mqtt.Message) {
	a.logger.Info("Manual analysis triggered")

	go func() {
		report, err := a.RunAnalysis(context.Background())
		if err != nil {
			a.logger.Error("Manual analysis failed", "error", err)
			return
		}

		data, err := json.Marshal(report)
		if err != nil {
			a.logger.Error("Failed to marshal analysis report", "error", err)
			return
		}
		if err := a.mqtt.Publish(AnalysisReportTopic, 0, false, data); err != nil {
			a.logger.Error("Failed to publish analysis report", "error", err)
		}
	}()
}

// decayLoop recomputes areas with decaying sensors on a short fixed
// tick so the published probability tracks the decay curve.
func (a *Agent) decayLoop(ctx context.Context) {
	tick := time.Duration(a.cfg.DecayTickSec) * time.Second
	if tick <= 0 {
		tick = 10 * time.Second
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, area := range a.areas {
				if !area.hasDecayingSensor() {
					continue
				}
				area.recompute(now.UTC(), a.loc)
				a.publishAreaState(ctx, area)
			}
		}
	}
}

// analysisLoop runs the full analysis cycle on the configured
// interval.
func (a *Agent) analysisLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.AnalysisIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.RunAnalysis(ctx); err != nil {
				a.logger.Error("Scheduled analysis failed", "error", err)
			}
		}
	}
}
