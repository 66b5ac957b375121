package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"breathing-analytics/internal/models"
)

// ErrNotConnected публикация без соединения с брокером
var ErrNotConnected = errors.New("mqtt not connected")

// Config параметры подключения к брокеру
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Summary сообщение о завершенном анализе
type Summary struct {
	SessionID      string           `json:"session_id"`
	AnalyzedAt     time.Time        `json:"analyzed_at"`
	RateBPM        float64          `json:"rate_bpm,omitempty"`
	Confidence     float64          `json:"confidence"`
	DepthScore     float64          `json:"depth_score"`
	FatigueWindows int              `json:"fatigue_windows"`
	Insights       []models.Insight `json:"insights"`
}

// NewSummary собирает сообщение из результата анализа
func NewSummary(result models.AnalysisResult) Summary {
	s := Summary{
		SessionID:      result.SessionID,
		AnalyzedAt:     result.AnalyzedAt,
		Confidence:     result.Rate.Confidence,
		DepthScore:     result.Rate.DepthScore,
		FatigueWindows: len(result.FatigueWindows),
		Insights:       result.Insights,
	}
	if result.Rate.HasRate() {
		s.RateBPM = result.Rate.RateBPM
	}
	if s.Insights == nil {
		s.Insights = []models.Insight{}
	}
	return s
}

// Topic топик сводки для сессии: {prefix}/{session_id}/insights
func (c Config) Topic(sessionID string) string {
	return fmt.Sprintf("%s/%s/insights", c.TopicPrefix, sessionID)
}

// MQTTEmitter публикует сводки анализа в MQTT брокер
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTEmitter создает эмиттер
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

// Connect устанавливает соединение с брокером
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connection aborted: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Publish публикует сводку анализа
func (e *MQTTEmitter) Publish(result models.AnalysisResult) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(NewSummary(result))
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	topic := e.cfg.Topic(result.SessionID)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("analysis summary published",
		"topic", topic,
		"size", len(payload))

	return nil
}

// Disconnect закрывает соединение
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// GetStats возвращает статистику эмиттера
func (e *MQTTEmitter) GetStats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return map[string]interface{}{
		"connected": e.connected,
		"published": e.published,
		"errors":    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
