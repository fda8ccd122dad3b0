package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	EventUserRegistered EventType = "user.registered"
	EventXPGained       EventType = "ledger.xp_gained"
	EventLeagueChanged  EventType = "ledger.league_changed"

	EventReconcileCompleted EventType = "system.reconcile_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// User Events
// ═══════════════════════════════════════════════════════════════════════════

// UserRegisteredEvent is emitted after a profile is created.
type UserRegisteredEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Payload implements Event interface.
func (e UserRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"display_name": e.DisplayName,
	}
}

// NewUserRegisteredEvent creates a new UserRegisteredEvent.
func NewUserRegisteredEvent(userID, displayName string, at time.Time) UserRegisteredEvent {
	return UserRegisteredEvent{
		BaseEvent:   NewBaseEvent(EventUserRegistered, userID, at),
		UserID:      userID,
		DisplayName: displayName,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted after an activity record is committed.
type XPGainedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	LogID    string `json:"log_id"`
	Kind     string `json:"activity_kind"`
	Amount   int64  `json:"amount"`
	NewTotal int64  `json:"new_total"`
	League   string `json:"league"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"log_id":        e.LogID,
		"activity_kind": e.Kind,
		"amount":        e.Amount,
		"new_total":     e.NewTotal,
		"league":        e.League,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID, logID, kind string, amount, newTotal int64, league string, at time.Time) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID, at),
		UserID:    userID,
		LogID:     logID,
		Kind:      kind,
		Amount:    amount,
		NewTotal:  newTotal,
		League:    league,
	}
}

// LeagueChangedEvent is emitted when a write moves a user into another tier.
type LeagueChangedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	OldLeague string `json:"old_league"`
	NewLeague string `json:"new_league"`
	XPTotal   int64  `json:"xp_total"`
}

// Payload implements Event interface.
func (e LeagueChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"old_league": e.OldLeague,
		"new_league": e.NewLeague,
		"xp_total":   e.XPTotal,
	}
}

// NewLeagueChangedEvent creates a new LeagueChangedEvent.
func NewLeagueChangedEvent(userID, oldLeague, newLeague string, total int64, at time.Time) LeagueChangedEvent {
	return LeagueChangedEvent{
		BaseEvent: NewBaseEvent(EventLeagueChanged, userID, at),
		UserID:    userID,
		OldLeague: oldLeague,
		NewLeague: newLeague,
		XPTotal:   total,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// ReconcileCompletedEvent summarizes one reconciliation pass.
type ReconcileCompletedEvent struct {
	BaseEvent
	UsersChecked  int `json:"users_checked"`
	Mismatches    int `json:"mismatches"`
	OrphanRecords int `json:"orphan_records"`
}

// Payload implements Event interface.
func (e ReconcileCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"users_checked":  e.UsersChecked,
		"mismatches":     e.Mismatches,
		"orphan_records": e.OrphanRecords,
	}
}

// NewReconcileCompletedEvent creates a new ReconcileCompletedEvent.
func NewReconcileCompletedEvent(checked, mismatches, orphans int, at time.Time) ReconcileCompletedEvent {
	return ReconcileCompletedEvent{
		BaseEvent:     NewBaseEvent(EventReconcileCompleted, "ledger", at),
		UsersChecked:  checked,
		Mismatches:    mismatches,
		OrphanRecords: orphans,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
