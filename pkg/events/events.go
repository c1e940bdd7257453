// Package events carries scan requests in and vulnerability findings out.
//
// Messages are JSON payloads published to named topics. A [Bus] delivers
// each message to every consumer group subscribed to its topic, and to one
// consumer within a group. Two backends are provided:
//
//   - [MemoryBus]: in-process, for tests and single-binary deployments
//   - [RedisBus]: Redis Streams with consumer groups (XADD, XREADGROUP, XACK)
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/depscanner/pkg/store"
)

// Topic names shared with the project and notification services.
const (
	TopicScanRequested = "project-vuln-scan-topic"
	TopicAdvisoryFound = "advisory-found-topic"
)

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("events: bus closed")

// Message is one delivered event.
type Message struct {
	ID      string
	Topic   string
	Payload []byte
}

// Handler processes a message. A non-nil error leaves the message
// unacknowledged on backends that support redelivery.
type Handler func(ctx context.Context, msg Message) error

// Bus publishes and consumes topic messages.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe consumes topic as a member of group until ctx is done. It
	// returns nil on cancellation.
	Subscribe(ctx context.Context, topic, group string, h Handler) error
	Close() error
}

// Project describes the project a scan belongs to.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ProjectType string    `json:"projectType,omitempty"`
}

// ScanRequested asks for the direct dependencies of a project to be scanned.
type ScanRequested struct {
	ScanID       string             `json:"scanId,omitempty"`
	UserEmail    string             `json:"userEmail"`
	Project      Project            `json:"projectResponse"`
	Dependencies []store.VersionKey `json:"dependencies"`
}

// VulnerableDependency is a dependency with the advisory keys found on it.
type VulnerableDependency struct {
	Dependency   store.VersionKey `json:"dependency"`
	AdvisoryKeys []string         `json:"advisoryKeys"`
	PURL         string           `json:"purl,omitempty"`
}

// AdvisoryFound reports the vulnerable dependencies found by a scan.
type AdvisoryFound struct {
	ScanID           string                 `json:"scanId"`
	UserEmail        string                 `json:"userEmail"`
	Project          Project                `json:"projectResponse"`
	VulnDependencies []VulnerableDependency `json:"vulnDependencies"`
	// Truncated is set when the scan stopped before walking the whole
	// closure, so more vulnerable dependencies may exist.
	Truncated bool `json:"truncated,omitempty"`
}

// PublishJSON encodes v and publishes it to topic.
func PublishJSON(ctx context.Context, bus Bus, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	return bus.Publish(ctx, topic, payload)
}

// Decode unmarshals the payload of msg.
func Decode[T any](msg Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s message %s: %w", msg.Topic, msg.ID, err)
	}
	return v, nil
}
