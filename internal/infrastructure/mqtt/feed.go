package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hearth-home/hearth/internal/control"
	"github.com/hearth-home/hearth/internal/device"
)

// feedQueueSize bounds the outbound publish queue. Signals arriving
// while the queue is full are dropped; the retained topics converge on
// the next change for that device.
const feedQueueSize = 256

// Publisher is the broker surface the feed needs.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// publishJob is one queued retained publish.
type publishJob struct {
	topic   string
	payload []byte
}

// Feed mirrors device state and the active mode onto retained MQTT
// topics. It implements the control surface's signal sink and the mode
// engine's mode sink; both enqueue without blocking and a single worker
// drains the queue, so slow broker round-trips never stall a mutation.
type Feed struct {
	pub    Publisher
	logger Logger
	queue  chan publishJob
}

// NewFeed creates a Feed publishing through pub. logger may be nil.
func NewFeed(pub Publisher, logger Logger) *Feed {
	return &Feed{
		pub:    pub,
		logger: logger,
		queue:  make(chan publishJob, feedQueueSize),
	}
}

// Run drains the publish queue until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-f.queue:
			if err := f.pub.PublishRetained(job.topic, job.payload); err != nil {
				if f.logger != nil {
					f.logger.Warn("state feed publish failed", "topic", job.topic, "error", err)
				}
			}
		}
	}
}

// DeviceChanged publishes the device's canonical state to its retained
// state topic. Never blocks; a full queue drops the signal.
func (f *Feed) DeviceChanged(sig control.Signal) {
	payload, err := json.Marshal(sig)
	if err != nil {
		if f.logger != nil {
			f.logger.Error("failed to marshal device state", "device_id", sig.DeviceID, "error", err)
		}
		return
	}
	f.enqueue(Topics{}.DeviceState(sig.DeviceID), payload)
}

// ModeChanged publishes the active home mode to its retained topic.
func (f *Feed) ModeChanged(mode device.Mode) {
	payload, err := json.Marshal(map[string]string{
		"mode":      string(mode),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	f.enqueue(Topics{}.Mode(), payload)
}

func (f *Feed) enqueue(topic string, payload []byte) {
	select {
	case f.queue <- publishJob{topic: topic, payload: payload}:
	default:
		if f.logger != nil {
			f.logger.Warn("state feed queue full, dropping publish", "topic", topic)
		}
	}
}
