package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// ExperienceGranted asks the progression service to award points to an owner.
type ExperienceGranted struct {
	OwnerID   int64     `json:"owner_id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	GrantedAt time.Time `json:"granted_at"`
}

// ExperiencePublisher grants experience by publishing ExperienceGranted
// messages keyed by owner.
type ExperiencePublisher struct {
	writer MessageWriter
	reason string
	now    func() time.Time
}

func NewExperiencePublisher(brokers []string, topic, reason string) *ExperiencePublisher {
	return NewExperiencePublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}, reason)
}

func NewExperiencePublisherWithWriter(w MessageWriter, reason string) *ExperiencePublisher {
	return &ExperiencePublisher{writer: w, reason: reason, now: time.Now}
}

// GrantExperience publishes a grant of points to ownerID.
func (p *ExperiencePublisher) GrantExperience(ctx context.Context, ownerID int64, points int) error {
	if points <= 0 {
		return nil
	}
	data, err := json.Marshal(ExperienceGranted{
		OwnerID:   ownerID,
		Points:    points,
		Reason:    p.reason,
		GrantedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal experience grant: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ownerID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte("experience_granted")},
		},
	})
	if err != nil {
		return fmt.Errorf("publish experience grant for owner %d: %w", ownerID, err)
	}
	return nil
}

func (p *ExperiencePublisher) Close() error {
	return p.writer.Close()
}
