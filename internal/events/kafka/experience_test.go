package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantExperience(t *testing.T) {
	w := &recordingWriter{}
	p := NewExperiencePublisherWithWriter(w, "newcomer_bonus")
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, p.GrantExperience(context.Background(), 42, 25))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "experience_granted", string(msg.Headers[0].Value))

	var got ExperienceGranted
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, int64(42), got.OwnerID)
	assert.Equal(t, 25, got.Points)
	assert.Equal(t, "newcomer_bonus", got.Reason)
	assert.True(t, got.GrantedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	require.NoError(t, p.GrantExperience(context.Background(), 42, 0))
	assert.Len(t, w.messages, 1)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestGrantExperienceError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker unavailable")}
	p := NewExperiencePublisherWithWriter(w, "newcomer_bonus")

	err := p.GrantExperience(context.Background(), 42, 25)
	assert.ErrorContains(t, err, "owner 42")
}
