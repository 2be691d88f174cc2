package worker

import (
	"testing"

	"booking-payment-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationQueueSchedule(t *testing.T) {
	q := NewVerificationQueue(2)

	require.NoError(t, q.Schedule(service.VerificationJob{BookingID: 1}))
	require.NoError(t, q.Schedule(service.VerificationJob{BookingID: 2}))

	// The buffer is full; submission must not block, it must be told no.
	err := q.Schedule(service.VerificationJob{BookingID: 3})
	assert.ErrorIs(t, err, ErrQueueFull)

	// Draining one slot makes room again.
	job := <-q.jobs
	assert.Equal(t, int64(1), job.BookingID)
	assert.NoError(t, q.Schedule(service.VerificationJob{BookingID: 4}))
}
