package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/cache"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/ladder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJob(ctx context.Context, desc *models.EncodeJobDescription) error {
	args := m.Called(ctx, desc)
	return args.Error(0)
}

func setupStatusStore(t *testing.T) *cache.Cache {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := cache.NewCache(context.Background(), mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})
	return c
}

func testDescription(t *testing.T) models.EncodeJobDescription {
	levels, err := ladder.Default().Resolve([]string{models.QualitySD480, models.QualityHD720})
	require.NoError(t, err)

	return models.EncodeJobDescription{
		JobID:              "job-1",
		InputKey:           "uploads/1-movie.mp4",
		OutputPrefix:       "uploads/1-movie",
		RequestedQualities: levels,
	}
}

func TestEncoderSubmit(t *testing.T) {
	statuses := setupStatusStore(t)
	publisher := new(mockPublisher)
	publisher.On("PublishJob", mock.Anything, mock.MatchedBy(func(d *models.EncodeJobDescription) bool {
		return d.JobID == "job-1" && len(d.RequestedQualities) == 2
	})).Return(nil)

	enc := NewEncoder(publisher, statuses, time.Hour)
	handle, err := enc.Submit(context.Background(), testDescription(t))
	require.NoError(t, err)
	assert.Equal(t, "job-1", handle)
	publisher.AssertExpectations(t)

	// No worker has picked it up yet
	status, err := enc.Status(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, models.ExternalQueued, status.State)
}

func TestEncoderSubmitPublishFailure(t *testing.T) {
	statuses := setupStatusStore(t)
	publisher := new(mockPublisher)
	publisher.On("PublishJob", mock.Anything, mock.Anything).Return(errors.New("channel closed"))

	enc := NewEncoder(publisher, statuses, time.Hour)
	_, err := enc.Submit(context.Background(), testDescription(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrEncoderRejected)
}

func TestEncoderSubmitRejectsMalformed(t *testing.T) {
	statuses := setupStatusStore(t)
	publisher := new(mockPublisher)
	enc := NewEncoder(publisher, statuses, time.Hour)

	desc := testDescription(t)
	desc.RequestedQualities = nil
	_, err := enc.Submit(context.Background(), desc)
	assert.ErrorIs(t, err, models.ErrEncoderRejected)

	desc = testDescription(t)
	desc.InputKey = ""
	_, err = enc.Submit(context.Background(), desc)
	assert.ErrorIs(t, err, models.ErrEncoderRejected)

	publisher.AssertNotCalled(t, "PublishJob", mock.Anything, mock.Anything)
}

func TestEncoderStatusReportedByWorker(t *testing.T) {
	statuses := setupStatusStore(t)
	enc := NewEncoder(new(mockPublisher), statuses, time.Hour)

	done := models.ExternalStatus{
		State:   models.ExternalSuccess,
		Outputs: []models.EncodedOutput{{QualityID: models.QualitySD480, Key: "uploads/1-movie/sd480/playlist.m3u8"}},
	}
	require.NoError(t, statuses.SetEncodeStatus(context.Background(), "job-1", done, time.Hour))

	status, err := enc.Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, done, status)
}

func TestEncoderStatusUnknownHandle(t *testing.T) {
	statuses := setupStatusStore(t)
	enc := NewEncoder(new(mockPublisher), statuses, time.Hour)

	status, err := enc.Status(context.Background(), "never-submitted")
	require.NoError(t, err)
	assert.Equal(t, models.ExternalError, status.State)
}

func TestEncoderStatusTransportError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	statuses, err := cache.NewCache(context.Background(), mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	defer statuses.Close()

	enc := NewEncoder(new(mockPublisher), statuses, time.Hour)

	mr.Close()
	_, err = enc.Status(context.Background(), "job-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestDecodeJob(t *testing.T) {
	_, err := decodeJob([]byte("not json"))
	assert.Error(t, err)

	_, err = decodeJob([]byte(`{"job_id":"j"}`))
	assert.Error(t, err)

	desc, err := decodeJob([]byte(`{"job_id":"j","input_key":"uploads/a.mp4","output_prefix":"uploads/a"}`))
	require.NoError(t, err)
	assert.Equal(t, "j", desc.JobID)
}
