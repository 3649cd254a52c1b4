package model_test

import (
	"testing"
	"time"

	"github.com/mediafetch/fetchd/internal/model"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()
	cases := []struct {
		given model.Status
		then  bool
	}{
		{model.StatusStarting, false},
		{model.StatusDownloading, false},
		{model.StatusRetrying, false},
		{model.StatusCompleted, true},
		{model.StatusFailed, true},
		{model.StatusCancelled, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.given), func(t *testing.T) {
			require.Equal(t, tc.then, tc.given.Terminal())
		})
	}
}

func TestPatchApply(t *testing.T) {
	t.Parallel()

	t.Run("nil fields untouched", func(t *testing.T) {
		job := model.Job{Status: model.StatusDownloading, Progress: 40, Message: "Downloading files..."}
		msg := "Merging formats..."
		model.Patch{Message: &msg}.Apply(&job)
		require.Equal(t, model.StatusDownloading, job.Status)
		require.Equal(t, 40, job.Progress)
		require.Equal(t, msg, job.Message)
	})

	t.Run("progress never moves backwards", func(t *testing.T) {
		job := model.Job{Progress: 80}
		lower := 15
		model.Patch{Progress: &lower}.Apply(&job)
		require.Equal(t, 80, job.Progress)

		higher := 99
		model.Patch{Progress: &higher}.Apply(&job)
		require.Equal(t, 99, job.Progress)
	})

	t.Run("end time copied", func(t *testing.T) {
		job := model.Job{}
		end := time.Now().UTC()
		model.Patch{EndTime: &end}.Apply(&job)
		require.NotNil(t, job.EndTime)
		require.Equal(t, end, *job.EndTime)
	})
}

func TestJobClone(t *testing.T) {
	t.Parallel()
	end := time.Now().UTC()
	job := model.Job{
		ID:              "a",
		DownloadedFiles: []string{"one.mp4", "two.mp4"},
		EndTime:         &end,
	}
	clone := job.Clone()
	clone.DownloadedFiles[0] = "mutated"
	*clone.EndTime = end.Add(time.Hour)

	require.Equal(t, "one.mp4", job.DownloadedFiles[0])
	require.Equal(t, end, *job.EndTime)
}

func TestValidateURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		scenario string
		given    string
		valid    bool
	}{
		{"https", "https://example.com/gallery", true},
		{"http with port", "http://example.com:8080/x", true},
		{"scheme only", "https://", false},
		{"no scheme", "example.com/gallery", false},
		{"relative path", "/gallery/123", false},
		{"empty", "", false},
		{"garbage", "::::", false},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			err := model.ValidateURL(tc.given)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, model.ErrInvalidURL)
			}
		})
	}
}
