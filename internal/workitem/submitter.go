package workitem

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/models"
	"github.com/stanstork/designauto/internal/storage"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultWaitTimeout  = 10 * time.Minute
)

// ErrTimedOut is returned by Wait when the work item is still running at the
// deadline.
var ErrTimedOut = errors.New("work item polling timed out")

// API is the part of the platform that runs work items.
type API interface {
	CreateWorkItem(ctx context.Context, spec models.WorkItemSpec) (models.WorkItemStatus, error)
	WorkItemStatus(ctx context.Context, id string) (models.WorkItemStatus, error)
}

// Request is one client submission. Width and Height are passed as received
// and parsed here.
type Request struct {
	ActivityName string
	Width        string
	Height       string
	FileName     string
	Size         int64
	ContentType  string
	Body         io.Reader
}

type Submission struct {
	WorkItemID string `json:"workItemId"`
	FileName   string `json:"fileName"`
}

type Submitter struct {
	api      API
	store    storage.Gateway
	bucket   string
	nickname string
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSubmitter(api API, store storage.Gateway, bucket, nickname string, logger zerolog.Logger) *Submitter {
	return &Submitter{
		api:      api,
		store:    store,
		bucket:   bucket,
		nickname: nickname,
		now:      time.Now,
		logger:   logger.With().Str("component", "workitem").Logger(),
	}
}

// Submit stages the input file and starts a work item for the activity. The
// returned file name is the output object key to download once the work item
// succeeds.
func (s *Submitter) Submit(ctx context.Context, req Request) (Submission, error) {
	if req.ActivityName == "" {
		return Submission{}, errors.New("activity name is required")
	}
	if req.Body == nil || req.FileName == "" {
		return Submission{}, errors.New("input file is required")
	}

	if err := s.store.EnsureBucket(ctx, s.bucket); err != nil {
		return Submission{}, err
	}

	now := s.now()
	inputKey := storage.ObjectKey(now, storage.PurposeInput, req.FileName)
	outputKey := storage.ObjectKey(now, storage.PurposeOutput, req.FileName)

	if _, err := s.store.PutObject(ctx, s.bucket, inputKey, req.Body, req.Size, req.ContentType); err != nil {
		return Submission{}, errors.Wrap(err, "failed to upload input file")
	}

	inputArg, err := s.store.Reference(ctx, s.bucket, inputKey, models.VerbGet)
	if err != nil {
		return Submission{}, errors.Wrap(err, "failed to reference input file")
	}
	outputArg, err := s.store.Reference(ctx, s.bucket, outputKey, models.VerbPut)
	if err != nil {
		return Submission{}, errors.Wrap(err, "failed to reference output file")
	}
	jsonArg, err := InlineJSON(parseNumber(req.Width), parseNumber(req.Height))
	if err != nil {
		return Submission{}, err
	}

	spec := models.WorkItemSpec{
		ActivityID: s.nickname + "." + req.ActivityName,
		Arguments: map[string]models.Argument{
			"inputFile":  inputArg,
			"inputJson":  {URL: jsonArg},
			"outputFile": outputArg,
		},
	}
	status, err := s.api.CreateWorkItem(ctx, spec)
	if err != nil {
		s.logger.Error().Err(err).Str("activity", spec.ActivityID).Msg("failed to create work item")
		return Submission{}, errors.Wrap(err, "failed to create a work item")
	}
	s.logger.Info().
		Str("work_item", status.ID).
		Str("activity", spec.ActivityID).
		Str("output", outputKey).
		Msg("work item submitted")

	return Submission{WorkItemID: status.ID, FileName: outputKey}, nil
}

// Poll reads the current status once.
func (s *Submitter) Poll(ctx context.Context, id string) (models.WorkItemStatus, error) {
	status, err := s.api.WorkItemStatus(ctx, id)
	if err != nil {
		return models.WorkItemStatus{}, errors.Wrap(err, "failed to get work item info")
	}
	return status, nil
}

// Wait polls every interval until the work item reaches a terminal status.
// When timeout passes first, the last observed status is returned with
// ErrTimedOut.
func (s *Submitter) Wait(ctx context.Context, id string, interval, timeout time.Duration) (models.WorkItemStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := s.Poll(ctx, id)
		if err != nil {
			return status, err
		}
		if status.Terminal() {
			s.logger.Info().Str("work_item", id).Str("status", status.Status).Msg("work item finished")
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-deadline.C:
			return status, errors.Wrapf(ErrTimedOut, "work item %s last seen %s", id, status.Status)
		case <-ticker.C:
		}
	}
}

func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

type dimensions struct {
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// InlineJSON encodes the parameters as the data url the engine reads into
// params.json. Double quotes become single quotes; non-finite numbers are
// written as null.
func InlineJSON(width, height float64) (string, error) {
	b, err := json.Marshal(dimensions{Width: finite(width), Height: finite(height)})
	if err != nil {
		return "", errors.Wrap(err, "encode parameters")
	}
	return "data:application/json, " + strings.ReplaceAll(string(b), `"`, "'"), nil
}
