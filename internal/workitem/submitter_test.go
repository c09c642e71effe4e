package workitem

import (
	"bytes"
	"context"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	ensured   []string
	puts      map[string][]byte
	ensureErr error
	putErr    error
}

func (f *fakeStore) EnsureBucket(_ context.Context, bucket string) error {
	f.ensured = append(f.ensured, bucket)
	return f.ensureErr
}

func (f *fakeStore) PutObject(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return "urn:" + bucket + "/" + key, nil
}

func (f *fakeStore) SignedDownloadURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://signed/" + bucket + "/" + key, nil
}

func (f *fakeStore) Reference(_ context.Context, bucket, key, verb string) (models.Argument, error) {
	arg := models.Argument{
		URL:     "urn:" + bucket + "/" + key,
		Headers: map[string]string{"Authorization": "Bearer tok"},
	}
	if verb == models.VerbPut {
		arg.Verb = verb
	}
	return arg, nil
}

type fakeAPI struct {
	mu       sync.Mutex
	spec     models.WorkItemSpec
	statuses []string
	polls    int
	err      error
}

func (f *fakeAPI) CreateWorkItem(_ context.Context, spec models.WorkItemSpec) (models.WorkItemStatus, error) {
	if f.err != nil {
		return models.WorkItemStatus{}, f.err
	}
	f.spec = spec
	return models.WorkItemStatus{ID: "wi-1", Status: models.StatusPending}, nil
}

func (f *fakeAPI) WorkItemStatus(_ context.Context, id string) (models.WorkItemStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.WorkItemStatus{}, f.err
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	return models.WorkItemStatus{ID: id, Status: f.statuses[i]}, nil
}

func newTestSubmitter(api API, store *fakeStore) *Submitter {
	s := NewSubmitter(api, store, "acme-designautomation", "acme", zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC) }
	return s
}

func TestSubmit(t *testing.T) {
	api := &fakeAPI{}
	store := &fakeStore{}
	s := newTestSubmitter(api, store)

	sub, err := s.Submit(context.Background(), Request{
		ActivityName: "BoxActivity+dev",
		Width:        "12.5",
		Height:       "3",
		FileName:     `C:\drawings\box.dwg`,
		Size:         4,
		Body:         bytes.NewReader([]byte("data")),
	})
	require.NoError(t, err)
	assert.Equal(t, Submission{WorkItemID: "wi-1", FileName: "20240305070809_output_box.dwg"}, sub)
	assert.Equal(t, []string{"acme-designautomation"}, store.ensured)
	assert.Equal(t, []byte("data"), store.puts["20240305070809_input_box.dwg"])

	assert.Equal(t, "acme.BoxActivity+dev", api.spec.ActivityID)
	in := api.spec.Arguments["inputFile"]
	assert.Equal(t, "urn:acme-designautomation/20240305070809_input_box.dwg", in.URL)
	assert.Empty(t, in.Verb)
	assert.Equal(t, "Bearer tok", in.Headers["Authorization"])

	out := api.spec.Arguments["outputFile"]
	assert.Equal(t, "urn:acme-designautomation/20240305070809_output_box.dwg", out.URL)
	assert.Equal(t, models.VerbPut, out.Verb)
	assert.Equal(t, "Bearer tok", out.Headers["Authorization"])

	assert.Equal(t, "data:application/json, {'width':12.5,'height':3}", api.spec.Arguments["inputJson"].URL)
}

func TestSubmitPassesMalformedNumbersThrough(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSubmitter(api, &fakeStore{})

	_, err := s.Submit(context.Background(), Request{
		ActivityName: "BoxActivity+dev",
		Width:        "wide",
		Height:       "7",
		FileName:     "box.dwg",
		Body:         bytes.NewReader(nil),
	})
	require.NoError(t, err)
	assert.Equal(t, "data:application/json, {'width':null,'height':7}", api.spec.Arguments["inputJson"].URL)
}

func TestSubmitFailures(t *testing.T) {
	req := func() Request {
		return Request{ActivityName: "A+dev", FileName: "f.dwg", Body: bytes.NewReader([]byte("x"))}
	}

	t.Run("bucket", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestSubmitter(api, &fakeStore{ensureErr: errors.New("denied")})
		_, err := s.Submit(context.Background(), req())
		require.Error(t, err)
		assert.Empty(t, api.spec.ActivityID)
	})

	t.Run("upload", func(t *testing.T) {
		api := &fakeAPI{}
		s := newTestSubmitter(api, &fakeStore{putErr: errors.New("boom")})
		_, err := s.Submit(context.Background(), req())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload input file")
		assert.Empty(t, api.spec.ActivityID)
	})

	t.Run("create", func(t *testing.T) {
		s := newTestSubmitter(&fakeAPI{err: errors.New("rejected")}, &fakeStore{})
		_, err := s.Submit(context.Background(), req())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create a work item")
	})

	t.Run("missing activity", func(t *testing.T) {
		store := &fakeStore{}
		s := newTestSubmitter(&fakeAPI{}, store)
		r := req()
		r.ActivityName = ""
		_, err := s.Submit(context.Background(), r)
		require.Error(t, err)
		assert.Empty(t, store.ensured)
	})
}

func TestPoll(t *testing.T) {
	s := newTestSubmitter(&fakeAPI{statuses: []string{models.StatusInProgress, models.StatusSuccess}}, &fakeStore{})

	status, err := s.Poll(context.Background(), "wi-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, status.Status)

	status, err = s.Poll(context.Background(), "wi-1")
	require.NoError(t, err)
	assert.True(t, status.Succeeded())

	again, err := s.Poll(context.Background(), "wi-1")
	require.NoError(t, err)
	assert.Equal(t, status, again, "terminal status is stable")
}

func TestWait(t *testing.T) {
	api := &fakeAPI{statuses: []string{models.StatusPending, models.StatusInProgress, "failedInstructions"}}
	s := newTestSubmitter(api, &fakeStore{})

	status, err := s.Wait(context.Background(), "wi-1", time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.True(t, status.Failed())
	assert.Equal(t, 3, api.polls)
}

func TestWaitTimesOut(t *testing.T) {
	s := newTestSubmitter(&fakeAPI{statuses: []string{models.StatusInProgress}}, &fakeStore{})

	status, err := s.Wait(context.Background(), "wi-1", 5*time.Millisecond, 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, models.StatusInProgress, status.Status)
}

func TestWaitHonoursCancellation(t *testing.T) {
	s := newTestSubmitter(&fakeAPI{statuses: []string{models.StatusPending}}, &fakeStore{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Wait(ctx, "wi-1", time.Hour, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInlineJSON(t *testing.T) {
	got, err := InlineJSON(math.Inf(1), 0)
	require.NoError(t, err)
	assert.Equal(t, "data:application/json, {'width':null,'height':0}", got)
}
