package aps

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/auth"
	"github.com/stanstork/designauto/internal/models"
	"github.com/stanstork/designauto/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) Token(context.Context) (auth.Token, error) {
	return auth.Token{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, staticTokens{}, zerolog.Nop()), srv
}

func TestCollectPagesFollowsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/da/us-east/v3/engines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("page") {
		case "":
			json.NewEncoder(w).Encode(models.Page{Data: []string{"b", "a"}, PaginationToken: "p2"})
		case "p2":
			json.NewEncoder(w).Encode(models.Page{Data: []string{"c"}})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})
	c, _ := newTestClient(t, mux)

	all, err := CollectPages(context.Background(), c.EnginesPage)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, all)
}

func TestAPIErrorClassification(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oss/v2/buckets", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"reason":"Bucket already exists"}`, http.StatusConflict)
	})
	mux.HandleFunc("/da/us-east/v3/workitems/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	c, _ := newTestClient(t, mux)

	err := c.CreateBucket(context.Background(), "bucket", PolicyTransient)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "Bucket already exists")

	_, err = c.WorkItemStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type countingExchanger struct{ calls int }

func (e *countingExchanger) Exchange(context.Context) (auth.Token, error) {
	e.calls++
	return auth.Token{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestUnauthorizedDropsCachedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	ex := &countingExchanger{}
	c := NewClient(srv.Client(), srv.URL, auth.NewCache(ex), zerolog.Nop())

	_, err := c.WorkItemStatus(context.Background(), "wi")
	require.Error(t, err)
	_, err = c.WorkItemStatus(context.Background(), "wi")
	require.Error(t, err)
	assert.Equal(t, 2, ex.calls)
}

func TestModifyAppBundleAlias(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/da/us-east/v3/appbundles/BoxAppBundle/aliases/dev", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var alias models.Alias
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alias))
		assert.Equal(t, 4, alias.Version)
		assert.Empty(t, alias.ID)
		w.Write([]byte(`{"id":"dev","version":4}`))
	})
	c, _ := newTestClient(t, mux)

	require.NoError(t, c.ModifyAppBundleAlias(context.Background(), "BoxAppBundle", "dev", 4))
}

func TestUploadObjectSignedFlow(t *testing.T) {
	var uploaded string
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/oss/v2/buckets/bkt/objects/in.dwg/signeds3upload", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "20", r.URL.Query().Get("minutesExpiration"))
			json.NewEncoder(w).Encode(signedUpload{UploadKey: "key-1", URLs: []string{srvURL + "/s3/put"}})
		case http.MethodPost:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "key-1", body["uploadKey"])
			json.NewEncoder(w).Encode(ObjectDetails{BucketKey: "bkt", ObjectKey: "in.dwg", ObjectID: ObjectURN("bkt", "in.dwg"), Size: 5})
		}
	})
	mux.HandleFunc("/s3/put", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		uploaded = string(b)
	})
	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	details, err := c.UploadObject(context.Background(), "bkt", "in.dwg", strings.NewReader("hello"), 5, 20*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "hello", uploaded)
	assert.Equal(t, "urn:adsk.objects:os.object:bkt/in.dwg", details.ObjectID)
}

func TestUploadsOutliveAPIRequestTimeout(t *testing.T) {
	var uploaded, bundle string
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/oss/v2/buckets/bkt/objects/big.dwg/signeds3upload", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(signedUpload{UploadKey: "key-1", URLs: []string{srvURL + "/s3/put"}})
		case http.MethodPost:
			json.NewEncoder(w).Encode(ObjectDetails{BucketKey: "bkt", ObjectKey: "big.dwg", ObjectID: ObjectURN("bkt", "big.dwg")})
		}
	})
	mux.HandleFunc("/s3/put", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		b, _ := io.ReadAll(r.Body)
		uploaded = string(b)
	})
	mux.HandleFunc("/s3/form", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		bundle = string(b)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	opts := transport.DefaultOptions()
	opts.RequestTimeout = 200 * time.Millisecond
	opts.BackoffDelay = time.Millisecond
	opts.MaxRetries = 1
	c := NewClient(transport.NewClient(opts, zerolog.Nop()), srv.URL, staticTokens{}, zerolog.Nop())

	_, err := c.UploadObject(context.Background(), "bkt", "big.dwg", strings.NewReader("large payload"), 13, 20*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "large payload", uploaded)

	params := models.UploadParameters{EndpointURL: srv.URL + "/s3/form", FormData: map[string]string{"key": "k"}}
	require.NoError(t, c.UploadAppBundle(context.Background(), params, "bundle.zip", strings.NewReader("zip-bytes")))
	assert.Equal(t, "zip-bytes", bundle)
}

func TestSignedDownloadURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oss/v2/buckets/bkt/objects/out.dwg/signeds3download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15", r.URL.Query().Get("minutesExpiration"))
		json.NewEncoder(w).Encode(signedDownload{Status: "complete", URL: "https://s3.example/out.dwg?sig"})
	})
	c, _ := newTestClient(t, mux)

	u, err := c.SignedDownloadURL(context.Background(), "bkt", "out.dwg", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/out.dwg?sig", u)

	_, err = c.SignedDownloadURL(context.Background(), "bkt", "gone.dwg", 15*time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadAppBundleWritesFileLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		mr := multipart.NewReader(r.Body, params["boundary"])

		var names []string
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			names = append(names, p.FormName())
			if p.FormName() == "file" {
				b, _ := io.ReadAll(p)
				assert.Equal(t, "zip-bytes", string(b))
			}
		}
		assert.Equal(t, []string{"content-type", "key", "policy", "file"}, names)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, staticTokens{}, zerolog.Nop())
	err := c.UploadAppBundle(context.Background(), models.UploadParameters{
		EndpointURL: srv.URL + "/upload",
		FormData: map[string]string{
			"policy":       "p",
			"key":          "apps/x/y.zip",
			"content-type": "application/octet-stream",
		},
	}, "Box.zip", strings.NewReader("zip-bytes"))
	require.NoError(t, err)
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/da/us-east/v3/workitems/{id}", endpointLabel("/da/us-east/v3/workitems/abc123"))
	assert.Equal(t, "/oss/v2/buckets/{id}/objects/{id}/signeds3download", endpointLabel("/oss/v2/buckets/b/objects/o.dwg/signeds3download?minutesExpiration=15"))
}
