package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twigapp/twig/internal/core/outline"
)

func records(n int) []outline.Record {
	out := make([]outline.Record, n)
	for i := range out {
		out[i] = outline.Record{ID: fmt.Sprintf("r%d", i), Text: fmt.Sprintf("item %d", i)}
	}
	return out
}

func TestHTTPService_SaveBatches(t *testing.T) {
	var batches [][]outline.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/records:save", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req wireSaveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches = append(batches, req.Records)

		saved := make([]outline.Record, len(req.Records))
		for i, rec := range req.Records {
			rec.Version = "v-" + rec.ID
			saved[i] = rec
		}
		require.NoError(t, json.NewEncoder(w).Encode(wireSaveResponse{Saved: saved}))
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL, BatchSize: 2}, zerolog.Nop())
	result, err := svc.Save(context.Background(), records(5))
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[2], 1)

	require.Len(t, result.Saved, 5)
	assert.Equal(t, "v-r0", result.Saved[0].Version)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.Failures)
}

func TestHTTPService_SaveDecodesConflictsAndFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := wireSaveResponse{
			Saved: []outline.Record{{ID: "ok", Version: "v1"}},
			Conflicts: []wireConflict{{
				Client: outline.Record{ID: "c", Text: "mine"},
				Server: outline.Record{ID: "c", Text: "theirs", Version: "v9"},
			}},
			Failures: []wireFailure{{
				Record: outline.Record{ID: "f"},
				Error:  "quota exceeded",
			}},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())
	result, err := svc.Save(context.Background(), records(3))
	require.NoError(t, err)

	require.Len(t, result.Saved, 1)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "mine", result.Conflicts[0].Client.Text)
	assert.Equal(t, "v9", result.Conflicts[0].Server.Version)
	assert.Nil(t, result.Conflicts[0].Ancestor)
	require.Len(t, result.Failures, 1)
	assert.EqualError(t, result.Failures[0].Err, "quota exceeded")
}

func TestHTTPService_SaveTransportFailureMidway(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req wireSaveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NoError(t, json.NewEncoder(w).Encode(wireSaveResponse{Saved: req.Records}))
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL, BatchSize: 2}, zerolog.Nop())
	result, err := svc.Save(context.Background(), records(4))

	require.Error(t, err)
	assert.True(t, IsTransport(err))
	// The first batch's outcome is still reported.
	assert.Len(t, result.Saved, 2)
}

func TestHTTPService_Delete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/records:delete", r.URL.Path)

		var req wireDeleteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := wireDeleteResponse{Failed: map[string]string{}}
		for _, id := range req.IDs {
			if id == "locked" {
				resp.Failed[id] = "record is locked"
				continue
			}
			resp.Deleted = append(resp.Deleted, id)
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())
	result, err := svc.Delete(context.Background(), []string{"a", "locked", "b"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, result.DeletedIDs)
	require.Contains(t, result.FailedIDs, "locked")
	assert.EqualError(t, result.FailedIDs["locked"], "record is locked")
}

func TestHTTPService_FetchChanges(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/changes", r.URL.Path)
		gotToken = r.URL.Query().Get("token")

		resp := wireFetchResponse{
			Changed: []outline.Record{{ID: "a", Text: "alpha", Version: "v2"}},
			Deleted: []string{"gone"},
			Token:   "t-next",
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())

	t.Run("incremental passes the token", func(t *testing.T) {
		result, err := svc.FetchChanges(context.Background(), "t-prev")
		require.NoError(t, err)

		assert.Equal(t, "t-prev", gotToken)
		require.Len(t, result.Changed, 1)
		assert.Equal(t, "alpha", result.Changed[0].Text)
		assert.Equal(t, []string{"gone"}, result.DeletedIDs)
		assert.Equal(t, ChangeToken("t-next"), result.Token)
	})

	t.Run("full fetch omits the token", func(t *testing.T) {
		_, err := svc.FetchChanges(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, gotToken)
	})

	t.Run("reserved characters in the token survive", func(t *testing.T) {
		opaque := "chunk=42&cursor=a+b c/d"
		_, err := svc.FetchChanges(context.Background(), ChangeToken(opaque))
		require.NoError(t, err)
		assert.Equal(t, opaque, gotToken)
	})
}

func TestHTTPService_EnsureAccountAccess(t *testing.T) {
	tests := []struct {
		status string
		want   AccountStatus
	}{
		{"available", AccountAvailable},
		{"restricted", AccountRestricted},
		{"no-account", AccountNone},
		{"something-new", AccountNotDetermined},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/account", r.URL.Path)
				require.NoError(t, json.NewEncoder(w).Encode(wireAccountResponse{Status: tt.status}))
			}))
			defer srv.Close()

			svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())
			got, err := svc.EnsureAccountAccess(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPService_SendsAuthHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewEncoder(w).Encode(wireAccountResponse{Status: "available"}))
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL, AuthToken: "secret"}, zerolog.Nop())
	_, err := svc.EnsureAccountAccess(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
}

func TestHTTPService_UnauthorizedIsAccountError(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer srv.Close()

			svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())
			_, err := svc.FetchChanges(context.Background(), "")

			require.Error(t, err)
			assert.True(t, IsAccount(err))
			assert.False(t, IsTransport(err))
		})
	}
}

func TestHTTPService_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())
	_, err := svc.FetchChanges(context.Background(), "")

	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Contains(t, err.Error(), "status 500")
}

func TestHTTPService_ConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())
	_, err := svc.EnsureAccountAccess(context.Background())

	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestHTTPService_MalformedResponseIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	svc := NewHTTPService(HTTPConfig{BaseURL: srv.URL}, zerolog.Nop())
	_, err := svc.FetchChanges(context.Background(), "")

	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestNewHTTPService_ClampsBatchSize(t *testing.T) {
	svc := NewHTTPService(HTTPConfig{BatchSize: MaxBatchSize * 10}, zerolog.Nop())
	assert.Equal(t, MaxBatchSize, svc.cfg.BatchSize)

	svc = NewHTTPService(HTTPConfig{BatchSize: -1}, zerolog.Nop())
	assert.Equal(t, MaxBatchSize, svc.cfg.BatchSize)
}
