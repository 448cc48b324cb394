package git

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/fixbot/internal/auth"
)

type fakeGitHub struct {
	mu        sync.Mutex
	auth      []string
	created   map[string]any
	reviewers []string
	comments  []string
	// existing, when set, makes create fail as a duplicate and the list
	// endpoint return this pull request number
	existing  int
	listQuery string
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/repos/{owner}/{repo}/pulls", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.created = body
		existing := f.existing
		f.mu.Unlock()
		if existing != 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"Validation Failed","errors":[{"message":"A pull request already exists for acme:fix/ABC-1-20261016."}]}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"number":   7,
			"html_url": "https://github.example/" + r.PathValue("owner") + "/" + r.PathValue("repo") + "/pull/7",
		})
	})
	mux.HandleFunc("GET /api/v3/repos/{owner}/{repo}/pulls", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		f.listQuery = r.URL.RawQuery
		existing := f.existing
		f.mu.Unlock()
		if existing == 0 {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{
			"number":   existing,
			"html_url": "https://github.example/" + r.PathValue("owner") + "/" + r.PathValue("repo") + "/pull/" + strconv.Itoa(existing),
		}})
	})
	mux.HandleFunc("POST /api/v3/repos/{owner}/{repo}/pulls/{number}/requested_reviewers", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body struct {
			Reviewers []string `json:"reviewers"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.reviewers = append(f.reviewers, body.Reviewers...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":7}`))
	})
	mux.HandleFunc("POST /api/v3/repos/{owner}/{repo}/issues/{number}/comments", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.comments = append(f.comments, body.Body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	})
	return mux
}

func (f *fakeGitHub) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
}

func TestGitHubHost(t *testing.T) {
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	host, err := NewGitHubHost(GitHubConfig{
		BaseURL:           srv.URL,
		Credentials:       auth.StaticProvider{auth.ProviderGitHub: "tok"},
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := host.CreatePullRequest(ctx, "acme", "widgets", NewPullRequest{
		Head: "fix/ABC-1-20261016", Base: "main", Title: "[ABC-1] Fix", Body: "body",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, ref.Number)
	assert.Equal(t, "https://github.example/acme/widgets/pull/7", ref.URL)
	assert.Equal(t, "fix/ABC-1-20261016", fake.created["head"])
	assert.Equal(t, "main", fake.created["base"])

	require.NoError(t, host.RequestReviewer(ctx, "acme", "widgets", 7, "alice"))
	require.NoError(t, host.CreateComment(ctx, "acme", "widgets", 7, "[fixbot] Applied suggested fix. See: body"))

	assert.Equal(t, []string{"alice"}, fake.reviewers)
	assert.Equal(t, []string{"[fixbot] Applied suggested fix. See: body"}, fake.comments)
	for _, a := range fake.auth {
		assert.Equal(t, "Bearer tok", a)
	}
}

func TestGitHubHostMissingCredential(t *testing.T) {
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	host, err := NewGitHubHost(GitHubConfig{BaseURL: srv.URL, Credentials: auth.StaticProvider{}, RequestsPerSecond: 1000})
	require.NoError(t, err)

	_, err = host.CreatePullRequest(context.Background(), "acme", "widgets", NewPullRequest{Head: "b", Base: "main"})
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Empty(t, fake.auth)
}

func TestGitHubHostReusesOpenPullRequest(t *testing.T) {
	fake := &fakeGitHub{existing: 12}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	host, err := NewGitHubHost(GitHubConfig{
		BaseURL:           srv.URL,
		Credentials:       auth.StaticProvider{auth.ProviderGitHub: "tok"},
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	ref, err := host.CreatePullRequest(context.Background(), "acme", "widgets", NewPullRequest{
		Head: "fix/ABC-1-20261016", Base: "main", Title: "[ABC-1] Fix", Body: "body",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, ref.Number)
	assert.Equal(t, "https://github.example/acme/widgets/pull/12", ref.URL)

	q, err := url.ParseQuery(fake.listQuery)
	require.NoError(t, err)
	assert.Equal(t, "acme:fix/ABC-1-20261016", q.Get("head"))
	assert.Equal(t, "main", q.Get("base"))
	assert.Equal(t, "open", q.Get("state"))
}
