package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/zlog"

	"github.com/fieldlab/odm-watcher/internal/api/handlers/jobs"
	"github.com/fieldlab/odm-watcher/internal/api/router"
	"github.com/fieldlab/odm-watcher/internal/model"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type fakeJobs struct {
	ids []string
}

func (f fakeJobs) Snapshot() []string { return f.ids }
func (f fakeJobs) Len() int           { return len(f.ids) }

type fakeProbe struct {
	info model.NodeInfo
	err  error
}

func (f fakeProbe) Info(ctx context.Context) (model.NodeInfo, error) { return f.info, f.err }

func setup(t *testing.T, j fakeJobs, p fakeProbe) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(router.Setup(jobs.NewHandler(j, p)))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestActiveJobs(t *testing.T) {
	srv := setup(t, fakeJobs{ids: []string{"job-1", "job-2"}}, fakeProbe{})

	var body struct {
		Result struct {
			Count int      `json:"count"`
			Jobs  []string `json:"jobs"`
		} `json:"result"`
	}
	code := getJSON(t, srv.URL+"/api/jobs", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Result.Count)
	assert.ElementsMatch(t, []string{"job-1", "job-2"}, body.Result.Jobs)
}

func TestNodeInfo(t *testing.T) {
	srv := setup(t, fakeJobs{}, fakeProbe{
		info: model.NodeInfo{Engine: "odm", MaxParallelTasks: 2},
	})

	var body struct {
		Result model.NodeInfo `json:"result"`
	}
	code := getJSON(t, srv.URL+"/api/node", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "odm", body.Result.Engine)
	assert.Equal(t, 2, body.Result.MaxParallelTasks)
}

func TestNodeInfoUnreachable(t *testing.T) {
	srv := setup(t, fakeJobs{}, fakeProbe{err: errors.New("connection refused")})

	var body struct {
		Message string `json:"message"`
	}
	code := getJSON(t, srv.URL+"/api/node", &body)

	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body.Message, "failed to query node")
}

func TestHealth(t *testing.T) {
	srv := setup(t, fakeJobs{}, fakeProbe{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
