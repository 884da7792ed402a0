package jenkins

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sirupsen/logrus"
	"github.com/pkg/errors"
	"github.com/skroutz/imageset-e2e/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stageJob = "openshift-saas-deploy-saas-clusterimagesets-hive-stage-01"

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(h)
	logger := logrus.New()
	logger.Out = ioutil.Discard
	c, err := NewClient(srv.URL+"/", logrus.NewEntry(logger))
	require.NoError(t, err)
	return c, srv
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("ci.example.com", nil)
	assert.Error(t, err)

	_, err = NewClient("://", nil)
	assert.Error(t, err)

	c, err := NewClient("https://ci.example.com/", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://ci.example.com", c.BaseURL)
	assert.NotNil(t, c.Log)
}

func TestJobURL(t *testing.T) {
	c, err := NewClient("https://ci.example.com", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://ci.example.com/job/"+stageJob, c.JobURL(stageJob))
	assert.Equal(t, "https://ci.example.com/job/folder/job/my%20job", c.JobURL("folder/my job"))
}

func TestVerifyRegistry(t *testing.T) {
	var probed []string
	mux := http.NewServeMux()
	mux.HandleFunc("/job/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		probed = append(probed, r.URL.Path)
		switch r.URL.Path {
		case "/job/a/", "/job/b/":
			w.WriteHeader(http.StatusOK)
		case "/job/moved/":
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c, srv := newTestClient(t, mux)
	defer srv.Close()

	err := c.VerifyRegistry(context.Background(), types.Registry{"b": "prod", "a": "stage", "moved": "int"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/job/a/", "/job/b/", "/job/moved/"}, probed)

	probed = nil
	err = c.VerifyRegistry(context.Background(), types.Registry{"a": "stage", "gone": "int", "z": "prod"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamUnavailable{Job: "gone", Status: http.StatusNotFound}, err)
	// fail fast
	assert.Equal(t, []string{"/job/a/", "/job/gone/"}, probed)
}

func TestVerifyJobUnreachable(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	srv.Close()

	err := c.VerifyJob(context.Background(), "a")
	require.Error(t, err)
	e, ok := errors.Cause(err).(types.ErrUpstreamUnavailable)
	require.True(t, ok)
	assert.Equal(t, "a", e.Job)
	assert.Error(t, e.Err)
}

func TestUpstream(t *testing.T) {
	cases := []struct {
		Name     string
		Body     string
		Expected *types.UpstreamRef
	}{
		{"upstream cause",
			`{"actions":[{"_class":"hudson.model.ParametersAction"},{"_class":"hudson.model.CauseAction","causes":[{"_class":"hudson.model.Cause$UpstreamCause","upstreamBuild":42,"upstreamProject":"` + stageJob + `"}]}]}`,
			&types.UpstreamRef{Job: stageJob, Build: 42}},
		{"first upstream cause wins",
			`{"actions":[{"causes":[{"shortDescription":"Started by timer"},{"upstreamBuild":7,"upstreamProject":"x"},{"upstreamBuild":8,"upstreamProject":"y"}]}]}`,
			&types.UpstreamRef{Job: "x", Build: 7}},
		{"manual run", `{"actions":[{"causes":[{"userId":"admin","userName":"admin"}]}]}`, nil},
		{"no causes", `{"actions":[{},{"_class":"hudson.model.ParametersAction"}]}`, nil},
		{"no actions", `{"_class":"hudson.model.FreeStyleBuild"}`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/job/e2e/17/api/json", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, causeTree, r.URL.Query().Get("tree"))
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.Body))
			})
			c, srv := newTestClient(t, mux)
			defer srv.Close()

			ref, err := c.Upstream(context.Background(), srv.URL+"/job/e2e/17/")
			require.NoError(t, err)
			assert.Equal(t, tc.Expected, ref)
		})
	}
}

func TestUpstreamErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/job/e2e/1/api/json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})
	c, srv := newTestClient(t, mux)
	defer srv.Close()

	_, err := c.Upstream(context.Background(), srv.URL+"/job/e2e/1/")
	assert.Error(t, err)

	_, err = c.Upstream(context.Background(), srv.URL+"/job/e2e/2/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestConsoleText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/job/"+stageJob+"/42/consoleText", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("noise\n['apply', 'x', 'ClusterImageSet', 'openshift-v4.14.3']\n"))
	})
	c, srv := newTestClient(t, mux)
	defer srv.Close()

	body, err := c.ConsoleText(context.Background(), stageJob, 42)
	require.NoError(t, err)
	defer body.Close()
	text, err := ioutil.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "ClusterImageSet")

	_, err = c.ConsoleText(context.Background(), stageJob, 43)
	assert.Error(t, err)
}

func TestBasicAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/job/a/", func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "bot" || p != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c, srv := newTestClient(t, mux)
	defer srv.Close()

	assert.Error(t, c.VerifyJob(context.Background(), "a"))

	c.User = "bot"
	c.APIToken = "secret"
	assert.NoError(t, c.VerifyJob(context.Background(), "a"))
}
