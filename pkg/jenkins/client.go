// Package jenkins talks to the Jenkins JSON API in order to find out which
// upstream build triggered the current run and what that build logged.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sirupsen/logrus"
	"github.com/pkg/errors"
	"github.com/skroutz/imageset-e2e/pkg/types"
)

// causeTree limits the build description to the fields Upstream needs.
const causeTree = "actions[causes[upstreamProject,upstreamBuild]]"

// Client is a minimal Jenkins API client. The zero value is not usable; use
// NewClient.
type Client struct {
	Log *logrus.Entry

	// BaseURL is the root of the Jenkins server, eg. https://ci.example.com/
	BaseURL string

	// User and APIToken are optional credentials sent with every request.
	User     string
	APIToken string

	http *http.Client
}

// NewClient returns a Client for the Jenkins server at baseURL.
// If logger is nil, the standard logrus logger is used.
func NewClient(baseURL string, logger *logrus.Entry) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid Jenkins URL %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid Jenkins URL %q: scheme and host are required", baseURL)
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	c := new(Client)
	c.Log = logger
	c.BaseURL = strings.TrimSuffix(baseURL, "/")
	c.http = &http.Client{
		// a redirect is enough to tell that a job exists
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c, nil
}

// JobURL returns the URL of job. Slashes in job denote folders.
func (c *Client) JobURL(job string) string {
	parts := strings.Split(strings.Trim(job, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return c.BaseURL + "/job/" + strings.Join(parts, "/job/")
}

// VerifyJob checks that job exists on the server with a HEAD request. Any
// response other than 2xx or 3xx results in types.ErrUpstreamUnavailable.
func (c *Client) VerifyJob(ctx context.Context, job string) error {
	resp, err := c.do(ctx, http.MethodHead, c.JobURL(job)+"/")
	if err != nil {
		return types.ErrUpstreamUnavailable{Job: job, Err: err}
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return types.ErrUpstreamUnavailable{Job: job, Status: resp.StatusCode}
	}
	c.Log.WithFields(logrus.Fields{"job": job, "status": resp.StatusCode}).Debug("upstream job resolved")
	return nil
}

// VerifyRegistry calls VerifyJob for every job of r in lexical order and
// stops at the first one that cannot be resolved.
func (c *Client) VerifyRegistry(ctx context.Context, r types.Registry) error {
	for _, job := range r.Jobs() {
		err := c.VerifyJob(ctx, job)
		if err != nil {
			return err
		}
	}
	c.Log.Infof("verified %d upstream jobs", len(r))
	return nil
}

// buildDescription is the subset of the build JSON that carries the cause
// chain of a build.
type buildDescription struct {
	Actions []struct {
		Causes []struct {
			UpstreamProject string `json:"upstreamProject"`
			UpstreamBuild   int    `json:"upstreamBuild"`
		} `json:"causes"`
	} `json:"actions"`
}

// Upstream fetches the description of the build at buildURL and returns the
// build that triggered it.
//
// If the build was not triggered by another job (eg. it was started
// manually) or its description carries no cause, Upstream returns nil and
// no error.
func (c *Client) Upstream(ctx context.Context, buildURL string) (*types.UpstreamRef, error) {
	u := strings.TrimSuffix(buildURL, "/") + "/api/json?tree=" + url.QueryEscape(causeTree)
	resp, err := c.do(ctx, http.MethodGet, u)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch build description")
	}
	defer resp.Body.Close()

	err = checkStatus(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch build description of %s", buildURL)
	}

	var desc buildDescription
	err = json.NewDecoder(resp.Body).Decode(&desc)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode build description of %s", buildURL)
	}

	for _, a := range desc.Actions {
		for _, cause := range a.Causes {
			if cause.UpstreamProject == "" || cause.UpstreamBuild == 0 {
				continue
			}
			ref := &types.UpstreamRef{Job: cause.UpstreamProject, Build: cause.UpstreamBuild}
			c.Log.WithField("upstream", ref.String()).Debug("found upstream cause")
			return ref, nil
		}
	}
	return nil, nil
}

// ConsoleText returns the plain-text console log of build number build of
// job. The caller must close the returned reader.
func (c *Client) ConsoleText(ctx context.Context, job string, build int) (io.ReadCloser, error) {
	u := c.JobURL(job) + "/" + strconv.Itoa(build) + "/consoleText"
	resp, err := c.do(ctx, http.MethodGet, u)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch console log of %s#%d", job, build)
	}

	err = checkStatus(resp)
	if err != nil {
		resp.Body.Close()
		return nil, errors.Wrapf(err, "could not fetch console log of %s#%d", job, build)
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, u string) (*http.Response, error) {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if c.User != "" {
		req.SetBasicAuth(c.User, c.APIToken)
	}

	c.Log.WithFields(logrus.Fields{"method": method, "url": u}).Debug("request")
	return c.http.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
