// Package relay re-serves a remote worker script from a local path.
package relay

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/taskcluster/httpbackoff/v3"

	"github.com/dogeunblocker/doge/v4/logging"
)

// Path is the local path of the relayed script.
const Path = "/worker.js"

// FailureBody is the body of every failed relay response.  Upstream details
// are only logged.
const FailureBody = "Error fetching worker script"

// Config contains the parameters of a Relay.
type Config struct {
	URL string

	// Bound on one relay, from connecting to reading the last byte
	Timeout time.Duration

	// Retry network failures and 5xx responses with exponential backoff
	Retry bool

	// Client used for outbound requests; one bounded by Timeout is built if
	// nil
	Client *http.Client

	Logger *logrus.Logger
}

// Relay fetches the remote script on every request; nothing is cached.
type Relay struct {
	url     string
	timeout time.Duration
	retry   bool
	client  *http.Client
	logger  *logrus.Logger
}

// New creates a Relay.
func New(c Config) *Relay {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	return &Relay{
		url:     c.URL,
		timeout: c.Timeout,
		retry:   c.Retry,
		client:  client,
		logger:  logging.OrNull(c.Logger),
	}
}

// RegisterService adds the GET and HEAD routes for the script.
func (rl *Relay) RegisterService(r *mux.Router) {
	r.Path(Path).Methods(http.MethodGet, http.MethodHead).Handler(rl)
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if rl.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}
	log := logging.FromContext(r.Context(), rl.logger).WithField("upstream", rl.url)

	body, err := rl.fetch(ctx)
	if err != nil {
		var bad httpbackoff.BadHttpResponseCode
		if errors.As(err, &bad) {
			log = log.WithField("upstream-status", bad.HttpResponseCode)
		}
		log.Errorf("fetching worker script: %v", err)
		http.Error(w, FailureBody, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/javascript")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		log.Debugf("writing worker script: %v", err)
	}
}

// fetch returns the body of a 200 response from the upstream URL.  Any other
// status yields a BadHttpResponseCode.
func (rl *Relay) fetch(ctx context.Context) ([]byte, error) {
	var (
		res *http.Response
		err error
	)
	if rl.retry {
		res, err = rl.doWithBackoff(ctx)
	} else {
		res, err = rl.do(ctx)
	}
	if res != nil {
		defer res.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, badStatus(res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading upstream body")
	}
	return body, nil
}

func (rl *Relay) do(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rl.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building upstream request")
	}
	res, err := rl.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upstream request")
	}
	return res, nil
}

// doWithBackoff retries until the upstream answers below 500, or the
// backoff gives up after the relay timeout.
func (rl *Relay) doWithBackoff(ctx context.Context) (*http.Response, error) {
	settings := backoff.NewExponentialBackOff()
	settings.MaxElapsedTime = rl.timeout
	client := &httpbackoff.Client{
		BackOffSettings: settings,
	}

	var previous *http.Response
	res, attempts, err := client.Retry(func() (*http.Response, error, error) {
		if previous != nil {
			previous.Body.Close()
			previous = nil
		}
		res, err := rl.do(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// cancelled or timed out; no point retrying
				return nil, nil, err
			}
			return nil, err, nil
		}
		previous = res
		return res, nil, nil
	})
	logging.FromContext(ctx, rl.logger).WithField("attempts", attempts).Debug("worker script fetched with backoff")
	return res, err
}

func badStatus(code int) error {
	return httpbackoff.BadHttpResponseCode{
		HttpResponseCode: code,
		Message:          "upstream responded " + strconv.Itoa(code) + " " + http.StatusText(code),
	}
}
