package bare

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Headers set by the client to describe the remote request.
const (
	headerURL            = "X-Bare-URL"
	headerHeaders        = "X-Bare-Headers"
	headerForwardHeaders = "X-Bare-Forward-Headers"
	headerPassHeaders    = "X-Bare-Pass-Headers"
	headerPassStatus     = "X-Bare-Pass-Status"
)

// Headers set on the response to describe the remote response.
const (
	headerStatus     = "X-Bare-Status"
	headerStatusText = "X-Bare-Status-Text"
)

var (
	defaultForwardHeaders = []string{"accept-encoding", "accept-language"}
	defaultPassHeaders    = []string{"content-encoding", "content-length", "last-modified"}

	forbiddenForwardHeaders = []string{"connection", "transfer-encoding", "host", "origin", "referer"}
	forbiddenPassHeaders    = []string{
		"vary",
		"connection",
		"transfer-encoding",
		"access-control-allow-headers",
		"access-control-allow-methods",
		"access-control-expose-headers",
		"access-control-max-age",
		"access-control-request-headers",
		"access-control-request-method",
	}
)

// remoteRequest is the request description decoded from X-Bare-* headers.
type remoteRequest struct {
	url            *url.URL
	headers        http.Header
	forwardHeaders []string
	passHeaders    []string
	passStatus     []int
}

// parseRemoteRequest decodes the X-Bare-* headers of r.
func parseRemoteRequest(r *http.Request) (*remoteRequest, *Error) {
	rawURL := r.Header.Get(headerURL)
	if rawURL == "" {
		return nil, missingHeader(strings.ToLower(headerURL))
	}
	remote, err := parseRemoteURL(rawURL, "http", "https")
	if err != nil {
		return nil, invalidHeader(strings.ToLower(headerURL), "Invalid URL: "+err.Error())
	}

	rawHeaders := r.Header.Get(headerHeaders)
	if rawHeaders == "" {
		return nil, missingHeader(strings.ToLower(headerHeaders))
	}
	headers, err := decodeHeaders(rawHeaders)
	if err != nil {
		return nil, invalidHeader(strings.ToLower(headerHeaders), "Header contained invalid JSON. ("+err.Error()+")")
	}

	req := &remoteRequest{
		url:            remote,
		headers:        headers,
		forwardHeaders: defaultForwardHeaders,
		passHeaders:    defaultPassHeaders,
	}

	if v := r.Header.Get(headerForwardHeaders); v != "" {
		names, e := decodeNames(headerForwardHeaders, v, forbiddenForwardHeaders)
		if e != nil {
			return nil, e
		}
		req.forwardHeaders = append(append([]string{}, defaultForwardHeaders...), names...)
	}
	if v := r.Header.Get(headerPassHeaders); v != "" {
		names, e := decodeNames(headerPassHeaders, v, forbiddenPassHeaders)
		if e != nil {
			return nil, e
		}
		req.passHeaders = append(append([]string{}, defaultPassHeaders...), names...)
	}
	if v := r.Header.Get(headerPassStatus); v != "" {
		if err := json.Unmarshal([]byte(v), &req.passStatus); err != nil {
			return nil, invalidHeader(strings.ToLower(headerPassStatus), "Header contained invalid JSON. ("+err.Error()+")")
		}
	}
	return req, nil
}

// parseRemoteURL accepts absolute URLs with one of the given schemes.
func parseRemoteURL(raw string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.Errorf("no host in %q", raw)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme {
			return u, nil
		}
	}
	return nil, errors.Errorf("unsupported protocol %q", u.Scheme)
}

// decodeHeaders decodes a JSON object whose values are strings or arrays of
// strings.
func decodeHeaders(raw string) (http.Header, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &object); err != nil {
		return nil, err
	}
	headers := make(http.Header, len(object))
	for name, value := range object {
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			headers.Add(name, single)
			continue
		}
		var multiple []string
		if err := json.Unmarshal(value, &multiple); err != nil {
			return nil, errors.Errorf("header %q is neither a string nor an array of strings", name)
		}
		for _, v := range multiple {
			headers.Add(name, v)
		}
	}
	return headers, nil
}

// encodeHeaders is the inverse of decodeHeaders, with lower-cased names.
func encodeHeaders(h http.Header) string {
	object := make(map[string]interface{}, len(h))
	for name, values := range h {
		if len(values) == 1 {
			object[strings.ToLower(name)] = values[0]
		} else {
			object[strings.ToLower(name)] = values
		}
	}
	data, _ := json.Marshal(object)
	return string(data)
}

// decodeNames decodes a JSON array of header names, lower-cased, and rejects
// any name in forbidden.
func decodeNames(header, raw string, forbidden []string) ([]string, *Error) {
	id := strings.ToLower(header)
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, invalidHeader(id, "Header contained invalid JSON. ("+err.Error()+")")
	}
	for i, name := range names {
		name = strings.ToLower(name)
		if contains(forbidden, name) {
			return nil, forbiddenHeader(id, name)
		}
		names[i] = name
	}
	return names, nil
}

func (s *Server) serveRequest(w http.ResponseWriter, r *http.Request) {
	log := s.log(r)

	remote, bareErr := parseRemoteRequest(r)
	if bareErr != nil {
		log.WithField("code", bareErr.Code).Debugf("rejected bare request: %v", bareErr)
		writeError(w, bareErr)
		return
	}
	log = log.WithField("remote", remote.url.String())

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, remote.url.String(), body)
	if err != nil {
		writeError(w, invalidHeader(strings.ToLower(headerURL), err.Error()))
		return
	}
	req.ContentLength = r.ContentLength
	if body == nil {
		req.ContentLength = 0
	}
	req.Header = remote.headers
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
		req.Header.Del("Host")
	}
	for _, name := range remote.forwardHeaders {
		if values := r.Header.Values(name); len(values) > 0 {
			req.Header[http.CanonicalHeaderKey(name)] = values
		}
	}

	res, err := s.client.Do(req)
	if err != nil {
		e := connectionError(err)
		log.WithField("code", e.Code).Warnf("remote request failed: %v", err)
		writeError(w, e)
		return
	}
	defer res.Body.Close()

	h := w.Header()
	for _, name := range remote.passHeaders {
		if values := res.Header.Values(name); len(values) > 0 {
			h[http.CanonicalHeaderKey(name)] = values
		}
	}
	h.Set(headerStatus, strconv.Itoa(res.StatusCode))
	h.Set(headerStatusText, strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode))))
	h.Set(headerHeaders, encodeHeaders(res.Header))

	status := http.StatusOK
	for _, pass := range remote.passStatus {
		if pass == res.StatusCode {
			status = res.StatusCode
			break
		}
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	n, err := streamBody(w, res.Body, flushInterval)
	log.WithField("upstream-status", res.StatusCode).Debugf("data transferred over request: %d bytes, error: %v", n, err)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
