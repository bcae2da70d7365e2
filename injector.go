package authsession

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/authsession/session"
	"github.com/sirupsen/logrus"
)

// drainLimit bounds how much of a 401 body is read before the connection is
// given back.
const drainLimit = 64 << 10

// Transport is an http.RoundTripper that sends requests with the bearer token
// of one session. On a 401 it refreshes the session through the Coordinator
// and retries the request once.
//
// A second 401 after the retry is returned to the caller as is. When the
// session cannot be refreshed RoundTrip fails with ErrUnauthenticated and the
// session is left Anonymous.
type Transport struct {
	Base http.RoundTripper

	store  *session.Store
	engine *Engine
}

// Transport returns a Transport for store that sends through base, or
// http.DefaultTransport when base is nil.
func (e *Engine) Transport(store *session.Store, base http.RoundTripper) *Transport {
	return &Transport{Base: base, store: store, engine: e}
}

// HTTPClient returns an http.Client whose requests carry store's credential.
func (e *Engine) HTTPClient(store *session.Store) *http.Client {
	return &http.Client{Transport: e.Transport(store, nil)}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.store == nil || t.engine == nil {
		closeBody(req)
		return nil, ErrNilSession
	}
	e := t.engine
	ctx := req.Context()

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	snap := t.store.Get()
	token := snap.AccessToken()
	refreshed := false

	if t.dueForRefresh(snap) {
		e.metricInc(MetricProactiveRefresh)
		cred, err := e.coordinator.refresh(ctx, t.store, token)
		if err != nil {
			return nil, t.unauthenticated(err)
		}
		token = cred.AccessToken
		refreshed = true
	}

	resp, err := t.send(req, token, getBody)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || refreshed {
		return resp, err
	}
	discard(resp)

	log := e.logger.WithFields(logrus.Fields{"op": "request", "session_id": t.store.ID()})

	now := t.store.Get()
	switch {
	case now.Authenticated() && now.AccessToken() != token:
		// Another request already replaced the token this one was sent with.
		token = now.AccessToken()
	case !now.Authenticated() || !now.Credential.HasRefreshToken():
		return nil, t.unauthenticated(e.coordinator.guard(ctx, t.store))
	default:
		cred, err := e.coordinator.refresh(ctx, t.store, token)
		if err != nil {
			return nil, t.unauthenticated(err)
		}
		token = cred.AccessToken
	}

	e.metricInc(MetricRequestRetried)
	log.Debug("retrying request with refreshed credential")
	return t.send(req, token, getBody)
}

func (t *Transport) dueForRefresh(snap session.Session) bool {
	cfg := t.engine.config.Refresh
	if !cfg.Proactive || !snap.Authenticated() || !snap.Credential.HasRefreshToken() {
		return false
	}
	return snap.Credential.ExpiresWithin(time.Now(), cfg.Leeway)
}

// unauthenticated counts a request that ended without a usable credential.
// A caller's own cancellation passes through unchanged.
func (t *Transport) unauthenticated(err error) error {
	if err == nil {
		err = ErrUnauthenticated
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	t.engine.metricInc(MetricUnauthenticated)
	return err
}

func (t *Transport) send(req *http.Request, token string, getBody func() (io.ReadCloser, error)) (*http.Response, error) {
	out := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
		out.GetBody = getBody
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// replayableBody returns a function that yields a fresh copy of the request
// body for every send, buffering the body once when the request has no
// GetBody.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		closeBody(req)
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	closeBody(req)
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}
