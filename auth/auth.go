package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
)

const (
	defaultRefreshMargin = 5 * time.Minute
	refreshTimeout       = 30 * time.Second
)

// ClientCred obtains and caches bearer tokens using the client credentials
// grant. Concurrent callers needing a new token share a single request.
type ClientCred struct {
	conf   clientcredentials.Config
	margin time.Duration
	client *http.Client
	log    logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	token     model.AccessToken
	group     singleflight.Group
	refreshes atomic.Int64
}

// Option customises a ClientCred.
type Option func(*ClientCred)

// WithHTTPClient sets the client used against the token endpoint.
func WithHTTPClient(c *http.Client) Option { return func(cc *ClientCred) { cc.client = c } }

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(cc *ClientCred) { cc.now = now } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(cc *ClientCred) { cc.log = l } }

func NewClientCred(conf Conf, opts ...Option) *ClientCred {
	margin := conf.RefreshMargin
	if margin <= 0 {
		margin = defaultRefreshMargin
	}
	c := &ClientCred{
		conf:   conf.toOauth2Config(),
		margin: margin,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    logger.NopLogger{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetToken returns the cached token while it is valid for longer than the
// refresh margin. Otherwise a new token is requested from the identity
// provider. The shared request is detached from the caller that started it,
// so a cancelled caller does not fail the others waiting on the same refresh.
func (c *ClientCred) GetToken(ctx context.Context) (model.AccessToken, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	ch := c.group.DoChan("token", func() (any, error) {
		// A refresh that finished just before this one started already
		// stored a usable token.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.refresh(rctx)
	})
	select {
	case <-ctx.Done():
		return model.AccessToken{}, &AuthError{Err: fmt.Errorf("failed to get token: %w", ctx.Err())}
	case res := <-ch:
		if res.Err != nil {
			return model.AccessToken{}, res.Err
		}
		if res.Shared {
			c.log.Debugf("joined in-flight token refresh")
		}
		return res.Val.(model.AccessToken), nil
	}
}

// Invalidate drops tok from the cache if it is still the current token, so
// the next GetToken performs a refresh. Tokens replaced in the meantime are
// left alone.
func (c *ClientCred) Invalidate(tok model.AccessToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Value == tok.Value {
		c.token = model.AccessToken{}
	}
}

// Refreshes returns the number of token requests sent so far.
func (c *ClientCred) Refreshes() int64 { return c.refreshes.Load() }

func (c *ClientCred) cached() (model.AccessToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token.Valid(c.now(), c.margin)
}

func (c *ClientCred) refresh(ctx context.Context) (model.AccessToken, error) {
	c.refreshes.Add(1)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	t, err := c.conf.Token(ctx)
	if err != nil {
		return model.AccessToken{}, classify(err)
	}
	tok := model.AccessToken{Value: t.AccessToken, Expiry: t.Expiry}
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	c.log.Infof("obtained access token valid until %s", tok.Expiry.Format(time.RFC3339))
	return tok, nil
}

func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Err: fmt.Errorf("%w: %v", ErrInvalidCredentials, err)}
		}
	}
	return &AuthError{Err: fmt.Errorf("failed to get token: %w", err)}
}
