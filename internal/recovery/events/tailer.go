// Package events follows the auth server's live event feed across connection
// drops: it filters by minimum severity, rate-limits reconnect attempts and
// refuses to redial with a bearer token that has already expired.
package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/openclave/reclaim/pkg/recoverysdk"
	"github.com/openclave/reclaim/pkg/slogx"
)

// ErrTokenExpired reports a bearer token whose expiry has passed. Redialing
// with it would only produce 401s, so the tailer stops instead.
var ErrTokenExpired = errors.New("events: bearer token expired")

// reconnectInterval paces redial attempts after a dropped connection.
const reconnectInterval = 3 * time.Second

// Handler receives each event that passes the severity filter.
type Handler func(ev recoverysdk.Event)

// Tailer is a resilient consumer of the server event stream.
type Tailer struct {
	client   *recoverysdk.Client
	params   recoverysdk.StreamParams
	minLevel recoverysdk.EventLevel
	limiter  *rate.Limiter
}

// NewTailer builds a tailer. minLevel filters client-side on top of whatever
// the server already dropped; params.Latest only applies to the first
// connection, reconnects resume live-only.
func NewTailer(client *recoverysdk.Client, params recoverysdk.StreamParams, minLevel recoverysdk.EventLevel) *Tailer {
	return &Tailer{
		client:   client,
		params:   params,
		minLevel: minLevel,
		limiter:  rate.NewLimiter(rate.Every(reconnectInterval), 1),
	}
}

// Run consumes the stream until ctx is cancelled or the subscription becomes
// unrecoverable (expired or rejected credentials). Transient connection
// failures redial at most once per reconnectInterval.
func (t *Tailer) Run(ctx context.Context, handle Handler) error {
	log := slogx.FromContext(ctx)
	params := t.params

	for {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := checkTokenExpiry(params.BearerToken); err != nil {
			return err
		}

		stream, err := t.client.StreamEvents(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var apiErr *recoverysdk.APIError
			if errors.As(err, &apiErr) &&
				(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
				return err
			}
			log.Warn("event stream connect failed, will retry", "error", err)
			continue
		}

		err = t.consume(stream, handle)
		_ = stream.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info("event stream dropped, reconnecting", "reason", err)

		// Replayed history was delivered on the first connection; from here
		// on only live events matter.
		params.Latest = 0
	}
}

func (t *Tailer) consume(stream *recoverysdk.EventStream, handle Handler) error {
	for {
		ev, err := stream.Next()
		if err != nil {
			return err
		}
		if !ev.Level.AtLeast(t.minLevel) {
			continue
		}
		handle(ev)
	}
}

// checkTokenExpiry peeks at the token's exp claim without verifying the
// signature; verification is the server's job. Opaque non-JWT tokens pass
// through untouched.
func checkTokenExpiry(token string) error {
	if token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return ErrTokenExpired
	}
	return nil
}
