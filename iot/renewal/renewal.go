/*Package renewal keeps a device's SAS token fresh

The Renewer checks periodically whether the token is about to expire and generates
a new one ahead of time. Failed renewals are retried after RetryInterval; the token
generator itself never retries.
*/
package renewal

import (
	"context"
	"time"

	"github.com/relabs-tech/sastoken/core/clock"
	"github.com/relabs-tech/sastoken/core/logger"
	"github.com/relabs-tech/sastoken/iot/sas"
	"github.com/relabs-tech/sastoken/iot/status"
)

// Generator is the token generator a Renewer drives. *sas.Generator satisfies it.
type Generator interface {
	Generate(validityMinutes uint) error
	Get() []byte
	IsExpiringSoon(leadSeconds uint) bool
	Expiration() time.Time
}

// Renewer renews a token before it expires
type Renewer struct {
	generator       Generator
	validityMinutes uint
	leadSeconds     uint
	checkInterval   time.Duration
	retryInterval   time.Duration
	clock           clock.Clock
	sink            status.Sink
	onRenewed       func(ctx context.Context, token string)

	nextAttempt time.Time
	failures    int
}

// Builder is a builder helper for the Renewer
type Builder struct {
	// Generator is mandatory
	Generator Generator
	// ValidityMinutes is the validity of every new token. The default is 60.
	ValidityMinutes uint
	// LeadSeconds is how long before expiry a token gets renewed. The default is
	// sas.DefaultLeadSeconds. It must be shorter than the validity.
	LeadSeconds uint
	// CheckInterval is the period of Run. The default is 10 seconds.
	CheckInterval time.Duration
	// RetryInterval is the hold-off after a failed renewal. The default is 30 seconds.
	RetryInterval time.Duration
	// Clock is optional, the default is the wall clock
	Clock clock.Clock
	// Sink is optional and receives status updates
	Sink status.Sink
	// OnRenewed is optional and called with every new token, e.g. to reconnect to the broker
	OnRenewed func(ctx context.Context, token string)
}

// New returns a new Renewer
func New(b *Builder) *Renewer {
	if b.Generator == nil {
		panic("Generator is missing")
	}
	r := &Renewer{
		generator:       b.Generator,
		validityMinutes: b.ValidityMinutes,
		leadSeconds:     b.LeadSeconds,
		checkInterval:   b.CheckInterval,
		retryInterval:   b.RetryInterval,
		clock:           b.Clock,
		sink:            b.Sink,
		onRenewed:       b.OnRenewed,
	}
	if r.validityMinutes == 0 {
		r.validityMinutes = 60
	}
	if r.leadSeconds == 0 {
		r.leadSeconds = sas.DefaultLeadSeconds
	}
	if r.leadSeconds/60 >= r.validityMinutes {
		panic("LeadSeconds must be shorter than the validity")
	}
	if r.checkInterval <= 0 {
		r.checkInterval = 10 * time.Second
	}
	if r.retryInterval <= 0 {
		r.retryInterval = 30 * time.Second
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	return r
}

// Tick renews the token if there is none or if it expires soon. It returns true if a
// new token was generated. Within RetryInterval after a failure it does nothing.
func (r *Renewer) Tick(ctx context.Context) (bool, error) {
	if len(r.generator.Get()) > 0 && !r.generator.IsExpiringSoon(r.leadSeconds) {
		return false, nil
	}
	now := r.clock.Now()
	if now.Before(r.nextAttempt) {
		return false, nil
	}

	rlog := logger.FromContext(ctx)
	if err := r.generator.Generate(r.validityMinutes); err != nil {
		r.failures++
		r.nextAttempt = now.Add(r.retryInterval)
		rlog.WithError(err).
			WithField("kind", sas.Kind(err).String()).
			WithField("failures", r.failures).
			Errorf("sas token renewal failed, retry in %s", r.retryInterval)
		if r.sink != nil {
			r.sink.LogError("token renewal failed: " + err.Error())
		}
		return false, err
	}

	r.failures = 0
	r.nextAttempt = time.Time{}
	expiration := r.generator.Expiration()
	rlog.WithField("expires", expiration.UTC().Format(time.RFC3339)).Info("sas token renewed")
	if r.sink != nil {
		r.sink.SetStatus("token valid until " + expiration.UTC().Format(time.RFC3339))
	}
	if r.onRenewed != nil {
		r.onRenewed(ctx, string(r.generator.Get()))
	}
	return true, nil
}

// Failures returns the number of renewals which failed in a row
func (r *Renewer) Failures() int {
	return r.failures
}

// Run is blocking and renews the token until ctx is done
func (r *Renewer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()
	if r.sink != nil {
		r.sink.Begin()
	}
	for {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
			logger.FromContext(ctx).Debug("sas token renewal stopped")
			return
		case <-ticker.C:
		}
	}
}
