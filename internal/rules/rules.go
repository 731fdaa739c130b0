// Package rules implements deterministic per-transaction fraud checks.
//
// Two rules are evaluated: an IP blacklist lookup and an impossible-travel
// velocity check against the user's last known location. Rules are
// stateless per call; the caller supplies the prior profile and owns any
// state updates. An empty violation list is the success case.
package rules

import (
	"fmt"
	"time"

	"github.com/mbd888/fraudgate/internal/geo"
	"github.com/mbd888/fraudgate/internal/profile"
)

// Default thresholds for the velocity rule.
const (
	// DefaultMaxVelocityKmh is roughly commercial flight speed.
	DefaultMaxVelocityKmh = 800.0

	// DefaultMinElapsedHours is the smallest time gap the velocity rule
	// will divide by. Gaps at or below this are insufficient signal and
	// the rule is skipped rather than risking a near-zero denominator.
	DefaultMinElapsedHours = 0.1
)

// Context carries the transaction fields the rule checks read.
type Context struct {
	IPAddress string
	Lat       float64
	Lon       float64
	Timestamp time.Time
}

// Evaluator runs the blacklist and velocity rules.
type Evaluator struct {
	blacklist       map[string]struct{}
	maxVelocityKmh  float64
	minElapsedHours float64
}

// NewEvaluator creates a rule evaluator with the given blacklisted IPs.
func NewEvaluator(blacklistIPs []string) *Evaluator {
	bl := make(map[string]struct{}, len(blacklistIPs))
	for _, ip := range blacklistIPs {
		bl[ip] = struct{}{}
	}
	return &Evaluator{
		blacklist:       bl,
		maxVelocityKmh:  DefaultMaxVelocityKmh,
		minElapsedHours: DefaultMinElapsedHours,
	}
}

// WithMaxVelocity overrides the default velocity threshold in km/h.
func (e *Evaluator) WithMaxVelocity(kmh float64) *Evaluator {
	e.maxVelocityKmh = kmh
	return e
}

// WithMinElapsed overrides the minimum elapsed hours for the velocity rule.
// Tighten toward zero if sub-minute transaction gaps must be scored.
func (e *Evaluator) WithMinElapsed(hours float64) *Evaluator {
	e.minElapsedHours = hours
	return e
}

// Blacklisted reports whether an IP is on the blacklist.
func (e *Evaluator) Blacklisted(ip string) bool {
	_, ok := e.blacklist[ip]
	return ok
}

// Evaluate returns the list of rule violations for a transaction, given the
// user's prior profile (nil for new users). Empty means no rule fired.
// No state is mutated and the call never blocks.
func (e *Evaluator) Evaluate(tx Context, prior *profile.Profile) []string {
	var violations []string

	if e.Blacklisted(tx.IPAddress) {
		violations = append(violations, "Blacklisted IP detected")
	}

	if prior != nil {
		distance := geo.DistanceKm(prior.Lat, prior.Lon, tx.Lat, tx.Lon)
		elapsed := tx.Timestamp.Sub(prior.Timestamp).Hours()

		if elapsed > e.minElapsedHours && distance/elapsed > e.maxVelocityKmh {
			violations = append(violations,
				fmt.Sprintf("Impossible Travel (%dkm in %.1fh)", int(distance), elapsed))
		}
	}

	return violations
}
