// Package profile tracks each user's last known location and timestamp.
//
// The decision pipeline reads a profile before scoring and refreshes it
// after any non-blocking verdict, so the store is the velocity baseline
// for the impossible-travel rule. A missing profile is a valid state
// (new user), not an error.
package profile

import (
	"context"
	"time"
)

// Profile is a user's last observed location and transaction time.
type Profile struct {
	UserID    string    `json:"userId"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists user location baselines.
// Get returns (nil, nil) for unknown users.
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Put(ctx context.Context, p *Profile) error
}
