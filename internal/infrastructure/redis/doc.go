// Package redis connects to Redis (standalone or cluster) for the
// Redis-backed account store.
package redis
