// Package server hosts the Fiber HTTP service in front of the distribution
// service: request-id middleware, panic recovery, error mapping, and the
// bootstrap that turns a loaded config into cache volumes, long-term storage
// and a restorer. Keep exports narrow and accept explicit dependencies.
package server
