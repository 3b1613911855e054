// Package transport executes requests against a cluster of interchangeable
// JSON HTTP nodes, with dead-node tracking, randomized load balancing, and
// retry-with-failover.
//
// Node pool
//   - Selection is uniform over nodes not currently marked dead.
//   - A dead node re-enters normal selection once RevivalDelay has passed;
//     staleness is re-evaluated on every selection, no background sweeper.
//   - When every node is dead, selection falls back to the whole set so a
//     recovered node can be discovered organically.
//
// Retries
//   - Controlled via Config.MaxRetries; a request makes at most
//     MaxRetries+1 physical attempts.
//   - Only transport-level failures retry: connect errors and per-attempt
//     timeouts. The failed node is marked dead and the next attempt picks a
//     (likely different) node immediately; there is no backoff.
//   - Non-2xx responses and undecodable bodies are terminal. A node that
//     answers is alive, and a malformed request stays malformed on every
//     node.
//
// Notes
//   - One Transport is meant to be shared by many concurrent callers.
//   - Request bodies are rebuilt on each attempt.
//   - Context cancellation is terminal and distinct from a timeout.
package transport
