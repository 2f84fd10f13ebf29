// ABOUTME: Documentation for the fedkey package
// ABOUTME: Remote actor key resolution with caching and fetch coalescing

// Package fedkey resolves the public keys that signed inbound federated
// requests. Keys are fetched from the key ID URL, cached with a TTL, and
// concurrent cold resolves of the same key share one fetch.
package fedkey
