// ABOUTME: Documentation for the httpsig package
// ABOUTME: Verification of signed inbound federated requests

// Package httpsig verifies HTTP signatures on inbound federated requests,
// following the cavage draft as federated servers implement it: a Signature
// header naming a key ID, the covered headers in order, and a base64
// RSA-SHA256 signature over the reconstructed signing string.
//
// Verification reveals a single failure mode to callers. The signing string
// includes the (request-target) pseudo-header, and the host line honors
// X-Forwarded-Host so verification works behind a reverse proxy.
package httpsig
