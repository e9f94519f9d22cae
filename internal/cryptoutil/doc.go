// Package cryptoutil holds the integrity checks applied to content bundles:
// constant-time digest comparison and verification of detached signatures
// against an AWS KMS asymmetric key.
package cryptoutil
