// Package fingerprint computes the content identities used to deduplicate
// artifacts: a SHA-256 primary fingerprint and an MD5 secondary digest
// produced in one streaming pass, plus a 64-bit perceptual hash for decoded
// images.
package fingerprint
