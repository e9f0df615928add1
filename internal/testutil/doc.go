// Package testutil provides test fixtures shared across packages: a
// controllable clock, identity token builders, an RSA signer that serves
// its own JWKS, and EC key generation for client secret tests.
package testutil
