// Package util provides small helpers shared across the module.
//
// Key utilities:
//   - SafeTruncate: truncates strings before logging sensitive data
//   - NormalizeURL: compares issuer URLs regardless of trailing slashes
//   - ClassifyIP: classifies addresses so outbound requests avoid internal networks
package util
