// Package testutil provides shared fluent builders for constructing domain
// payloads in tests. It is internal: production code must not depend on it.
package testutil
