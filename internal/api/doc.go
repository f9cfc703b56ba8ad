// Package api exposes read-only run status over HTTP. Handlers mount on the
// metrics router, so status is available whenever metrics.addr is set.
package api
