package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/corvus-paas/controlplane/daemon"
)

// daemonLogOptionsFromQuery parses the runtime-log query parameters
// (follow, tail, since, timestamps) into a daemon.LogOptions, ignoring any
// that fail to parse rather than rejecting the request. Follow is on unless
// follow=false; tail defaults to 100 lines and is capped at 10000.
func daemonLogOptionsFromQuery(r *http.Request) daemon.LogOptions {
	q := r.URL.Query()
	opts := daemon.LogOptions{
		Follow:     q.Get("follow") != "false",
		Tail:       100,
		Timestamps: q.Get("timestamps") == "true",
	}
	if tail, err := strconv.Atoi(q.Get("tail")); err == nil && tail > 0 {
		opts.Tail = min(tail, 10000)
	}
	if since := q.Get("since"); since != "" {
		if parsed, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Since = &parsed
		}
	}
	return opts
}
