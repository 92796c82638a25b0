// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package statusapi

import (
	"io"

	qt "github.com/valyala/quicktemplate"
)

// PageData feeds the server-rendered /status HTML page.
type PageData struct {
	OwnerID      string
	RunningJobs  int
	Sessions     []SessionRow
}

// SessionRow is one line of the status table. RetryHint is set when the
// session's last job ended failed or unknown_after_crash, advertising
// itself as retryable.
type SessionRow struct {
	ThreadID    string
	ProjectName string
	Tool        string
	QueueLen    int
	RunningJob  string
	LastJob     string
	RetryHint   bool
}

// StreamPage writes the status page to qw, escaping all dynamic values.
func StreamPage(qw *qt.Writer, data PageData) {
	qw.N().S(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>orc status</title></head><body>`)
	qw.N().S(`<h1>orc</h1><p>owner: `)
	qw.E().S(data.OwnerID)
	qw.N().S(`</p><p>running jobs: `)
	qw.N().D(data.RunningJobs)
	qw.N().S(`</p><table border="1" cellpadding="4"><tr><th>thread</th><th>project</th><th>tool</th><th>queue</th><th>running</th><th>last</th><th>retry_hint</th></tr>`)
	for _, row := range data.Sessions {
		qw.N().S(`<tr><td>`)
		qw.E().S(row.ThreadID)
		qw.N().S(`</td><td>`)
		qw.E().S(row.ProjectName)
		qw.N().S(`</td><td>`)
		qw.E().S(row.Tool)
		qw.N().S(`</td><td>`)
		qw.N().D(row.QueueLen)
		qw.N().S(`</td><td>`)
		qw.E().S(row.RunningJob)
		qw.N().S(`</td><td>`)
		qw.E().S(row.LastJob)
		qw.N().S(`</td><td>`)
		if row.RetryHint {
			qw.N().S(`yes`)
		} else {
			qw.N().S(`no`)
		}
		qw.N().S(`</td></tr>`)
	}
	qw.N().S(`</table></body></html>`)
}

// WritePage renders the page straight to an io.Writer (e.g. the http.ResponseWriter).
func WritePage(w io.Writer, data PageData) {
	qw := qt.AcquireWriter(w)
	StreamPage(qw, data)
	qt.ReleaseWriter(qw)
}

// RenderPage renders the page to a pooled byte buffer and returns its
// string contents, for callers that need the body size up front.
func RenderPage(data PageData) string {
	bb := qt.AcquireByteBuffer()
	WritePage(bb, data)
	s := string(bb.B)
	qt.ReleaseByteBuffer(bb)
	return s
}
