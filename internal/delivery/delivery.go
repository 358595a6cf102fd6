// Package delivery implements the scheduled engagement jobs: the admin broadcast
// flush, the survey reminder flush and the daily mood check-in.
//
// Each job takes a fresh snapshot of its eligible recipients, attempts every send
// independently and records its unit of work as done once the attempt is over.
package delivery

import (
	"context"

	"github.com/BTreeMap/pyoots/internal/models"
)

// Sender delivers one outbound message.
type Sender interface {
	Send(ctx context.Context, msg models.Outbound) error
}

// Report summarizes one pass over a recipient set.
type Report struct {
	Attempted int
	Failed    int
}

// Add accumulates another report.
func (r *Report) Add(o Report) {
	r.Attempted += o.Attempted
	r.Failed += o.Failed
}
