package job

import (
	"context"
	"time"

	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/obs"
)

// Reconciler rebuilds derived contest counters from the payments ledger.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconcileParticipantsJob repairs participantsCount and paymentStatus left
// behind by a confirmation that recorded the payment but failed to update its contest.
type ReconcileParticipantsJob struct {
	payments Reconciler
	timeout  time.Duration
}

func NewReconcileParticipantsJob(payments Reconciler) *ReconcileParticipantsJob {
	return &ReconcileParticipantsJob{payments: payments, timeout: time.Minute}
}

// Here Run is an interface method of the Job interface
func (j *ReconcileParticipantsJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	ctx, span := obs.Start(ctx, "job.reconcile_participants")
	fixed, err := j.payments.Reconcile(ctx)
	obs.End(span, err)
	if err != nil {
		logger.Warning("reconcile participants job err:", err)
		return
	}
	if fixed > 0 {
		logger.Infof("reconcile participants job corrected %d contests", fixed)
	}
}
