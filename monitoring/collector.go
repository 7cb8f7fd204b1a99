package monitoring

import (
	"github.com/mlnlabs/mln/events"
	"github.com/mlnlabs/mln/merkle"
)

// ObserveRouter feeds the node metrics from the event stream. The consumer
// runs until the router drops the subscription; callers keep the returned id
// to unsubscribe on shutdown.
func ObserveRouter(router *events.Router, state *merkle.Store) events.SubscriberID {
	InitMetrics()
	id, ch := router.Subscribe()
	go func() {
		for event := range ch {
			switch e := event.(type) {
			case *events.BlockCommitted:
				SetBlockHeight(e.Height())
				SetLastCommitTime(e.Timestamp())
				RecordCommandsInBlock(e.Commands())
				SetStateRecords(state.Size())
			case *events.CommandApplied:
				IncreaseAppliedCommandCount(e.Kind())
			case *events.CommandFailed:
				IncreaseFailedCommandCount(e.Code())
			}
		}
	}()
	return id
}
