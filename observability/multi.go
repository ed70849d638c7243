package observability

import "context"

// MultiObserver fans chat events out to several sinks, such as the log and
// a presenter's diagnostics pane.
type MultiObserver []Observer

// NewMultiObserver combines observers. Nil entries are skipped and nested
// MultiObservers are flattened. A single remaining observer is returned
// unwrapped; none yields NoOpObserver.
func NewMultiObserver(observers ...Observer) Observer {
	var multi MultiObserver
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil:
		case MultiObserver:
			multi = append(multi, o...)
		default:
			multi = append(multi, o)
		}
	}

	switch len(multi) {
	case 0:
		return NoOpObserver{}
	case 1:
		return multi[0]
	}
	return multi
}

func (m MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m {
		obs.OnEvent(ctx, event)
	}
}
