package browser

import "context"

// CombineContext creates a context derived from primary that is cancelled when
// either primary or secondary is cancelled. Values flow from primary, which
// for chromedp operations carries the CDP target; secondary contributes only
// the caller's deadline and cancellation.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
