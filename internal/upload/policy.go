package upload

import "fmt"

// MaxImagesPerCapture caps how many images one capture may hold.
const MaxImagesPerCapture = 20

// CapacityError reports a batch that would push a capture past the limit.
// The whole batch is refused; there is no partial acceptance.
type CapacityError struct {
	Requested    int
	CurrentCount int
	MaxAllowed   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("cannot upload %d images: capture already has %d images, maximum is %d",
		e.Requested, e.CurrentCount, e.MaxAllowed)
}

// PlanOrders decides whether a batch of n new images fits and, if so, assigns
// each one an order value. maxOrder is the highest existing order for the
// capture, -1 when it has no images yet. New images always append after
// existing ones even when the existing order values have gaps.
//
// The count and max-order reads happen before the inserts, so two concurrent
// uploads to the same capture can both pass the check; that race is accepted
// for a single-user interactive tool.
func PlanOrders(currentCount, maxOrder, n int) ([]int, error) {
	if currentCount+n > MaxImagesPerCapture {
		return nil, &CapacityError{
			Requested:    n,
			CurrentCount: currentCount,
			MaxAllowed:   MaxImagesPerCapture,
		}
	}
	orders := make([]int, n)
	for i := range orders {
		orders[i] = maxOrder + 1 + i
	}
	return orders, nil
}
