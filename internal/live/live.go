// Package live relays accepted tracking writes to stream subscribers.
// Delivery is best effort: slow subscribers drop messages.
package live

import "fmt"

const subscriberBuffer = 16

func channel(busID string) string {
	return fmt.Sprintf("tracking:bus:%s", busID)
}
