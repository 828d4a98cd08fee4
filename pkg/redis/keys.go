package redis

import "fmt"

// OutboxClaimKey marks an outbox row as being published by one relay instance.
func OutboxClaimKey(messageID uint) string {
	return fmt.Sprintf("kitchen_requests:outbox:claim:%d", messageID)
}

// CreateRateLimitKey is the sliding window of request creations by one customer.
func CreateRateLimitKey(customerID uint) string {
	return fmt.Sprintf("kitchen_requests:rate_limit:create:customer:%d", customerID)
}

// CreateRateLimitIPKey is used when the body names no customer.
func CreateRateLimitIPKey(ip string) string {
	return fmt.Sprintf("kitchen_requests:rate_limit:create:ip:%s", ip)
}
