package orders

const (
	TopicAuditRecords  = "orders.audit.records"
	TopicNotifications = "orders.notifications.email"
)

// Partition key = order_id so every message for one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
