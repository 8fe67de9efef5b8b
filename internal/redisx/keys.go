package redisx

import (
	"fmt"
	"time"
)

const (
	// order_status:{order_id} -> JSON status summary
	KeyOrderStatus = "order_status:%s"

	// notify:{order_id}:{kind} -> marker that the email was already queued
	KeyNotify = "notify:%s:%s"
)

var TTLStatusCache = 5 * time.Minute

func OrderStatusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func NotifyKey(orderID, kind string) string { return fmt.Sprintf(KeyNotify, orderID, kind) }
