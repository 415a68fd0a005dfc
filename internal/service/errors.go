package service

import "errors"

var (
	ErrWebhookUnauthorized   = errors.New("webhook secret mismatch")
	ErrWebhookPayloadInvalid = errors.New("webhook payload invalid")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderAlreadyShipped   = errors.New("order already shipped")
	ErrOrderNotShippable     = errors.New("order status does not allow shipment")
	ErrOrderNoShipment       = errors.New("order has no shipment")
	ErrOrderAddressInvalid   = errors.New("order address invalid")
	ErrOrderUpdateFailed     = errors.New("order update failed")
	ErrStatusFilterInvalid   = errors.New("order status filter invalid")
	ErrCarrierMismatch       = errors.New("order belongs to another carrier")
	ErrDispatchQueueFull     = errors.New("notification dispatch buffer full")
	ErrDispatcherStopped     = errors.New("notification dispatcher stopped")
)
