package models

// SwapStatus lifecycle states of a swap request
const (
	SwapStatusPending          = "pending"
	SwapStatusNegotiating      = "negotiating"
	SwapStatusAccepted         = "accepted"
	SwapStatusDeliveryProposed = "delivery_proposed"
	SwapStatusQRGenerated      = "qr_generated"
	SwapStatusArrived          = "arrived"
	SwapStatusDroppedOff       = "dropped_off"
	SwapStatusQRScanned        = "qr_scanned"
	SwapStatusInspection       = "inspection"
	SwapStatusCodeSent         = "code_sent"
	SwapStatusCompleted        = "completed"
	SwapStatusRejected         = "rejected"
	SwapStatusCancelled        = "cancelled"
	SwapStatusDisputed         = "disputed"
)

// SwapEvent triggers for lifecycle transitions
const (
	SwapEventNegotiate       = "negotiate"
	SwapEventAccept          = "accept"
	SwapEventProposeDelivery = "propose_delivery"
	SwapEventGenerateQR      = "generate_qr"
	SwapEventArrive          = "arrive"
	SwapEventDropOff         = "drop_off"
	SwapEventScanQR          = "scan_qr"
	SwapEventInspect         = "inspect"
	SwapEventSendCode        = "send_code"
	SwapEventComplete        = "complete"
	SwapEventReject          = "reject"
	SwapEventCancel          = "cancel"
	SwapEventDispute         = "dispute"
	SwapEventResolveComplete = "resolve_complete"
	SwapEventResolveCancel   = "resolve_cancel"
)

// NegotiationStatus sub-states of the price negotiation
const (
	NegotiationStatusNone        = "none"
	NegotiationStatusProposed    = "proposed"
	NegotiationStatusCountered   = "countered"
	NegotiationStatusPriceAgreed = "price_agreed"
	NegotiationStatusRejected    = "rejected"
)

// NegotiationAction types of negotiation events
const (
	NegotiationActionPropose = "propose"
	NegotiationActionCounter = "counter"
	NegotiationActionAccept  = "accept"
	NegotiationActionReject  = "reject"
)

// DeliveryType how the physical exchange happens
const (
	DeliveryTypeFaceToFace = "face_to_face"
	DeliveryTypeDropOff    = "drop_off"
)

// EscrowEntryType ledger movement types
const (
	EscrowEntryLock          = "LOCK"
	EscrowEntryUnlock        = "UNLOCK"
	EscrowEntryDebit         = "DEBIT"
	EscrowEntryCredit        = "CREDIT"
	EscrowEntryRefund        = "REFUND"
	EscrowEntryTransferOut   = "TRANSFER_OUT"
	EscrowEntryTransferIn    = "TRANSFER_IN"
	EscrowEntryEscrowLock    = "ESCROW_LOCK"
	EscrowEntryEscrowRelease = "ESCROW_RELEASE"
	EscrowEntryBonus         = "BONUS"
	EscrowEntryReward        = "REWARD"
	EscrowEntryPayment       = "PAYMENT"
)

// RiskTier trust-score derived classification
const (
	RiskTierLow      = "low"
	RiskTierMedium   = "medium"
	RiskTierHigh     = "high"
	RiskTierCritical = "critical"
)

// MultiSwapStatus lifecycle of a barter chain
const (
	MultiSwapStatusProposed  = "proposed"
	MultiSwapStatusConfirmed = "confirmed"
	MultiSwapStatusCompleted = "completed"
	MultiSwapStatusCancelled = "cancelled"
)

// ProductCondition ordered condition grades
const (
	ProductConditionNew     = "new"
	ProductConditionLikeNew = "like_new"
	ProductConditionGood    = "good"
	ProductConditionFair    = "fair"
	ProductConditionPoor    = "poor"
)

// ProductStatus listing availability
const (
	ProductStatusActive   = "active"
	ProductStatusReserved = "reserved"
	ProductStatusSwapped  = "swapped"
)

// ValidSwapStatuses set of valid lifecycle states
var ValidSwapStatuses = map[string]struct{}{
	SwapStatusPending:          {},
	SwapStatusNegotiating:      {},
	SwapStatusAccepted:         {},
	SwapStatusDeliveryProposed: {},
	SwapStatusQRGenerated:      {},
	SwapStatusArrived:          {},
	SwapStatusDroppedOff:       {},
	SwapStatusQRScanned:        {},
	SwapStatusInspection:       {},
	SwapStatusCodeSent:         {},
	SwapStatusCompleted:        {},
	SwapStatusRejected:         {},
	SwapStatusCancelled:        {},
	SwapStatusDisputed:         {},
}

// ValidDeliveryTypes set of valid delivery types
var ValidDeliveryTypes = map[string]struct{}{
	DeliveryTypeFaceToFace: {},
	DeliveryTypeDropOff:    {},
}

// TerminalSwapStatuses states a swap never leaves, except the time-boxed
// completed -> disputed re-entry handled by the state machine.
var TerminalSwapStatuses = map[string]struct{}{
	SwapStatusCompleted: {},
	SwapStatusRejected:  {},
	SwapStatusCancelled: {},
}
