package models

import "time"

// JobState is the lifecycle state of a backfill job as reported upstream.
type JobState string

const (
	JobStatePending  JobState = "pending"
	JobStateRunning  JobState = "running"
	JobStateFailed   JobState = "failed"
	JobStateComplete JobState = "complete"
)

// JobHandle maps a user to an in-flight backfill job. At most one live
// handle exists per user; it is persisted so the flow survives the OAuth
// redirect and deleted once the job completes or is found invalid.
type JobHandle struct {
	UserID    string    `json:"user_id"`
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus is the transient status of a backfill job. It is fetched fresh
// on every poll and never persisted.
type JobStatus struct {
	RequestID      string   `json:"request_id"`
	State          JobState `json:"state"`
	IsComplete     bool     `json:"is_complete"`
	ProcessedCount *int     `json:"processed_count,omitempty"`
	TotalCount     *int     `json:"total_count,omitempty"`
	ResultCount    *int     `json:"result_count,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
}

// Failed reports whether the job itself has failed. An error message is
// treated the same as an explicit failed state.
func (s JobStatus) Failed() bool {
	return s.State == JobStateFailed || s.ErrorMessage != ""
}

// RawSale is the optional sale sub-object of a raw promotion. EndDate is an
// event/travel date, not an offer expiry, and must never be used as one.
type RawSale struct {
	Brand   string `json:"brand,omitempty"`
	Type    string `json:"type,omitempty"`
	EndDate string `json:"end_date,omitempty"`
}

// RawDiscount is one discount entry on a raw promotion.
type RawDiscount struct {
	Brand          string   `json:"brand,omitempty"`
	ReductionType  string   `json:"reduction_type,omitempty"`
	ReductionValue *float64 `json:"reduction_value,omitempty"`
	Code           string   `json:"code,omitempty"`
	ValidUntil     string   `json:"valid_until,omitempty"`
}

// RawPromotion is a promotion record as returned by the artifacts endpoint.
// Every field is optional; the shape varies between records.
type RawPromotion struct {
	ID        string        `json:"id,omitempty"`
	EmailID   string        `json:"email_id,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	Sale      *RawSale      `json:"sale,omitempty"`
	Discounts []RawDiscount `json:"discounts,omitempty"`
}

// Category classifies a deal for filtering.
type Category string

const (
	CategoryRetail   Category = "retail"
	CategoryFood     Category = "food"
	CategoryTravel   Category = "travel"
	CategoryServices Category = "services"
)

// Urgency is a display-priority hint, distinct from the expiring-soon
// computation the client derives from the expiry date.
type Urgency string

const (
	UrgencyLow  Urgency = "low"
	UrgencyHigh Urgency = "high"
)

// Deal is the normalized, client-facing representation of one promotion.
// A Deal is immutable once created.
type Deal struct {
	ID            string     `json:"id"`
	Merchant      string     `json:"merchant"`
	Category      Category   `json:"category"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Code          string     `json:"code,omitempty"`
	DisplayValue  string     `json:"display_value"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	DiscountLabel string     `json:"discount_label"`
	CTALink       string     `json:"cta_link,omitempty"`
	Urgency       Urgency    `json:"urgency"`
}

// Notification is a transient message surfaced to the client, e.g. after
// the refresh loop merges newly arrived deals.
type Notification struct {
	Message  string    `json:"message"`
	NewCount int       `json:"new_count"`
	At       time.Time `json:"at"`
}

// BackfillRequest is the body of the upstream start-scan request.
type BackfillRequest struct {
	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	BatchSize int    `json:"batch_size"`
}

// BackfillResponse is the upstream response to a start-scan request.
type BackfillResponse struct {
	RequestID string `json:"request_id"`
}

// PromotionsResponse is the enveloped form of the promotions listing.
type PromotionsResponse struct {
	Promotions []RawPromotion `json:"promotions"`
}

// AuthInitRequest is the body of the OAuth initiation request.
type AuthInitRequest struct {
	Provider string `json:"provider"`
	Redirect string `json:"redirect"`
	Email    string `json:"email"`
}

// AuthInitResponse carries the URL the client is redirected to.
type AuthInitResponse struct {
	AuthURL string `json:"authUrl"`
}

// ConnectRequest is the request body for starting the connect flow.
type ConnectRequest struct {
	Email string `json:"email"`
}

// ConnectResponse returns the OAuth URL for the client to follow.
type ConnectResponse struct {
	AuthURL string `json:"auth_url"`
}

// CreateSessionRequest is the request body for resuming the flow after the
// OAuth redirect. GrantID is the identifier passed back by the provider.
type CreateSessionRequest struct {
	GrantID string `json:"grant_id"`
	Email   string `json:"email"`
}

// SessionResponse describes the current state of a connect session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Progress  string `json:"progress,omitempty"`
	Error     string `json:"error,omitempty"`
	DealCount int    `json:"deal_count"`
}

// DealsResponse is the listing payload for a session's deals.
type DealsResponse struct {
	Deals []Deal `json:"deals"`
	Total int    `json:"total"`
}

// NotificationsResponse drains a session's pending notifications.
type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}

// VisibilityRequest signals that the client view was hidden or shown.
type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
