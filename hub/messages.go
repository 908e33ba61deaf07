package hub

import "time"

// Room names follow a pattern:
//
//	job:<jobID>   — everyone watching a specific job
//	pro:<proID>   — a pro's private room
//	global        — every connected client
const RoomGlobal = "global"

// RoomJob returns the room name for a specific job.
func RoomJob(jobID string) string { return "job:" + jobID }

// RoomPro returns the private room name for a pro.
func RoomPro(proID string) string { return "pro:" + proID }

// Server-to-client message types.
const (
	TypeConnected              = "connected"
	TypeJobAccepted            = "job_accepted"
	TypeWorkerArrived          = "worker_arrived"
	TypeNoShowWarning          = "no_show_warning"
	TypeNoShowAdminReview      = "no_show_admin_review"
	TypeProNoShow              = "pro_no_show"
	TypeUrgentJobAvailable     = "urgent_job_available"
	TypeEmergencyStatus        = "emergency_status"
	TypeLocationUpdated        = "location_updated"
	TypeCustomerLocationUpdate = "customer_location_update"
	TypeDisasterMode           = "disaster_mode"
	TypeSLABreach              = "sla_breach"
)

// Envelope is the wire shape of every server-to-client message. Data
// carries the type-specific payload.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEnvelope wraps a payload in an envelope stamped with the current time.
func NewEnvelope(msgType string, data any) Envelope {
	return Envelope{Type: msgType, Timestamp: time.Now().UTC(), Data: data}
}

// ConnectedData acknowledges a successful connection.
type ConnectedData struct {
	ConnID string `json:"connId"`
	Room   string `json:"room,omitempty"`
}

// JobAcceptedData announces that a pro has claimed the job.
type JobAcceptedData struct {
	JobID      string `json:"jobId"`
	ProID      string `json:"proId"`
	ETAMinutes int    `json:"etaMinutes,omitempty"`
}

// NoShowWarningData is sent to the assigned pro at the +10 and +20
// minute marks.
type NoShowWarningData struct {
	JobID            string `json:"jobId"`
	MinutesRemaining int    `json:"minutesRemaining"`
	Message          string `json:"message"`
}

// NoShowAdminReviewData flags a communicated delay for manual review
// instead of automatic reassignment.
type NoShowAdminReviewData struct {
	JobID  string `json:"jobId"`
	ProID  string `json:"proId"`
	Reason string `json:"reason"`
}

// ProNoShowData tells the customer their pro never arrived and the job
// is being urgently reassigned.
type ProNoShowData struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// UrgentJobAvailableData advertises a reopened or emergency job to pros.
type UrgentJobAvailableData struct {
	JobID       string  `json:"jobId"`
	ServiceType string  `json:"serviceType"`
	Address     string  `json:"address,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty"`
	Urgent      bool    `json:"urgent"`
}

// EmergencyStatusData carries emergency dispatch progress to the customer.
type EmergencyStatusData struct {
	JobID        string `json:"jobId"`
	Status       string `json:"status"`
	ProID        string `json:"proId,omitempty"`
	ETAMinutes   int    `json:"etaMinutes,omitempty"`
	AutoAssigned bool   `json:"autoAssigned,omitempty"`
}

// LocationUpdatedData relays a pro's live position to the job room.
type LocationUpdatedData struct {
	JobID         string  `json:"jobId"`
	ProID         string  `json:"proId"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	DistanceMiles float64 `json:"distanceMiles,omitempty"`
}

// CustomerLocationUpdateData relays the customer's position (mobile jobs).
type CustomerLocationUpdateData struct {
	JobID string  `json:"jobId"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// WorkerArrivedData announces an on-site check-in to the job room.
type WorkerArrivedData struct {
	JobID     string    `json:"jobId"`
	ProID     string    `json:"proId"`
	ArrivedAt time.Time `json:"arrivedAt"`
}

// DisasterModeData announces region-wide disaster activation.
type DisasterModeData struct {
	Region     string  `json:"region"`
	StormName  string  `json:"stormName,omitempty"`
	Multiplier float64 `json:"multiplier"`
	Active     bool    `json:"active"`
}

// SLABreachData flags an emergency job past its response deadline.
type SLABreachData struct {
	JobID       string    `json:"jobId"`
	Deadline    time.Time `json:"deadline"`
	OverdueMins int       `json:"overdueMins"`
}
