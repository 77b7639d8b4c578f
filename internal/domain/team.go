package domain

import "time"

// Permission is the subset of team-role permissions the engine cares
// about. Members who can view historic conversations are supervisors
// and are never distribution targets.
type Permission struct {
	CanViewHistoricConversation bool `json:"canViewHistoricConversation"`
}

// RoleUser binds a user to a team with its permission set.
type RoleUser struct {
	UserID     string     `json:"userId"`
	Permission Permission `json:"permission"`
}

// AttendanceWindow is a single working-time interval expressed as
// milliseconds of day. Start is inclusive, End exclusive.
type AttendanceWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether the given millisecond-of-day falls inside
// the window.
func (w AttendanceWindow) Contains(msOfDay int64) bool {
	return msOfDay >= w.Start && msOfDay < w.End
}

// Team is the roster and schedule view returned by the team service.
// AttendancePeriods maps lowercase weekday abbreviations (mon..sun) to
// windows in the team's reference offset.
type Team struct {
	ID                string                        `json:"id"`
	Name              string                        `json:"name"`
	RoleUsers         []RoleUser                    `json:"roleUsers"`
	AttendancePeriods map[string][]AttendanceWindow `json:"attendancePeriods"`
	UTCOffsetMinutes  int                           `json:"utcOffsetMinutes"`
}

// weekdayKeys maps time.Weekday to the attendance period key.
var weekdayKeys = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

// WindowsFor returns the attendance windows configured for a weekday.
func (t *Team) WindowsFor(day time.Weekday) []AttendanceWindow {
	if t.AttendancePeriods == nil {
		return nil
	}
	return t.AttendancePeriods[weekdayKeys[day]]
}

// User is the directory view returned by the user service.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Conversation is the snapshot returned by the conversation service.
type Conversation struct {
	ID       string               `json:"id"`
	State    ConversationState    `json:"state"`
	Order    int                  `json:"order"`
	Priority int                  `json:"priority"`
	Members  []ConversationMember `json:"members"`
}

// Activity is a system-authored note posted into a conversation.
type Activity struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
