package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a session lifecycle transition.
type Kind string

const (
	KindLogin   Kind = "login"
	KindLogout  Kind = "logout"
	KindExpired Kind = "expired"
)

// Event is one row of portal_session_events.
type Event struct {
	ID         uuid.UUID
	BrowserID  string
	UserID     int64
	Role       string
	Kind       Kind
	RemoteAddr string
	UserAgent  string
	CreatedAt  time.Time
}

// TimelineFilters narrows the session activity listing.
type TimelineFilters struct {
	UserID   int64
	Kind     Kind
	Page     int
	PageSize int
}

// PagingInfo describes the page returned by Timeline.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result wraps a timeline page.
type Result struct {
	Rows   []Event
	Paging PagingInfo
}
