package model

import (
	"context"
	"time"
)

// Role is the platform role a signed-in user acts as.
type Role string

const (
	// RolePrincipal is a school principal.
	RolePrincipal Role = "principal"
	// RoleTeacher is a class teacher.
	RoleTeacher Role = "teacher"
	// RoleStudent is a student.
	RoleStudent Role = "student"
	// RoleParent is a parent or guardian.
	RoleParent Role = "parent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePrincipal, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

type identityCtxKey struct{}

// ContextWithIdentity stores the signed-in identity in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the signed-in identity from context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}

type sessionIDCtxKey struct{}

// ContextWithSessionID stores the portal session ID (cookie value) in context.
func ContextWithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDCtxKey{}, sid)
}

// SessionIDFromContext retrieves the portal session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDCtxKey{}).(string)
	return sid
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Notification is a message broadcast to a user or class.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title" validate:"required"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ComplaintReply is one message in a complaint conversation.
type ComplaintReply struct {
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Complaint is a student complaint and its replies.
type Complaint struct {
	ID          string           `json:"id" validate:"required"`
	Subject     string           `json:"subject"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	Replies     []ComplaintReply `json:"replies"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NewComplaint is the form payload for filing a complaint.
type NewComplaint struct {
	StudentID   string `json:"studentId" validate:"required"`
	Subject     string `json:"subject" validate:"required,min=3,max=120"`
	Description string `json:"description" validate:"required,min=10,max=2000"`
}

// AttendanceStatus is the recorded attendance mark for a day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLeave   AttendanceStatus = "leave"
)

// AttendanceRecord is one day of attendance.
type AttendanceRecord struct {
	Date   time.Time        `json:"date"`
	Status AttendanceStatus `json:"status"`
}

// FeeInstallment is one scheduled fee payment.
type FeeInstallment struct {
	Title   string    `json:"title"`
	Amount  float64   `json:"amount"`
	DueDate time.Time `json:"dueDate"`
	Paid    bool      `json:"paid"`
}

// FeeSummary is a student's fee position.
type FeeSummary struct {
	Total        float64          `json:"total"`
	Paid         float64          `json:"paid"`
	Due          float64          `json:"due"`
	Installments []FeeInstallment `json:"installments"`
}

// Admission is an admission application seen by the principal.
type Admission struct {
	ID          string    `json:"id"`
	StudentName string    `json:"studentName" validate:"required"`
	ClassName   string    `json:"className"`
	Status      string    `json:"status"`
	AppliedAt   time.Time `json:"appliedAt"`
}

// PortalConfig holds runtime portal parameters set via CLI flags.
type PortalConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/portal")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	Lang          string
}
