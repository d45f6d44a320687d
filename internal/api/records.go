package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/pavelanni/schoolportal/internal/model"
	"github.com/pavelanni/schoolportal/internal/validator"
)

// ListNotifications returns the user's notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context, id *model.Identity) ([]model.Notification, error) {
	const op = "list notifications"
	var resp struct {
		Notifications *[]model.Notification `json:"notifications"`
	}
	if err := c.do(ctx, op, http.MethodGet, "/notifications", id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Notifications == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing notifications"}
	}
	out := keepValid(op, *resp.Notifications)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListComplaints returns the complaints filed by a student.
func (c *Client) ListComplaints(ctx context.Context, id *model.Identity, studentID string) ([]model.Complaint, error) {
	const op = "list complaints"
	var resp struct {
		Complaints *[]model.Complaint `json:"complaints"`
	}
	path := "/complaints/student/" + url.PathEscape(studentID)
	if err := c.do(ctx, op, http.MethodGet, path, id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Complaints == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing complaints"}
	}
	return keepValid(op, *resp.Complaints), nil
}

// CreateComplaint files a new complaint.
func (c *Client) CreateComplaint(ctx context.Context, id *model.Identity, nc model.NewComplaint) error {
	return c.do(ctx, "create complaint", http.MethodPost, "/complaints", id, nc, nil)
}

// ReplyComplaint adds a student reply to an existing complaint.
func (c *Client) ReplyComplaint(ctx context.Context, id *model.Identity, complaintID, studentID, message string) error {
	path := "/complaints/" + url.PathEscape(complaintID) + "/student-reply/" + url.PathEscape(studentID)
	return c.do(ctx, "reply complaint", http.MethodPost, path, id, map[string]string{"message": message}, nil)
}

// StudentAttendance returns the student's attendance, most recent day first.
func (c *Client) StudentAttendance(ctx context.Context, id *model.Identity, studentID string) ([]model.AttendanceRecord, error) {
	const op = "student attendance"
	var resp struct {
		Attendance *[]model.AttendanceRecord `json:"attendance"`
	}
	path := "/attendance/student/" + url.PathEscape(studentID)
	if err := c.do(ctx, op, http.MethodGet, path, id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Attendance == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing attendance"}
	}
	out := *resp.Attendance
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// StudentFees returns the student's fee summary.
func (c *Client) StudentFees(ctx context.Context, id *model.Identity, studentID string) (*model.FeeSummary, error) {
	const op = "student fees"
	var resp struct {
		Fees *model.FeeSummary `json:"fees"`
	}
	path := "/fees/student/" + url.PathEscape(studentID)
	if err := c.do(ctx, op, http.MethodGet, path, id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Fees == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing fees"}
	}
	return resp.Fees, nil
}

// ListAdmissions returns the school's admission applications.
func (c *Client) ListAdmissions(ctx context.Context, id *model.Identity, schoolID string) ([]model.Admission, error) {
	const op = "list admissions"
	var resp struct {
		Admissions *[]model.Admission `json:"admissions"`
	}
	path := "/schools/" + url.PathEscape(schoolID) + "/admissions"
	if err := c.do(ctx, op, http.MethodGet, path, id, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Admissions == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing admissions"}
	}
	return keepValid(op, *resp.Admissions), nil
}

// keepValid drops entries that fail validation.
func keepValid[T any](op string, items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if err := validator.Struct(it); err != nil {
			slog.Warn("skipping malformed entry", "op", op, "error", err)
			continue
		}
		out = append(out, it)
	}
	return out
}
