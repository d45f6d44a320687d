package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// MissingIdentityError reports that a required session identifier is absent.
type MissingIdentityError struct {
	Field string
}

func (e *MissingIdentityError) Error() string {
	return "missing session identity: " + e.Field
}

// Profile is the role-specific part of a signed-in identity.
// It is implemented only by the profile types in this package.
type Profile interface {
	Role() Role
	DisplayName() string
	isProfile()
}

// PrincipalProfile is the profile of a school principal.
type PrincipalProfile struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	SchoolID string `json:"school_id"`
}

// TeacherProfile is the profile of a teacher.
type TeacherProfile struct {
	UserID   string   `json:"user_id"`
	Name     string   `json:"name"`
	SchoolID string   `json:"school_id"`
	ClassIDs []string `json:"class_ids"`
}

// StudentProfile is the profile of a student.
type StudentProfile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	SchoolID  string `json:"school_id"`
	ClassID   string `json:"class_id"`
}

// ParentProfile is the profile of a parent.
type ParentProfile struct {
	UserID   string   `json:"user_id"`
	Name     string   `json:"name"`
	SchoolID string   `json:"school_id"`
	ChildIDs []string `json:"child_ids"`
}

func (PrincipalProfile) Role() Role { return RolePrincipal }
func (TeacherProfile) Role() Role   { return RoleTeacher }
func (StudentProfile) Role() Role   { return RoleStudent }
func (ParentProfile) Role() Role    { return RoleParent }

func (p PrincipalProfile) DisplayName() string { return p.Name }
func (p TeacherProfile) DisplayName() string   { return p.Name }
func (p StudentProfile) DisplayName() string   { return p.Name }
func (p ParentProfile) DisplayName() string    { return p.Name }

func (PrincipalProfile) isProfile() {}
func (TeacherProfile) isProfile()   {}
func (StudentProfile) isProfile()   {}
func (ParentProfile) isProfile()    {}

// Identity is the signed-in user: bearer token plus role-tagged profile.
type Identity struct {
	Token     string
	ExpiresAt time.Time
	Profile   Profile
}

// Role returns the identity's role, or the empty role when no profile is set.
func (id *Identity) Role() Role {
	if id == nil || id.Profile == nil {
		return ""
	}
	return id.Profile.Role()
}

// BearerToken returns the API token or a MissingIdentityError.
func (id *Identity) BearerToken() (string, error) {
	if id == nil || id.Token == "" {
		return "", &MissingIdentityError{Field: "token"}
	}
	return id.Token, nil
}

// StudentID returns the student identifier used by the test endpoints.
func (id *Identity) StudentID() (string, error) {
	if id == nil {
		return "", &MissingIdentityError{Field: "student_id"}
	}
	p, ok := id.Profile.(StudentProfile)
	if !ok || p.StudentID == "" {
		return "", &MissingIdentityError{Field: "student_id"}
	}
	return p.StudentID, nil
}

// ClassID returns the student's class identifier.
func (id *Identity) ClassID() (string, error) {
	if id == nil {
		return "", &MissingIdentityError{Field: "class_id"}
	}
	p, ok := id.Profile.(StudentProfile)
	if !ok || p.ClassID == "" {
		return "", &MissingIdentityError{Field: "class_id"}
	}
	return p.ClassID, nil
}

// SchoolID returns the school the identity belongs to.
func (id *Identity) SchoolID() (string, error) {
	var school string
	if id != nil {
		switch p := id.Profile.(type) {
		case PrincipalProfile:
			school = p.SchoolID
		case TeacherProfile:
			school = p.SchoolID
		case StudentProfile:
			school = p.SchoolID
		case ParentProfile:
			school = p.SchoolID
		}
	}
	if school == "" {
		return "", &MissingIdentityError{Field: "school_id"}
	}
	return school, nil
}

// Expired reports whether the token expiry is known and in the past.
func (id *Identity) Expired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

type identityJSON struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Role      Role            `json:"role"`
	Profile   json.RawMessage `json:"profile"`
}

// MarshalJSON encodes the identity with its role as the variant tag.
func (id Identity) MarshalJSON() ([]byte, error) {
	if id.Profile == nil {
		return nil, fmt.Errorf("identity has no profile")
	}
	raw, err := json.Marshal(id.Profile)
	if err != nil {
		return nil, err
	}
	return json.Marshal(identityJSON{
		Token:     id.Token,
		ExpiresAt: id.ExpiresAt,
		Role:      id.Profile.Role(),
		Profile:   raw,
	})
}

// UnmarshalJSON decodes an identity written by MarshalJSON.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var v identityJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var p Profile
	var err error
	switch v.Role {
	case RolePrincipal:
		var pp PrincipalProfile
		err = json.Unmarshal(v.Profile, &pp)
		p = pp
	case RoleTeacher:
		var tp TeacherProfile
		err = json.Unmarshal(v.Profile, &tp)
		p = tp
	case RoleStudent:
		var sp StudentProfile
		err = json.Unmarshal(v.Profile, &sp)
		p = sp
	case RoleParent:
		var pp ParentProfile
		err = json.Unmarshal(v.Profile, &pp)
		p = pp
	default:
		return fmt.Errorf("unknown role %q", v.Role)
	}
	if err != nil {
		return fmt.Errorf("decode %s profile: %w", v.Role, err)
	}
	id.Token = v.Token
	id.ExpiresAt = v.ExpiresAt
	id.Profile = p
	return nil
}
