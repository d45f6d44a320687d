package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/schoolportal/internal/model"
)

// rawRef is an object reference that the API sends either as a bare ID
// string or as an object with "id" or "_id".
type rawRef struct {
	ID string
}

func (r *rawRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID  string `json:"id"`
		OID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = firstNonEmpty(obj.ID, obj.OID)
	return nil
}

func refIDs(refs []rawRef) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

type rawUser struct {
	ID        string   `json:"id"`
	OID       string   `json:"_id"`
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	SchoolID  string   `json:"schoolId"`
	Schools   []rawRef `json:"schools"`
	ClassID   string   `json:"classId"`
	Class     rawRef   `json:"class"`
	StudentID string   `json:"studentId"`
	Classes   []rawRef `json:"classes"`
	Children  []rawRef `json:"children"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  *rawUser `json:"user"`
}

// Login exchanges credentials for a bearer token and a normalized identity.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	const op = "login"
	body := map[string]string{"email": email, "password": password}

	var resp loginResponse
	if err := c.do(ctx, op, http.MethodPost, "/auth/login", nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, &MalformedResponseError{Op: op, Reason: "missing token"}
	}
	if resp.User == nil {
		return nil, &MalformedResponseError{Op: op, Reason: "missing user"}
	}

	claims := tokenClaims(resp.Token)
	profile, err := normalizeUser(*resp.User, claims)
	if err != nil {
		return nil, &MalformedResponseError{Op: op, Reason: err.Error()}
	}
	return &model.Identity{
		Token:     resp.Token,
		ExpiresAt: claimsExpiry(claims),
		Profile:   profile,
	}, nil
}

type normalizeError string

func (e normalizeError) Error() string { return string(e) }

// normalizeUser turns the role-dependent user payload into a typed profile.
// Missing user IDs fall back to the token's "sub" or "id" claim.
func normalizeUser(u rawUser, claims jwt.MapClaims) (model.Profile, error) {
	userID := firstNonEmpty(u.ID, u.OID, claimsSubject(claims))
	if userID == "" {
		return nil, normalizeError("user has no id")
	}
	schoolID := u.SchoolID
	if schoolID == "" && len(u.Schools) > 0 {
		schoolID = u.Schools[0].ID
	}

	role := model.Role(strings.ToLower(strings.TrimSpace(u.Role)))
	switch role {
	case model.RolePrincipal:
		return model.PrincipalProfile{UserID: userID, Name: u.Name, SchoolID: schoolID}, nil
	case model.RoleTeacher:
		return model.TeacherProfile{
			UserID:   userID,
			Name:     u.Name,
			SchoolID: schoolID,
			ClassIDs: refIDs(u.Classes),
		}, nil
	case model.RoleStudent:
		return model.StudentProfile{
			UserID:    userID,
			Name:      u.Name,
			StudentID: firstNonEmpty(u.StudentID, userID),
			SchoolID:  schoolID,
			ClassID:   firstNonEmpty(u.ClassID, u.Class.ID),
		}, nil
	case model.RoleParent:
		return model.ParentProfile{
			UserID:   userID,
			Name:     u.Name,
			SchoolID: schoolID,
			ChildIDs: refIDs(u.Children),
		}, nil
	default:
		return nil, normalizeError("unknown role " + u.Role)
	}
}

// tokenClaims reads the claims of a JWT without verifying its signature.
// The portal is not the token's audience; it only needs expiry and subject.
func tokenClaims(token string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

func claimsExpiry(claims jwt.MapClaims) time.Time {
	if claims == nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func claimsSubject(claims jwt.MapClaims) string {
	if claims == nil {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok {
		return id
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
