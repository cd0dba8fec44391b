// Package model holds the row shapes exchanged with the hosted data layer.
// All entities are owned by the external store; these are wire types, not an
// in-memory authoritative copy.
package model

import "time"

// Client is a portal user belonging to one company. Role "primary" may approve
// files and request revisions; "member" is view-and-comment only.
type Client struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id"`
	Company      string    `json:"company_name,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Project struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// File is a deliverable uploaded to a project for client review.
type File struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind,omitempty"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	ObjectKey  string    `json:"object_key,omitempty"`
	Version    int       `json:"version,omitempty"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// Approval statuses. A file with no approval row is pending.
const (
	StatusApproved          = "approved"
	StatusRevisionRequested = "revision_requested"
)

// Approval is one row per (file, client) pair, upserted on resubmission.
type Approval struct {
	ID        string    `json:"id,omitempty"`
	FileID    string    `json:"file_id"`
	ClientID  string    `json:"client_id"`
	Status    string    `json:"status"`
	Comment   string    `json:"comment,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Comment author types.
const (
	AuthorClient = "client"
	AuthorTeam   = "team"
)

// Comment is immutable after creation except for the two read flags, which are
// flipped by the opposite party's read action.
type Comment struct {
	ID             string    `json:"id,omitempty"`
	ProjectID      string    `json:"project_id"`
	FileID         *string   `json:"file_id,omitempty"`
	AuthorType     string    `json:"author_type"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name,omitempty"`
	Text           string    `json:"text"`
	ParentID       *string   `json:"parent_id,omitempty"`
	IsReadByClient bool      `json:"is_read_by_client"`
	IsReadByTeam   bool      `json:"is_read_by_team"`
	CreatedAt      time.Time `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id,omitempty"`
	Recipient string    `json:"recipient"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// TeamMember is an agency-side user; admins receive fan-out notifications.
type TeamMember struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// PasswordReset is a single-use reset token row; only the token hash is stored.
type PasswordReset struct {
	ID        string    `json:"id,omitempty"`
	ClientID  string    `json:"client_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// PortalSettings is the public branding blob served without authentication.
type PortalSettings struct {
	PortalName   string `json:"portal_name"`
	SupportEmail string `json:"support_email,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
}
