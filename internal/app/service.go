package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reviewport/api/internal/authpw"
	"reviewport/api/internal/config"
	"reviewport/api/internal/email"
	"reviewport/api/internal/gateway"
	"reviewport/api/internal/model"
	"reviewport/api/internal/ratelimit"
	"reviewport/api/internal/rbac"
	"reviewport/api/internal/search"
	"reviewport/api/internal/session"
	"reviewport/api/internal/thread"
)

// DataGateway is the subset of the gateway client the service uses. Tests
// substitute a fake.
type DataGateway interface {
	Select(ctx context.Context, resource string, q gateway.Query, out any) (int, error)
	Insert(ctx context.Context, resource string, record, out any) error
	Upsert(ctx context.Context, resource string, record, out any, conflictColumns string) error
	Update(ctx context.Context, resource string, q gateway.Query, patch any) error
}

// URLSigner produces presigned download URLs. Nil when storage is not
// configured.
type URLSigner interface {
	DownloadURL(ctx context.Context, objectKey, downloadName string, expiry time.Duration) (string, error)
}

// Searcher is the search facade surface. Tests substitute a fake.
type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexRecords(records []search.Record)
}

// Service implements every portal action. All persisted state lives behind gw;
// the service holds no authoritative copy and re-fetches on every read.
type Service struct {
	cfg      config.Config
	gw       DataGateway
	sessions *session.RedisStore
	limiter  *ratelimit.Limiter
	pw       *authpw.Service
	mailer   *email.Service
	signer   URLSigner
	searcher Searcher
	logger   *zap.Logger
}

func NewService(cfg config.Config, gw DataGateway, sessions *session.RedisStore, limiter *ratelimit.Limiter, mailer *email.Service, signer URLSigner, logger *zap.Logger) *Service {
	s := &Service{
		cfg:      cfg,
		gw:       gw,
		sessions: sessions,
		limiter:  limiter,
		mailer:   mailer,
		signer:   signer,
		logger:   logger.With(zap.String("component", "app")),
	}
	s.pw = authpw.NewService(s)
	return s
}

// SetSearcher wires the optional search facade after construction.
func (s *Service) SetSearcher(searcher Searcher) {
	s.searcher = searcher
}

func (s *Service) Sessions() *session.RedisStore { return s.sessions }

func nowUTC() time.Time { return time.Now().UTC() }

// --- Authentication -------------------------------------------------------

// LoginResult carries what the HTTP layer needs to establish the session.
type LoginResult struct {
	SessionID string
	CSRFToken string
	Client    model.Client
}

// Login verifies credentials behind the lockout gate. The lockout check runs
// before any credential query, and every failure path is padded to the
// configured minimum duration by the caller via HoldUntil.
func (s *Service) Login(ctx context.Context, emailAddr, password, sourceAddr string) (*LoginResult, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" || password == "" {
		return nil, errValidation("Email and password are required")
	}

	status, err := s.limiter.Check(ctx, emailAddr)
	if err != nil {
		s.logger.Error("lockout check failed", zap.Error(err))
		return nil, errUpstream()
	}
	if status.Locked {
		return nil, errValidation(fmt.Sprintf("Too many failed attempts. Try again in %d minutes.", status.RemainingMinutes))
	}

	client, err := s.pw.VerifyCredentials(ctx, emailAddr, password)
	if err != nil {
		if recErr := s.limiter.RecordAttempt(ctx, emailAddr, sourceAddr, false); recErr != nil {
			s.logger.Warn("record failed attempt", zap.Error(recErr))
		}
		return nil, errValidation("Invalid email or password")
	}

	if err := s.limiter.RecordAttempt(ctx, emailAddr, sourceAddr, true); err != nil {
		s.logger.Warn("record successful attempt", zap.Error(err))
	}

	sessionID, csrfToken, err := s.sessions.Create(ctx, session.Actor{
		ID:        client.ID,
		Email:     client.Email,
		Name:      client.Name,
		Company:   client.Company,
		CompanyID: client.CompanyID,
		Role:      string(rbac.Normalize(client.Role)),
	})
	if err != nil {
		s.logger.Error("create session", zap.Error(err))
		return nil, errUpstream()
	}

	return &LoginResult{SessionID: sessionID, CSRFToken: csrfToken, Client: client}, nil
}

// Logout destroys the session if one exists.
func (s *Service) Logout(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		s.logger.Warn("destroy session", zap.Error(err))
	}
}

// ForgotPassword issues a reset token and mails the link. The response never
// reveals whether the email has an account.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" {
		return errValidation("Email is required")
	}

	token, client, err := s.pw.RequestReset(ctx, emailAddr)
	if err != nil {
		s.logger.Error("request password reset", zap.Error(err))
		return errUpstream()
	}
	if token == "" {
		return nil
	}

	resetURL := strings.TrimRight(s.cfg.PortalBaseURL, "/") + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordReset(client.Email, client.Name, resetURL); err != nil {
		s.logger.Warn("send reset mail", zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.pw.ResetPassword(ctx, token, newPassword); err != nil {
		if errors.Is(err, authpw.ErrInvalidResetToken) {
			return errValidation("Invalid or expired reset link")
		}
		return errValidation(err.Error())
	}
	return nil
}

// PortalSettings returns the public branding blob.
func (s *Service) PortalSettings(ctx context.Context) (model.PortalSettings, error) {
	var rows []model.PortalSettings
	if _, err := s.gw.Select(ctx, "portal_settings", gateway.Query{}.Page(1, 0), &rows); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.PortalSettings{PortalName: "Client Portal"}, nil
		}
		return model.PortalSettings{}, errUpstream()
	}
	if len(rows) == 0 {
		return model.PortalSettings{PortalName: "Client Portal"}, nil
	}
	return rows[0], nil
}

// --- authpw.ClientStore ---------------------------------------------------

func (s *Service) ClientByEmail(ctx context.Context, emailAddr string) (model.Client, error) {
	var rows []model.Client
	if _, err := s.gw.Select(ctx, "clients", gateway.Query{}.Eq("email", emailAddr).Page(1, 0), &rows); err != nil {
		return model.Client{}, err
	}
	if len(rows) == 0 {
		return model.Client{}, gateway.ErrNotFound
	}
	return rows[0], nil
}

func (s *Service) UpdateClientPassword(ctx context.Context, clientID, passwordHash string) error {
	return s.gw.Update(ctx, "clients", gateway.Query{}.Eq("id", clientID), map[string]any{
		"password_hash": passwordHash,
	})
}

func (s *Service) CreatePasswordReset(ctx context.Context, reset model.PasswordReset) error {
	return s.gw.Insert(ctx, "password_resets", reset, nil)
}

func (s *Service) ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error) {
	var rows []model.PasswordReset
	q := gateway.Query{}.
		Eq("token_hash", tokenHash).
		Is("used_at", "null").
		Gte("expires_at", nowUTC().Format(time.RFC3339)).
		Page(1, 0)
	if _, err := s.gw.Select(ctx, "password_resets", q, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", gateway.ErrNotFound
	}
	if err := s.gw.Update(ctx, "password_resets", gateway.Query{}.Eq("token_hash", tokenHash), map[string]any{
		"used_at": nowUTC().Format(time.RFC3339),
	}); err != nil {
		return "", err
	}
	return rows[0].ClientID, nil
}

// --- Scoped lookups -------------------------------------------------------

// companyProjectIDs returns the id set that scopes every tenant-boundary
// query. An empty set matches nothing downstream.
func (s *Service) companyProjectIDs(ctx context.Context, companyID string) ([]string, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	if _, err := s.gw.Select(ctx, "projects", gateway.Query{}.Eq("company_id", companyID).Select("id"), &rows); err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// projectInCompany resolves a project only within the actor's company. A
// nonexistent id and another company's id produce the same errNotFound.
func (s *Service) projectInCompany(ctx context.Context, projectID, companyID string) (model.Project, error) {
	if projectID == "" {
		return model.Project{}, errValidation("Project is required")
	}
	var rows []model.Project
	q := gateway.Query{}.Eq("id", projectID).Eq("company_id", companyID).Page(1, 0)
	if _, err := s.gw.Select(ctx, "projects", q, &rows); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.Project{}, errNotFound()
		}
		return model.Project{}, errUpstream()
	}
	if len(rows) == 0 {
		return model.Project{}, errNotFound()
	}
	return rows[0], nil
}

// fileInCompany resolves a file through the company's project id set.
func (s *Service) fileInCompany(ctx context.Context, fileID, companyID string) (model.File, error) {
	if fileID == "" {
		return model.File{}, errValidation("File is required")
	}
	projectIDs, err := s.companyProjectIDs(ctx, companyID)
	if err != nil {
		return model.File{}, errUpstream()
	}
	if len(projectIDs) == 0 {
		return model.File{}, errNotFound()
	}
	var rows []model.File
	q := gateway.Query{}.Eq("id", fileID).In("project_id", projectIDs).Page(1, 0)
	if _, err := s.gw.Select(ctx, "files", q, &rows); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return model.File{}, errNotFound()
		}
		return model.File{}, errUpstream()
	}
	if len(rows) == 0 {
		return model.File{}, errNotFound()
	}
	return rows[0], nil
}

// --- Read actions ---------------------------------------------------------

const defaultPerPage = 10

// Dashboard aggregates counts and recent activity for the landing screen.
func (s *Service) Dashboard(ctx context.Context, actor session.Actor) (map[string]any, error) {
	var recent []model.Project
	projectsTotal, err := s.gw.Select(ctx, "projects",
		gateway.Query{}.Eq("company_id", actor.CompanyID).Order("created_at.desc").Page(5, 0).WithCount(),
		&recent)
	if err != nil {
		return nil, errUpstream()
	}

	projectIDs, err := s.companyProjectIDs(ctx, actor.CompanyID)
	if err != nil {
		return nil, errUpstream()
	}

	unreadComments := 0
	if len(projectIDs) > 0 {
		unreadComments, err = s.gw.Select(ctx, "comments",
			gateway.Query{}.
				In("project_id", projectIDs).
				Eq("author_type", model.AuthorTeam).
				Is("is_read_by_client", "false").
				Page(1, 0).WithCount(),
			nil)
		if err != nil {
			return nil, errUpstream()
		}
	}

	unreadNotifications, err := s.gw.Select(ctx, "notifications",
		gateway.Query{}.Eq("recipient", actor.ID).Is("is_read", "false").Page(1, 0).WithCount(),
		nil)
	if err != nil {
		return nil, errUpstream()
	}

	if recent == nil {
		recent = []model.Project{}
	}
	return map[string]any{
		"projects_total":       projectsTotal,
		"recent_projects":      recent,
		"unread_comments":      unreadComments,
		"unread_notifications": unreadNotifications,
	}, nil
}

// Projects lists the company's projects with optional status filter.
func (s *Service) Projects(ctx context.Context, actor session.Actor, statusFilter string, page, perPage int) (map[string]any, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = defaultPerPage
	}

	q := gateway.Query{}.Eq("company_id", actor.CompanyID)
	if statusFilter != "" {
		q = q.Eq("status", statusFilter)
	}
	q = q.Order("created_at.desc").Page(perPage, (page-1)*perPage).WithCount()

	var projects []model.Project
	total, err := s.gw.Select(ctx, "projects", q, &projects)
	if err != nil {
		return nil, errUpstream()
	}
	if projects == nil {
		projects = []model.Project{}
	}
	return map[string]any{
		"projects": projects,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	}, nil
}

// fileWithApproval decorates a file with its current review state.
type fileWithApproval struct {
	model.File
	ApprovalStatus  string `json:"approval_status"`
	ApprovalComment string `json:"approval_comment,omitempty"`
}

// ProjectDetail returns the project, its files page, and the review state per
// file. A file with no approval row reports "pending".
func (s *Service) ProjectDetail(ctx context.Context, actor session.Actor, projectID, kindFilter string, page, perPage int) (map[string]any, error) {
	project, err := s.projectInCompany(ctx, projectID, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = defaultPerPage
	}

	q := gateway.Query{}.Eq("project_id", project.ID)
	if kindFilter != "" {
		q = q.Eq("kind", kindFilter)
	}
	q = q.Order("created_at.desc").Page(perPage, (page-1)*perPage).WithCount()

	var files []model.File
	total, err := s.gw.Select(ctx, "files", q, &files)
	if err != nil {
		return nil, errUpstream()
	}

	decorated := make([]fileWithApproval, len(files))
	for i, f := range files {
		decorated[i] = fileWithApproval{File: f, ApprovalStatus: "pending"}
	}

	if len(files) > 0 {
		fileIDs := make([]string, len(files))
		for i, f := range files {
			fileIDs[i] = f.ID
		}
		var approvals []model.Approval
		aq := gateway.Query{}.In("file_id", fileIDs).Order("decided_at.desc")
		if _, err := s.gw.Select(ctx, "approvals", aq, &approvals); err != nil {
			// Degrade to pending rather than failing the whole page.
			s.logger.Warn("load approvals", zap.String("project", project.ID), zap.Error(err))
		} else {
			// Newest decision per file wins.
			latest := map[string]model.Approval{}
			for _, a := range approvals {
				if _, seen := latest[a.FileID]; !seen {
					latest[a.FileID] = a
				}
			}
			for i := range decorated {
				if a, ok := latest[decorated[i].ID]; ok {
					decorated[i].ApprovalStatus = a.Status
					decorated[i].ApprovalComment = a.Comment
				}
			}
		}
	}

	return map[string]any{
		"project":  project,
		"files":    decorated,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	}, nil
}

// Comments returns the threaded comment forest for a project (optionally one
// file) and marks team comments read for the client.
func (s *Service) Comments(ctx context.Context, actor session.Actor, projectID, fileID string) (map[string]any, error) {
	project, err := s.projectInCompany(ctx, projectID, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	q := gateway.Query{}.Eq("project_id", project.ID)
	if fileID != "" {
		q = q.Eq("file_id", fileID)
	}
	q = q.Order("created_at.asc")

	var comments []model.Comment
	if _, err := s.gw.Select(ctx, "comments", q, &comments); err != nil {
		return nil, errUpstream()
	}

	// Read receipts are best-effort; the read itself already succeeded. Only
	// comments the client actually saw are marked, so a file-filtered fetch
	// leaves the rest of the project's thread unread.
	markQ := gateway.Query{}.Eq("project_id", project.ID)
	if fileID != "" {
		markQ = markQ.Eq("file_id", fileID)
	}
	markQ = markQ.
		Eq("author_type", model.AuthorTeam).
		Is("is_read_by_client", "false")
	if err := s.gw.Update(ctx, "comments", markQ, map[string]any{"is_read_by_client": true}); err != nil {
		s.logger.Warn("mark comments read", zap.Error(err))
	}

	return map[string]any{
		"comments": thread.Build(comments),
		"total":    len(comments),
	}, nil
}

// Notifications lists the actor's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, actor session.Actor) (map[string]any, error) {
	var notifications []model.Notification
	q := gateway.Query{}.Eq("recipient", actor.ID).Order("created_at.desc").Page(50, 0)
	if _, err := s.gw.Select(ctx, "notifications", q, &notifications); err != nil {
		return nil, errUpstream()
	}

	unread, err := s.gw.Select(ctx, "notifications",
		gateway.Query{}.Eq("recipient", actor.ID).Is("is_read", "false").Page(1, 0).WithCount(), nil)
	if err != nil {
		return nil, errUpstream()
	}

	if notifications == nil {
		notifications = []model.Notification{}
	}
	return map[string]any{
		"notifications": notifications,
		"unread":        unread,
	}, nil
}

// Search runs a scoped search across the company's projects and files.
func (s *Service) Search(ctx context.Context, actor session.Actor, text string, limit int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, errValidation("Search query is required")
	}
	q := search.Query{Text: text, CompanyID: actor.CompanyID, Limit: limit}
	if s.searcher == nil {
		results, err := s.SearchFallback(ctx, q)
		if err != nil {
			return search.Response{}, errUpstream()
		}
		return search.Response{Results: results, Total: len(results), Query: text}, nil
	}
	return s.searcher.Search(ctx, q), nil
}

// SearchFallback implements search.Fallback with data-layer pattern matches.
func (s *Service) SearchFallback(ctx context.Context, q search.Query) ([]search.Result, error) {
	limit := q.Limit
	if limit < 1 || limit > 50 {
		limit = 20
	}
	pattern := "*" + q.Text + "*"

	var projects []model.Project
	pq := gateway.Query{}.Eq("company_id", q.CompanyID).ILike("name", pattern).Page(limit, 0)
	if _, err := s.gw.Select(ctx, "projects", pq, &projects); err != nil {
		return nil, err
	}

	projectIDs, err := s.companyProjectIDs(ctx, q.CompanyID)
	if err != nil {
		return nil, err
	}
	var files []model.File
	if len(projectIDs) > 0 {
		fq := gateway.Query{}.In("project_id", projectIDs).ILike("name", pattern).Page(limit, 0)
		if _, err := s.gw.Select(ctx, "files", fq, &files); err != nil {
			return nil, err
		}
	}

	results := make([]search.Result, 0, len(projects)+len(files))
	for _, p := range projects {
		results = append(results, search.Result{
			Type: search.ResultProject, ID: p.ID, Title: p.Name, Snippet: p.Description, ProjectID: p.ID,
		})
	}
	for _, f := range files {
		results = append(results, search.Result{
			Type: search.ResultFile, ID: f.ID, Title: f.Name, ProjectID: f.ProjectID,
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SyncSearchIndex rebuilds the search corpus from the data layer and pushes it
// to the search backend, fire-and-forget on the backend side. Runs at startup
// and on a timer; project and file mutations land in the index on the next
// sweep.
func (s *Service) SyncSearchIndex(ctx context.Context) error {
	if s.searcher == nil {
		return nil
	}

	var projects []model.Project
	if _, err := s.gw.Select(ctx, "projects", gateway.Query{}, &projects); err != nil {
		return fmt.Errorf("load projects for indexing: %w", err)
	}
	var files []model.File
	if _, err := s.gw.Select(ctx, "files", gateway.Query{}, &files); err != nil {
		return fmt.Errorf("load files for indexing: %w", err)
	}

	companyByProject := make(map[string]string, len(projects))
	records := make([]search.Record, 0, len(projects)+len(files))
	for _, p := range projects {
		companyByProject[p.ID] = p.CompanyID
		records = append(records, search.Record{
			ID:          p.ID,
			Type:        string(search.ResultProject),
			CompanyID:   p.CompanyID,
			ProjectID:   p.ID,
			Title:       p.Name,
			Description: p.Description,
		})
	}
	for _, f := range files {
		records = append(records, search.Record{
			ID:        f.ID,
			Type:      string(search.ResultFile),
			CompanyID: companyByProject[f.ProjectID],
			ProjectID: f.ProjectID,
			Title:     f.Name,
		})
	}
	s.searcher.IndexRecords(records)
	return nil
}

// DownloadURL resolves a file through the tenant scope and presigns a GET URL.
func (s *Service) DownloadURL(ctx context.Context, actor session.Actor, fileID string) (string, error) {
	file, err := s.fileInCompany(ctx, fileID, actor.CompanyID)
	if err != nil {
		return "", err
	}
	if s.signer == nil || file.ObjectKey == "" {
		return "", errNotFound()
	}
	url, err := s.signer.DownloadURL(ctx, file.ObjectKey, file.Name, 15*time.Minute)
	if err != nil {
		s.logger.Error("presign download", zap.Error(err))
		return "", errUpstream()
	}
	return url, nil
}

// --- Mutating actions -----------------------------------------------------

// ApproveFile records an approval decision. Only the primary role may decide
// on behalf of the company; resubmission overwrites the prior row.
func (s *Service) ApproveFile(ctx context.Context, actor session.Actor, fileID string) (map[string]any, error) {
	return s.decideFile(ctx, actor, fileID, model.StatusApproved, "")
}

// RequestRevision records a revision request with a mandatory explanation.
func (s *Service) RequestRevision(ctx context.Context, actor session.Actor, fileID, comment string) (map[string]any, error) {
	comment = strings.TrimSpace(comment)
	if len(comment) < 10 {
		return nil, errValidation("Please describe the requested changes (at least 10 characters)")
	}
	return s.decideFile(ctx, actor, fileID, model.StatusRevisionRequested, comment)
}

func (s *Service) decideFile(ctx context.Context, actor session.Actor, fileID, status, comment string) (map[string]any, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.ActionApprove) {
		return nil, errForbidden()
	}

	file, err := s.fileInCompany(ctx, fileID, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	approval := model.Approval{
		FileID:    file.ID,
		ClientID:  actor.ID,
		Status:    status,
		Comment:   comment,
		DecidedAt: nowUTC(),
	}
	if err := s.gw.Upsert(ctx, "approvals", approval, nil, "file_id,client_id"); err != nil {
		s.logger.Error("upsert approval", zap.Error(err))
		return nil, errUpstream()
	}

	verb := "approved"
	if status == model.StatusRevisionRequested {
		verb = "requested changes on"
	}
	s.notifyAdmins(ctx, "file_review",
		fmt.Sprintf("%s %s %s", actor.Name, verb, file.Name),
		comment,
		"/projects/"+file.ProjectID+"/files/"+file.ID,
	)

	return map[string]any{"success": true, "status": status}, nil
}

// AddComment creates a client comment after scoping every referenced resource.
func (s *Service) AddComment(ctx context.Context, actor session.Actor, projectID, text string, fileID, parentID *string) (model.Comment, error) {
	text = strings.TrimSpace(text)
	if len(text) < 3 {
		return model.Comment{}, errValidation("Comment must be at least 3 characters")
	}

	project, err := s.projectInCompany(ctx, projectID, actor.CompanyID)
	if err != nil {
		return model.Comment{}, err
	}

	if fileID != nil && *fileID != "" {
		file, err := s.fileInCompany(ctx, *fileID, actor.CompanyID)
		if err != nil {
			return model.Comment{}, err
		}
		if file.ProjectID != project.ID {
			return model.Comment{}, errNotFound()
		}
	} else {
		fileID = nil
	}

	if parentID != nil && *parentID != "" {
		var parents []model.Comment
		pq := gateway.Query{}.Eq("id", *parentID).Eq("project_id", project.ID).Page(1, 0)
		if _, err := s.gw.Select(ctx, "comments", pq, &parents); err != nil || len(parents) == 0 {
			return model.Comment{}, errNotFound()
		}
	} else {
		parentID = nil
	}

	comment := model.Comment{
		ProjectID:      project.ID,
		FileID:         fileID,
		AuthorType:     model.AuthorClient,
		AuthorID:       actor.ID,
		AuthorName:     actor.Name,
		Text:           text,
		ParentID:       parentID,
		IsReadByClient: true,
		IsReadByTeam:   false,
		CreatedAt:      nowUTC(),
	}
	var created model.Comment
	if err := s.gw.Insert(ctx, "comments", comment, &created); err != nil {
		s.logger.Error("insert comment", zap.Error(err))
		return model.Comment{}, errUpstream()
	}

	s.notifyAdmins(ctx, "comment",
		fmt.Sprintf("%s commented on %s", actor.Name, project.Name),
		text,
		"/projects/"+project.ID+"#comments",
	)

	return created, nil
}

// MarkAllRead clears the actor's unread notifications and flips the client
// read flag on team comments across the company's projects.
func (s *Service) MarkAllRead(ctx context.Context, actor session.Actor) error {
	nq := gateway.Query{}.Eq("recipient", actor.ID).Is("is_read", "false")
	if err := s.gw.Update(ctx, "notifications", nq, map[string]any{"is_read": true}); err != nil {
		s.logger.Error("mark notifications read", zap.Error(err))
		return errUpstream()
	}

	projectIDs, err := s.companyProjectIDs(ctx, actor.CompanyID)
	if err != nil {
		return errUpstream()
	}
	if len(projectIDs) == 0 {
		return nil
	}
	cq := gateway.Query{}.
		In("project_id", projectIDs).
		Eq("author_type", model.AuthorTeam).
		Is("is_read_by_client", "false")
	if err := s.gw.Update(ctx, "comments", cq, map[string]any{"is_read_by_client": true}); err != nil {
		s.logger.Error("mark comments read", zap.Error(err))
		return errUpstream()
	}
	return nil
}

// MarkNotificationRead flips one notification owned by the actor.
func (s *Service) MarkNotificationRead(ctx context.Context, actor session.Actor, notificationID string) error {
	if notificationID == "" {
		return errValidation("Notification is required")
	}
	q := gateway.Query{}.Eq("id", notificationID).Eq("recipient", actor.ID)
	if err := s.gw.Update(ctx, "notifications", q, map[string]any{"is_read": true}); err != nil {
		s.logger.Error("mark notification read", zap.Error(err))
		return errUpstream()
	}
	return nil
}

// UpdateProfile changes the actor's display name and, with the current
// password re-verified, the password.
func (s *Service) UpdateProfile(ctx context.Context, actor session.Actor, name, currentPassword, newPassword string) error {
	patch := map[string]any{}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		patch["name"] = trimmed
	}

	if newPassword != "" {
		if len(newPassword) < 8 {
			return errValidation("Password must be at least 8 characters")
		}
		if _, err := s.pw.VerifyCredentials(ctx, actor.Email, currentPassword); err != nil {
			return errValidation("Current password is incorrect")
		}
		hash, err := authpw.HashPassword(newPassword)
		if err != nil {
			return errUpstream()
		}
		patch["password_hash"] = hash
	}

	if len(patch) == 0 {
		return errValidation("Nothing to update")
	}
	if err := s.gw.Update(ctx, "clients", gateway.Query{}.Eq("id", actor.ID), patch); err != nil {
		s.logger.Error("update profile", zap.Error(err))
		return errUpstream()
	}
	return nil
}

// --- Fan-out --------------------------------------------------------------

// notifyAdmins creates one notification per admin team member, sequentially
// and best-effort. Partial failure is logged and not retried.
func (s *Service) notifyAdmins(ctx context.Context, kind, title, body, link string) {
	var admins []model.TeamMember
	if _, err := s.gw.Select(ctx, "team_members", gateway.Query{}.Is("is_admin", "true"), &admins); err != nil {
		s.logger.Warn("load admins for fan-out", zap.Error(err))
		return
	}

	for _, admin := range admins {
		notification := model.Notification{
			ID:        uuid.NewString(),
			Recipient: admin.ID,
			Kind:      kind,
			Title:     title,
			Body:      body,
			Link:      link,
			IsRead:    false,
			CreatedAt: nowUTC(),
		}
		if err := s.gw.Insert(ctx, "notifications", notification, nil); err != nil {
			s.logger.Warn("notify admin", zap.String("recipient", admin.ID), zap.Error(err))
		}
	}
}
