package main

import (
	"errors"
	"net/http"

	"famwatch/auth"
	"famwatch/check"
	"famwatch/disagreement"
	"famwatch/response"
)

type memberResponse struct {
	ID       string `json:"id"`
	FamilyID string `json:"familyId"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type checkResponse struct {
	ID                  string  `json:"id"`
	FamilyID            string  `json:"familyId"`
	ChildID             string  `json:"childId"`
	MonitoringStartDate string  `json:"monitoringStartDate"`
	TriggerType         string  `json:"triggerType"`
	Status              string  `json:"status"`
	CheckCompletedDate  *string `json:"checkCompletedDate,omitempty"`
	CreatedAt           string  `json:"createdAt"`
	UpdatedAt           string  `json:"updatedAt"`
}

type answerResponse struct {
	ID                      string   `json:"id"`
	CheckID                 string   `json:"checkId"`
	RespondentID            string   `json:"respondentId"`
	RespondentRole          string   `json:"respondentRole"`
	IsMonitoringAppropriate string   `json:"isMonitoringAppropriate"`
	HasExternalRiskChanged  *bool    `json:"hasExternalRiskChanged,omitempty"`
	HasMaturityIncreased    *bool    `json:"hasMaturityIncreased,omitempty"`
	FreeformFeedback        *string  `json:"freeformFeedback,omitempty"`
	SuggestedChanges        []string `json:"suggestedChanges"`
	IsPrivate               bool     `json:"isPrivate"`
	SubmittedAt             string   `json:"submittedAt"`
}

type summaryResponse struct {
	TotalResponses      int  `json:"totalResponses"`
	ChildResponded      bool `json:"childResponded"`
	ParentResponseCount int  `json:"parentResponseCount"`
	AllPartiesResponded bool `json:"allPartiesResponded"`
}

// disagreementResponse omits the child's answer unless the viewer is that
// child.
type disagreementResponse struct {
	ID               string                        `json:"id"`
	CheckID          string                        `json:"checkId"`
	FamilyID         string                        `json:"familyId"`
	ChildID          string                        `json:"childId"`
	ChildResponse    *string                       `json:"childResponse,omitempty"`
	ParentResponses  []disagreement.ParentResponse `json:"parentResponses"`
	DisagreementType string                        `json:"disagreementType"`
	SurfacedAt       string                        `json:"surfacedAt"`
	ResolvedAt       *string                       `json:"resolvedAt,omitempty"`
	Resolution       *string                       `json:"resolution,omitempty"`
}

func toMemberResponse(m auth.Member) memberResponse {
	return memberResponse{
		ID:       m.ID,
		FamilyID: m.FamilyID,
		Email:    m.Email,
		FullName: m.FullName,
		Role:     string(m.Role),
	}
}

func toCheckResponse(c check.Check) checkResponse {
	return checkResponse{
		ID:                  c.ID,
		FamilyID:            c.FamilyID,
		ChildID:             c.ChildID,
		MonitoringStartDate: formatTime(c.MonitoringStartDate),
		TriggerType:         string(c.TriggerType),
		Status:              string(c.Status),
		CheckCompletedDate:  formatTimePtr(c.CheckCompletedDate),
		CreatedAt:           formatTime(c.CreatedAt),
		UpdatedAt:           formatTime(c.UpdatedAt),
	}
}

func toAnswerResponse(r response.Response) answerResponse {
	suggested := r.SuggestedChanges
	if suggested == nil {
		suggested = []string{}
	}
	return answerResponse{
		ID:                      r.ID,
		CheckID:                 r.CheckID,
		RespondentID:            r.RespondentID,
		RespondentRole:          string(r.RespondentRole),
		IsMonitoringAppropriate: string(r.IsMonitoringAppropriate),
		HasExternalRiskChanged:  r.HasExternalRiskChanged,
		HasMaturityIncreased:    r.HasMaturityIncreased,
		FreeformFeedback:        r.FreeformFeedback,
		SuggestedChanges:        suggested,
		IsPrivate:               r.IsPrivate,
		SubmittedAt:             formatTime(r.SubmittedAt),
	}
}

func toDisagreementResponse(d disagreement.Record, viewerID string) disagreementResponse {
	out := disagreementResponse{
		ID:               d.ID,
		CheckID:          d.CheckID,
		FamilyID:         d.FamilyID,
		ChildID:          d.ChildID,
		ParentResponses:  d.ParentResponses,
		DisagreementType: string(d.DisagreementType),
		SurfacedAt:       formatTime(d.SurfacedAt),
		ResolvedAt:       formatTimePtr(d.ResolvedAt),
		Resolution:       d.Resolution,
	}
	if out.ParentResponses == nil {
		out.ParentResponses = []disagreement.ParentResponse{}
	}
	if viewerID == d.ChildID {
		choice := string(d.ChildResponse)
		out.ChildResponse = &choice
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.registrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberResponse(*member))
}

// handleAddFamilyMember lets a parent register a child or another parent into
// their own family.
func (s *Server) handleAddFamilyMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, _ := identityFromContext(r.Context())

	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	member, err := s.authService.AddFamilyMember(r.Context(), id, req)
	if err != nil {
		s.registrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberResponse(*member))
}

func (s *Server) registrationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrDuplicateEmail), errors.Is(err, auth.ErrFamilyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFamilyParent):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidRegistration):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, _ := identityFromContext(r.Context())

	member, err := s.authService.GetMemberByID(r.Context(), id.UserID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(*member))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":  result.Token,
		"member": toMemberResponse(result.Member),
	})
}

// handleChildDetail serves /api/children/{childId}/checks and
// /api/children/{childId}/eligibility?since=YYYY-MM-DD.
func (s *Server) handleChildDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, _ := identityFromContext(r.Context())

	parts := splitPath(r.URL.Path, "/api/children/")
	if len(parts) != 2 {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	childID := parts[0]

	switch parts[1] {
	case "checks":
		checks, err := s.checkService.ListForChild(r.Context(), childID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		items := make([]checkResponse, 0, len(checks))
		for _, c := range checks {
			if c.FamilyID == id.FamilyID {
				items = append(items, toCheckResponse(c))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "eligibility":
		since, err := parseDate(r.URL.Query().Get("since"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a date")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"eligible":         s.checkService.IsEligible(childID, since, s.now()),
			"nextEligibleDate": formatTime(check.NextEligibleDate(since)),
		})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleChecks opens the annual check for a child. Only parents may open
// checks; the family comes from the caller's token.
func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, _ := identityFromContext(r.Context())
	if id.Role != auth.RoleParent {
		writeError(w, http.StatusForbidden, "only parents can open checks")
		return
	}

	var req struct {
		ChildID             string `json:"childId"`
		MonitoringStartDate string `json:"monitoringStartDate"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChildID == "" {
		writeError(w, http.StatusBadRequest, "childId is required")
		return
	}
	start, err := parseDate(req.MonitoringStartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "monitoringStartDate must be a date")
		return
	}

	c, created, err := s.checkService.EnsureAnnualCheck(r.Context(), check.CreateParams{
		FamilyID:            id.FamilyID,
		ChildID:             req.ChildID,
		MonitoringStartDate: start,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            "child is not yet eligible for a check",
			"nextEligibleDate": formatTime(check.NextEligibleDate(start)),
		})
		return
	}
	if c.FamilyID != id.FamilyID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toCheckResponse(*c))
}

// handleCheckDetail routes /api/checks/{id}[/start|/complete|/responses|/summary|/disagreements].
func (s *Server) handleCheckDetail(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/checks/")
	if len(parts) == 0 || len(parts) > 2 {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	c, ok := s.loadFamilyCheck(w, r, parts[0])
	if !ok {
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, toCheckResponse(*c))
		return
	}

	switch parts[1] {
	case "start", "complete":
		s.handleCheckTransition(w, r, c.ID, parts[1])
	case "responses":
		switch r.Method {
		case http.MethodGet:
			s.handleListResponses(w, r, c.ID)
		case http.MethodPost:
			s.handleSubmitResponse(w, r, *c)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "summary":
		s.handleSummary(w, r, *c)
	case "disagreements":
		s.handleSurface(w, r, c.ID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// loadFamilyCheck writes 404 for unknown checks and for checks owned by
// another family.
func (s *Server) loadFamilyCheck(w http.ResponseWriter, r *http.Request, checkID string) (*check.Check, bool) {
	id, _ := identityFromContext(r.Context())
	c, err := s.checkService.GetCheck(r.Context(), checkID)
	if err != nil {
		s.internalError(w, r, err)
		return nil, false
	}
	if c == nil || c.FamilyID != id.FamilyID {
		writeError(w, http.StatusNotFound, "check not found")
		return nil, false
	}
	return c, true
}

func (s *Server) handleCheckTransition(w http.ResponseWriter, r *http.Request, checkID, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, _ := identityFromContext(r.Context())
	if id.Role != auth.RoleParent {
		writeError(w, http.StatusForbidden, "only parents can change check status")
		return
	}

	var (
		updated *check.Check
		err     error
	)
	if action == "start" {
		updated, err = s.checkService.MarkInProgress(r.Context(), checkID)
	} else {
		updated, err = s.checkService.MarkCompleted(r.Context(), checkID)
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	writeJSON(w, http.StatusOK, toCheckResponse(*updated))
}

func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request, checkID string) {
	id, _ := identityFromContext(r.Context())
	visible, err := s.responseService.VisibleResponses(r.Context(), checkID, id.UserID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	items := make([]answerResponse, 0, len(visible))
	for _, resp := range visible {
		items = append(items, toAnswerResponse(resp))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleSubmitResponse records the caller's answer. A child may only answer
// their own check.
func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request, c check.Check) {
	id, _ := identityFromContext(r.Context())
	if id.Role == auth.RoleChild && id.UserID != c.ChildID {
		writeError(w, http.StatusForbidden, "children can only answer their own check")
		return
	}

	var req struct {
		IsMonitoringAppropriate string   `json:"isMonitoringAppropriate"`
		HasExternalRiskChanged  *bool    `json:"hasExternalRiskChanged"`
		HasMaturityIncreased    *bool    `json:"hasMaturityIncreased"`
		FreeformFeedback        *string  `json:"freeformFeedback"`
		SuggestedChanges        []string `json:"suggestedChanges"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.responseService.SubmitResponse(r.Context(), response.SubmitParams{
		CheckID:                 c.ID,
		RespondentID:            id.UserID,
		RespondentRole:          response.Role(id.Role),
		IsMonitoringAppropriate: response.Choice(req.IsMonitoringAppropriate),
		HasExternalRiskChanged:  req.HasExternalRiskChanged,
		HasMaturityIncreased:    req.HasMaturityIncreased,
		FreeformFeedback:        req.FreeformFeedback,
		SuggestedChanges:        req.SuggestedChanges,
	})
	if err != nil {
		if errors.Is(err, response.ErrInvalidChoice) || errors.Is(err, response.ErrInvalidRole) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnswerResponse(created))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, c check.Check) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := s.responseService.GetResponseSummary(r.Context(), c.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	_, parents, err := s.authService.FamilyMembers(r.Context(), c.FamilyID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	// Only the check's own child may answer it, so siblings are not expected.
	all, err := s.responseService.HasAllPartiesResponded(r.Context(), c.ID, []string{c.ChildID}, parents)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		TotalResponses:      summary.TotalResponses,
		ChildResponded:      summary.ChildResponded,
		ParentResponseCount: summary.ParentResponseCount,
		AllPartiesResponded: all,
	})
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request, checkID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, _ := identityFromContext(r.Context())

	rec, err := s.disagreementService.SurfaceForCheck(r.Context(), checkID)
	if err != nil {
		if errors.Is(err, disagreement.ErrCheckNotFound) {
			writeError(w, http.StatusNotFound, "check not found")
			return
		}
		s.internalError(w, r, err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, toDisagreementResponse(*rec, id.UserID))
}

func (s *Server) handleDisagreements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, _ := identityFromContext(r.Context())

	records, err := s.disagreementService.GetUnresolvedDisagreements(r.Context(), id.FamilyID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	items := make([]disagreementResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisagreementResponse(rec, id.UserID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleDisagreementDetail serves GET /api/disagreements/{id} and
// POST /api/disagreements/{id}/resolve.
func (s *Server) handleDisagreementDetail(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/disagreements/")
	if len(parts) == 0 || len(parts) > 2 {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	id, _ := identityFromContext(r.Context())

	rec, err := s.disagreementService.GetDisagreement(r.Context(), parts[0])
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if rec == nil || rec.FamilyID != id.FamilyID {
		writeError(w, http.StatusNotFound, "disagreement not found")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, toDisagreementResponse(*rec, id.UserID))
		return
	}
	if parts[1] != "resolve" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Resolution == "" {
		writeError(w, http.StatusBadRequest, "resolution is required")
		return
	}

	resolved, err := s.disagreementService.MarkDisagreementResolved(r.Context(), rec.ID, req.Resolution)
	if err != nil {
		if errors.Is(err, disagreement.ErrNotFound) {
			writeError(w, http.StatusNotFound, "disagreement not found")
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisagreementResponse(resolved, id.UserID))
}
