package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"listkeeper/internal/archive"
	"listkeeper/internal/domain"
	"listkeeper/internal/workflow"
)

type TaskResponse struct {
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type DraftResponse struct {
	ListID *int64         `json:"list_id"`
	Name   *string        `json:"name"`
	Tasks  []TaskResponse `json:"tasks"`
}

type ListResponse struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Tasks     []TaskResponse `json:"tasks"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

type MessageResponse struct {
	Level string `json:"level"`
	Code  string `json:"code"`
}

type SelectionResponse struct {
	Index int          `json:"index"`
	Task  TaskResponse `json:"task"`
}

type ViewResponse struct {
	Step     string             `json:"step"`
	Redirect bool               `json:"redirect"`
	Draft    DraftResponse      `json:"draft"`
	Editing  *SelectionResponse `json:"editing,omitempty"`
	Renaming bool               `json:"renaming,omitempty"`
	Messages []MessageResponse  `json:"messages"`
	Lists    []ListResponse     `json:"lists"`
	Saved    *ListResponse      `json:"saved,omitempty"`
}

type ErrorResponse struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
}

type SnapshotResponse struct {
	Key     string  `json:"key"`
	Size    int64   `json:"size"`
	SavedAt *string `json:"saved_at,omitempty"`
	URL     string  `json:"url"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
}

func tasksToResponse(tasks []domain.Task) []TaskResponse {
	resp := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = TaskResponse{Description: t.Description, Priority: t.Priority}
	}
	return resp
}

func listToResponse(list domain.List) ListResponse {
	return ListResponse{
		ID:        list.ID,
		Name:      list.Name,
		Tasks:     tasksToResponse(list.Tasks),
		CreatedAt: list.CreatedAt.Format(time.RFC3339),
		UpdatedAt: list.UpdatedAt.Format(time.RFC3339),
	}
}

func viewToResponse(view workflow.View) ViewResponse {
	resp := ViewResponse{
		Step:     string(view.Step),
		Redirect: view.Redirect,
		Draft: DraftResponse{
			ListID: view.Draft.ListID,
			Name:   view.Draft.Name,
			Tasks:  tasksToResponse(view.Draft.Tasks),
		},
		Renaming: view.Renaming,
		Messages: make([]MessageResponse, len(view.Messages)),
	}
	if resp.Step == "" {
		resp.Step = string(workflow.StepNaming)
	}
	for i, m := range view.Messages {
		resp.Messages[i] = MessageResponse{Level: string(m.Level), Code: string(m.Code)}
	}
	if view.Editing != nil {
		resp.Editing = &SelectionResponse{
			Index: view.Editing.Index,
			Task:  TaskResponse{Description: view.Editing.Task.Description, Priority: view.Editing.Task.Priority},
		}
	}
	if view.Lists != nil {
		resp.Lists = make([]ListResponse, len(view.Lists))
		for i := range view.Lists {
			resp.Lists[i] = listToResponse(view.Lists[i])
		}
	}
	if view.Saved != nil {
		saved := listToResponse(*view.Saved)
		resp.Saved = &saved
	}
	return resp
}

func snapshotToResponse(s archive.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{Key: s.Key, Size: s.Size, URL: s.URL}
	if s.SavedAt != nil && !s.SavedAt.IsZero() {
		v := s.SavedAt.Format(time.RFC3339)
		resp.SavedAt = &v
	}
	return resp
}

// statusFor maps workflow failures to HTTP statuses. Authorization failures look exactly
// like missing lists.
func statusFor(err error) (int, *ErrorResponse) {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		return http.StatusInternalServerError, &ErrorResponse{Kind: "internal", Code: "internal_error"}
	}

	resp := &ErrorResponse{Kind: string(werr.Kind), Code: string(werr.Code)}
	switch werr.Kind {
	case workflow.KindValidation:
		return http.StatusUnprocessableEntity, resp
	case workflow.KindIndex:
		return http.StatusBadRequest, resp
	case workflow.KindConflict:
		return http.StatusConflict, resp
	case workflow.KindNotFound, workflow.KindAuthorization:
		resp.Kind = string(workflow.KindNotFound)
		return http.StatusNotFound, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

// writeView answers with the view and, on failure, the error that produced it.
func (h *Handler) writeView(c *gin.Context, status int, view workflow.View, err error) {
	body := gin.H{"view": viewToResponse(view)}
	if err != nil {
		code, errResp := statusFor(err)
		if code == http.StatusInternalServerError {
			h.logger.WithField("request_id", c.GetString(ctxRequestID)).Errorf("request error: %v", err)
		}
		body["error"] = errResp
		status = code
	}
	c.JSON(status, body)
}
