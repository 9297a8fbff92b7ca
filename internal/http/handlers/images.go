package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"boongle/internal/domain"
	"boongle/internal/entitlement"
	"boongle/pkg/zip"
)

type imageGenerateRequest struct {
	Prompt string `json:"prompt"`
}

type artifactResponse struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	MediaType   string    `json:"media_type"`
	Index       int       `json:"index"`
	Bytes       int       `json:"bytes"`
	Prompt      string    `json:"prompt"`
	CreatedAt   time.Time `json:"created_at"`
	DownloadURL string    `json:"download_url"`
}

type generateResponse struct {
	RequestID string              `json:"request_id"`
	Items     []artifactResponse  `json:"items"`
	Profile   *domain.Profile     `json:"profile,omitempty"`
	Display   entitlement.Display `json:"display"`
	Warnings  []string            `json:"warnings,omitempty"`
}

func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Coordinator.Generate(r.Context(), req.Prompt)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{
		RequestID: res.RequestID,
		Items:     toArtifactResponses(res.Artifacts),
		Profile:   res.Profile,
		Display:   entitlement.Describe(res.Profile, true),
		Warnings:  res.Warnings,
	})
}

func (a *App) ImagesList(w http.ResponseWriter, r *http.Request) {
	st := a.Coordinator.State()
	a.json(w, http.StatusOK, map[string]any{
		"request_id": st.RequestID,
		"items":      toArtifactResponses(st.Artifacts),
	})
}

func (a *App) ImageDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	artifact, err := a.Coordinator.Artifact(id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", artifact.MediaType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

// ImageZip streams every artifact of the current request as one archive.
func (a *App) ImageZip(w http.ResponseWriter, r *http.Request) {
	st := a.Coordinator.State()
	if len(st.Artifacts) == 0 {
		a.fail(w, r, domain.ErrNotFound)
		return
	}
	assets := make([]zip.Asset, 0, len(st.Artifacts))
	for _, art := range st.Artifacts {
		assets = append(assets, zip.Asset{Filename: art.FileName, MIME: art.MediaType, Data: art.Data, Modified: art.CreatedAt})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=boongle-images-%d.zip", st.Artifacts[0].CreatedAt.UnixMilli()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func toArtifactResponses(artifacts []domain.Artifact) []artifactResponse {
	out := make([]artifactResponse, 0, len(artifacts))
	for _, art := range artifacts {
		out = append(out, artifactResponse{
			ID:          art.ID,
			FileName:    art.FileName,
			MediaType:   art.MediaType,
			Index:       art.Index,
			Bytes:       len(art.Data),
			Prompt:      art.Prompt,
			CreatedAt:   art.CreatedAt,
			DownloadURL: "/v1/images/" + art.ID + "/download",
		})
	}
	return out
}
