// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailcampaign/internal/contacts"
	"github.com/unclebandit/mailcampaign/internal/controller"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/mail"
	"github.com/unclebandit/mailcampaign/internal/service"
)

const maxUploadBytes = 10 << 20

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Registry *controller.Registry
	Log      *logger.Logger
}

// NewCampaignHandler creates a new CampaignHandler over the given registry
func NewCampaignHandler(reg *controller.Registry, log *logger.Logger) *CampaignHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CampaignHandler{Registry: reg, Log: log.WithComponent("http")}
}

type parseResponse struct {
	Headers   []string              `json:"headers"`
	RowCount  int                   `json:"row_count"`
	Delimiter string                `json:"delimiter"`
	Warnings  []string              `json:"warnings,omitempty"`
	Suggested contacts.FieldMapping `json:"suggested_mapping"`
	Preview   []contacts.Row        `json:"preview"`
}

// ParseContactsHandler parses an upload and proposes a field mapping
func (h *CampaignHandler) ParseContactsHandler(w http.ResponseWriter, r *http.Request) {
	list, _, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	preview := list.Rows
	if len(preview) > 5 {
		preview = preview[:5]
	}
	writeJSON(w, http.StatusOK, parseResponse{
		Headers:   list.Headers,
		RowCount:  len(list.Rows),
		Delimiter: list.Delimiter,
		Warnings:  list.Warnings,
		Suggested: contacts.Suggest(list.Headers),
		Preview:   preview,
	})
}

type campaignFields struct {
	Mapping  contacts.FieldMapping  `json:"mapping"`
	Template service.TemplateConfig `json:"template"`
}

// CreateCampaignHandler parses the upload, resolves the mapping and registers an idle campaign
func (h *CampaignHandler) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	list, fields, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	mapping := fields.Mapping
	if len(mapping) == 0 {
		mapping = contacts.Suggest(list.Headers)
	}
	records, err := mapping.Resolve(list)
	if err != nil {
		writeError(w, err)
		return
	}

	cc := h.Registry.Create(records, fields.Template)
	h.Log.Info().Str("campaign_id", cc.ID()).Int("contacts", len(records)).Msg("campaign created")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign": cc.Snapshot(),
		"mapping":  mapping,
		"warnings": list.Warnings,
	})
}

// ListCampaignsHandler returns every campaign known to this server
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": h.Registry.List()})
}

// GetCampaignHandler returns a campaign with its generated drafts
func (h *CampaignHandler) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.campaign(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": cc.Snapshot(),
		"tasks":    cc.Tasks(),
	})
}

func (h *CampaignHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.Registry.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *CampaignHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.campaign(w, r)
	if !ok {
		return
	}
	st, err := cc.StartAsync(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (h *CampaignHandler) RegenerateHandler(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.campaign(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, "invalid task index")
		return
	}
	task, st, err := cc.Regenerate(r.Context(), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": st,
		"task":     task,
	})
}

func (h *CampaignHandler) SendHandler(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.campaign(w, r)
	if !ok {
		return
	}
	var settings mail.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	st, err := cc.SendAsync(r.Context(), settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (h *CampaignHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.campaign(w, r)
	if !ok {
		return
	}
	report, err := cc.Report()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": report,
		"results": cc.Jobs(),
	})
}

func (h *CampaignHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.campaign(w, r)
	if !ok {
		return
	}
	st, err := cc.Reset()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *CampaignHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.campaign(w, r)
	if !ok {
		return
	}
	st, err := cc.Cancel()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (h *CampaignHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) campaign(w http.ResponseWriter, r *http.Request) (*controller.CampaignController, bool) {
	cc, err := h.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return cc, true
}

// readUpload accepts either a multipart form with a "file" part (csv, txt or xlsx) and
// optional "mapping"/"template" JSON fields, or a JSON body {content, mapping, template}.
func readUpload(r *http.Request) (*contacts.List, campaignFields, error) {
	var fields campaignFields

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fields, uploadError("invalid multipart form", err)
		}
		for name, dst := range map[string]any{"mapping": &fields.Mapping, "template": &fields.Template} {
			if v := r.FormValue(name); v != "" {
				if err := json.Unmarshal([]byte(v), dst); err != nil {
					return nil, fields, uploadError("invalid "+name, err)
				}
			}
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, fields, uploadError("missing file", err)
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, fields, uploadError("read file", err)
		}
		list, err := contacts.LoadNamed(header.Filename, data)
		return list, fields, err
	}

	var body struct {
		Content string `json:"content"`
		campaignFields
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
		return nil, fields, uploadError("invalid request body", err)
	}
	list, err := contacts.Load(body.Content)
	return list, body.campaignFields, err
}

func uploadError(reason string, err error) error {
	return appErrors.NewParseErrorAt(0, reason, err)
}
