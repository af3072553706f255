package api

import (
	"net/http"

	"github.com/snarg/vcon-wtf/internal/transcribe"
	"github.com/snarg/vcon-wtf/internal/wtf"
)

// ModelLister lists the models clients may request.
type ModelLister interface {
	List() []transcribe.ModelInfo
}

type ModelListResponse struct {
	Object string                 `json:"object"`
	Data   []transcribe.ModelInfo `json:"data"`
}

// ListModels handles GET /v1/models.
func ListModels(models ModelLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := models.List()
		if data == nil {
			data = []transcribe.ModelInfo{}
		}
		WriteJSON(w, http.StatusOK, ModelListResponse{Object: "list", Data: data})
	}
}

// WTFSchema handles GET /v1/schemas/wtf.
func WTFSchema(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, wtf.Schema())
}
