package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// openAIModel is a single entry in the OpenAI-shaped `/v1/models` list.
type openAIModel struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	OwnedBy     string `json:"owned_by"`
	Description string `json:"description,omitempty"`
}

// ListModels handles `GET /v1/models`, returning the current model cache
// in OpenAI's `{object:"list", data:[...]}`` shape.
func (s *State) ListModels(c *gin.Context) {
	ids := s.ModelCache.AllModelIDs()
	data := make([]openAIModel, 0, len(ids))
	for _, id := range ids {
		data = append(data, openAIModel{
			ID:          id,
			Object:      "model",
			OwnedBy:     "anthropic",
			Description: "Claude model via Kiro API",
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   data,
	})
}
