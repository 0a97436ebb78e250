package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Tickarr/internal/mask"
	"github.com/mescon/Tickarr/internal/widget"
)

var fieldNames = map[mask.Field]string{
	mask.Hours:   "hours",
	mask.Minutes: "minutes",
	mask.Seconds: "seconds",
}

type presetResponse struct {
	Name    string         `json:"name"`
	Options widget.Options `json:"options"`
	// Fields lists what the effective mask displays, e.g. ["minutes","seconds"].
	Fields []string `json:"fields"`
}

func maskFields(opts widget.Options) []string {
	source := mask.Default
	if opts.Mask != nil {
		source = *opts.Mask
	}
	out := []string{}
	for _, f := range mask.Compile(source).Fields() {
		out = append(out, fieldNames[f])
	}
	return out
}

func (s *RESTServer) getPresets(c *gin.Context) {
	defaults := s.board.Defaults()
	presets := s.board.Presets()

	out := make([]presetResponse, 0, len(presets))
	for _, name := range s.board.PresetNames() {
		opts := presets[name]
		out = append(out, presetResponse{
			Name:    name,
			Options: opts,
			Fields:  maskFields(defaults.Overlay(opts)),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"defaults": defaults,
		"presets":  out,
	})
}
