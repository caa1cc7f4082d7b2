package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domain "github.com/noni/smptweaks/internal/domain/progression"
	"github.com/noni/smptweaks/internal/http/response"
	"github.com/noni/smptweaks/internal/progression"
)

// PlayerReader is the read side of the progression manager.
type PlayerReader interface {
	Active(playerID uuid.UUID) (*domain.Record, bool)
	Load(ctx context.Context, playerID uuid.UUID) progression.Result[*domain.Record]
}

type ProgressionHandler struct {
	players PlayerReader
	curve   progression.Curve
}

func NewProgressionHandler(players PlayerReader, curve progression.Curve) *ProgressionHandler {
	return &ProgressionHandler{players: players, curve: curve}
}

type playerView struct {
	PlayerID          string     `json:"player_id"`
	DisplayName       string     `json:"display_name"`
	Online            bool       `json:"online"`
	Level             int        `json:"level"`
	TotalXP           int        `json:"total_xp"`
	XPIntoLevel       int        `json:"xp_into_level"`
	XPToNextLevel     int        `json:"xp_to_next_level"`
	DisplayMode       string     `json:"display_mode"`
	Progress          string     `json:"progress,omitempty"`
	LastRewardClaimed *time.Time `json:"last_reward_claimed,omitempty"`
	LastSpecialDrop   *time.Time `json:"last_special_drop,omitempty"`
}

// GET /api/players/:id
func (h *ProgressionHandler) GetPlayer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_player_id", err)
		return
	}

	rec, online := h.players.Active(id)
	if !online {
		res := h.players.Load(c.Request.Context(), id)
		switch {
		case res.Degraded():
			response.RespondError(c, http.StatusServiceUnavailable, "degraded", res.Reason)
			return
		case res.Reason != nil:
			response.RespondError(c, http.StatusInternalServerError, "load_failed", errors.New("could not read progression"))
			return
		case res.Value == nil:
			response.RespondError(c, http.StatusNotFound, "player_not_found", nil)
			return
		}
		rec = res.Value
	}

	p := h.curve.Progress(rec.TotalXP)
	response.RespondOK(c, playerView{
		PlayerID:          rec.PlayerID.String(),
		DisplayName:       rec.DisplayName,
		Online:            online,
		Level:             rec.Level,
		TotalXP:           rec.TotalXP,
		XPIntoLevel:       p.Into,
		XPToNextLevel:     p.Needed,
		DisplayMode:       rec.XPDisplayMode.String(),
		Progress:          progression.FormatProgress(rec.XPDisplayMode, p),
		LastRewardClaimed: rec.LastRewardClaimedAt,
		LastSpecialDrop:   rec.LastSpecialDropAt,
	})
}
