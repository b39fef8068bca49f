package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	repocommon "github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

type TrustHandler struct {
	trust *service.TrustRiskModel
	users UserReader
}

// UserReader is the single read the trust endpoint needs.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

func NewTrustHandler(trust *service.TrustRiskModel, users UserReader) *TrustHandler {
	return &TrustHandler{trust: trust, users: users}
}

// Profile GET /trust/profile?value=1000
// Returns the caller's risk profile for a hypothetical swap value.
func (h *TrustHandler) Profile(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	value, _ := strconv.ParseInt(c.DefaultQuery("value", "0"), 10, 64)
	if value < 0 {
		common.Fail(c, apperror.New(apperror.ErrCodeValidation, "value must not be negative"))
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repocommon.ErrNotFound) {
			common.Fail(c, apperror.ErrUserNotFound)
			return
		}
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeInternal, "load user failed"))
		return
	}

	profile := h.trust.ProfileFor(user, value)
	c.JSON(http.StatusOK, gin.H{
		"trust_score":    user.TrustScore,
		"profile":        profile,
		"deposit_amount": h.trust.DepositAmount(user.TrustScore, value),
	})
}
