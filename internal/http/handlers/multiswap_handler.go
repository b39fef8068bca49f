package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers/common"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

type MultiSwapHandler struct {
	chains *service.MultiSwapService
}

func NewMultiSwapHandler(chains *service.MultiSwapService) *MultiSwapHandler {
	return &MultiSwapHandler{chains: chains}
}

// Candidates GET /multiswaps/candidates
func (h *MultiSwapHandler) Candidates(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	candidates, err := h.chains.FindCandidates(c.Request.Context(), userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

// Propose POST /multiswaps
func (h *MultiSwapHandler) Propose(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}

	var req models.SwapChain
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid chain payload"))
		return
	}

	// The proposer must be part of the chain they propose.
	member := false
	for _, p := range req.Participants {
		if p.UserID == userID {
			member = true
			break
		}
	}
	if !member {
		common.Fail(c, apperror.New(apperror.ErrCodeUnauthorizedActor, "proposer is not part of the chain"))
		return
	}

	ms, err := h.chains.ProposeChain(c.Request.Context(), req)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, ms)
}

// Get GET /multiswaps/:id
func (h *MultiSwapHandler) Get(c *gin.Context) {
	if _, err := common.CurrentUserID(c); err != nil {
		common.Fail(c, err)
		return
	}
	multiSwapID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	ms, participants, err := h.chains.GetChain(c.Request.Context(), multiSwapID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"multi_swap": ms, "participants": participants})
}

// Confirm POST /multiswaps/:id/confirm
func (h *MultiSwapHandler) Confirm(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.Fail(c, err)
		return
	}
	multiSwapID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.Fail(c, err)
		return
	}

	ms, err := h.chains.Confirm(c.Request.Context(), multiSwapID, userID)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ms)
}
