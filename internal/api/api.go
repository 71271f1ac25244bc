package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

// Handler serves the admin API over a vault service.
type Handler struct {
	Vaults sdk.VaultService
}

// Register mounts every route on the group.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/owners", h.GetOwners)
	r.GET("/owners/:owner/vaults", h.GetVaults)
	r.GET("/owners/:owner/vaults/:number", h.GetVault)
	r.GET("/owners/:owner/vaults/:number/overflow", h.GetOverflow)
	r.DELETE("/owners/:owner/vaults/:number", h.DeleteVault)
	r.DELETE("/owners/:owner/vaults", h.DeleteAll)
	r.GET("/lock", h.GetLock)
	r.PUT("/lock", h.SetLock)
	r.GET("/views", h.GetViews)
	r.GET("/diagnostics", h.GetDiagnostics)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sdk.ErrLocked):
		return http.StatusServiceUnavailable
	case errors.Is(err, sdk.ErrInvalidNumber), errors.Is(err, sdk.ErrInvalidOwner):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func vaultNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": sdk.ErrInvalidNumber.Error()})
		return 0, false
	}
	return n, true
}

func (h *Handler) GetOwners(c *gin.Context) {
	owners, err := h.Vaults.ListOwners()
	if err != nil {
		fail(c, err)
		return
	}
	if owners == nil {
		owners = []string{}
	}
	c.JSON(http.StatusOK, owners)
}

func (h *Handler) GetVaults(c *gin.Context) {
	numbers, err := h.Vaults.ListVaultNumbers(c.Param("owner"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, numbers)
}

func (h *Handler) GetVault(c *gin.Context) {
	number, ok := vaultNumber(c)
	if !ok {
		return
	}
	owner := c.Param("owner")
	exists, err := h.Vaults.Exists(owner, number)
	if err != nil {
		fail(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": sdk.ErrNotFound.Error()})
		return
	}
	snap, err := h.Vaults.Snapshot(owner, number)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sdk.VaultContents{
		Owner:  snap.Key().Owner,
		Number: number,
		Size:   snap.Size(),
		Slots:  snap.Contents(),
	})
}

func (h *Handler) GetOverflow(c *gin.Context) {
	number, ok := vaultNumber(c)
	if !ok {
		return
	}
	entries, err := h.Vaults.Overflow(c.Param("owner"), number)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) DeleteVault(c *gin.Context) {
	number, ok := vaultNumber(c)
	if !ok {
		return
	}
	if err := h.Vaults.Delete(c.Param("owner"), number); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) DeleteAll(c *gin.Context) {
	if err := h.Vaults.DeleteAll(c.Param("owner")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) GetLock(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"locked": h.Vaults.IsLocked()})
}

func (h *Handler) SetLock(c *gin.Context) {
	var input struct {
		Locked *bool `json:"locked" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.Vaults.SetLocked(*input.Locked)
	c.JSON(http.StatusOK, gin.H{"locked": *input.Locked})
}

func (h *Handler) GetViews(c *gin.Context) {
	c.JSON(http.StatusOK, h.Vaults.Views())
}

func (h *Handler) GetDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.Vaults.Diagnostics())
}
