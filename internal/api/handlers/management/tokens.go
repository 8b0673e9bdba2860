package management

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// ListAuthFiles lists the stored token files with their probed metadata.
func (h *Handler) ListAuthFiles(c *gin.Context) {
	records, err := h.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to read auth dir: %v", err)})
		return
	}
	files := make([]gin.H, 0, len(records))
	for _, record := range records {
		files = append(files, gin.H{
			"name":     filepath.Base(record.Path),
			"type":     record.Provider,
			"email":    record.Email,
			"expired":  record.Expired,
			"disabled": record.Disabled,
			"modtime":  record.ModTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// DownloadAuthFile returns a single token file by name.
func (h *Handler) DownloadAuthFile(c *gin.Context) {
	name, ok := h.tokenFileName(c)
	if !ok {
		return
	}
	data, err := h.store.Read(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to read file: %v", err)})
		}
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/json", data)
}

// UploadAuthFile stores raw token JSON under the given name.
func (h *Handler) UploadAuthFile(c *gin.Context) {
	name, ok := h.tokenFileName(c)
	if !ok {
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if err = h.store.Write(name, data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to write file: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SetAuthFileDisabled flips the disabled flag on a token file, taking it out
// of or returning it to credential selection.
func (h *Handler) SetAuthFileDisabled(c *gin.Context) {
	var body struct {
		Name     string `json:"name"`
		Disabled *bool  `json:"disabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" || body.Disabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if strings.Contains(body.Name, string(os.PathSeparator)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
		return
	}
	if err := h.store.SetDisabled(body.Name, *body.Disabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to update file: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "disabled": *body.Disabled})
}

// DeleteAuthFile deletes a single token file by name, or every token file
// when all=true.
func (h *Handler) DeleteAuthFile(c *gin.Context) {
	if all := c.Query("all"); all == "true" || all == "1" || all == "*" {
		records, err := h.store.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to read auth dir: %v", err)})
			return
		}
		deleted := 0
		for _, record := range records {
			if err = h.store.Delete(record.Path); err == nil {
				deleted++
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "deleted": deleted})
		return
	}

	name, ok := h.tokenFileName(c)
	if !ok {
		return
	}
	if err := h.store.Delete(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to remove file: %v", err)})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetUsage returns the aggregated usage snapshot.
func (h *Handler) GetUsage(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "usage statistics not available"})
		return
	}
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

// tokenFileName validates the name query parameter for file endpoints.
func (h *Handler) tokenFileName(c *gin.Context) (string, bool) {
	name := c.Query("name")
	if name == "" || strings.Contains(name, string(os.PathSeparator)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(name), ".json") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must end with .json"})
		return "", false
	}
	return name, true
}
