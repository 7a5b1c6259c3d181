package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/XANi/hassbridge/hass"
	"github.com/XANi/hassbridge/store"
	"github.com/XANi/hassbridge/vconnex"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConfigFlow is the credential step of an integration setup.
type ConfigFlow interface {
	StepUser(ctx context.Context, in *vconnex.UserInput) vconnex.FormResult
}

type DeviceLister interface {
	Devices(ctx context.Context, entryID string) ([]store.DeviceEntry, error)
}

type Config struct {
	Logger     *zap.SugaredLogger
	ListenAddr string
	Hub        *hass.Hub
	Entries    *hass.ConfigEntries
	Flow       ConfigFlow
	Devices    DeviceLister
}

type WebBackend struct {
	l   *zap.SugaredLogger
	r   *gin.Engine
	cfg *Config
}

type entityView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Platform    hass.Platform    `json:"platform"`
	DeviceClass hass.DeviceClass `json:"device_class,omitempty"`
	Device      string           `json:"device"`
	Available   bool             `json:"available"`
	State       string           `json:"state"`
	Attributes  map[string]any   `json:"attributes,omitempty"`
}

type entryView struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	Title  string `json:"title"`
}

func New(cfg Config, webFS fs.FS) (backend *WebBackend, err error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("missing logger")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("missing hub")
	}
	w := WebBackend{
		l:   cfg.Logger,
		cfg: &cfg,
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(w.l.Desugar(), time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(w.l.Desugar(), true))
	if webFS != nil {
		t, err := template.ParseFS(webFS, "templates/*.tmpl")
		if err != nil {
			return nil, fmt.Errorf("error loading templates: %w", err)
		}
		r.SetHTMLTemplate(t)
		static, err := fs.Sub(webFS, "static")
		if err != nil {
			return nil, fmt.Errorf("error loading static files: %w", err)
		}
		r.StaticFS("/s/", http.FS(static))
		r.GET("/", w.Index)
	}
	api := r.Group("/api")
	api.GET("/health", w.Health)
	api.GET("/entities", w.Entities)
	api.GET("/entities/:id", w.Entity)
	api.POST("/entities/:id/service", w.CallService)
	api.GET("/entries", w.ConfigEntries)
	api.DELETE("/entries/:id", w.RemoveEntry)
	api.POST("/flow/vconnex", w.VconnexFlow)
	api.GET("/devices", w.ListDevices)
	w.r = r
	return &w, nil
}

func (b *WebBackend) Handler() http.Handler {
	return b.r
}

func (b *WebBackend) Run() error {
	b.l.Infof("listening on %s", b.cfg.ListenAddr)
	return b.r.Run(b.cfg.ListenAddr)
}

func view(e hass.Entity) entityView {
	v := entityView{
		ID:          e.UniqueID(),
		Name:        e.Name(),
		Platform:    e.Platform(),
		DeviceClass: e.DeviceClass(),
		Device:      e.DeviceInfo().Name,
		Available:   e.Available(),
		State:       hass.StateUnknown,
	}
	if v.Available {
		st := e.State()
		v.State = st.State
		v.Attributes = st.Attributes
	}
	return v
}

func (b *WebBackend) entityViews() []entityView {
	entities := b.cfg.Hub.Entities()
	out := make([]entityView, 0, len(entities))
	for _, e := range entities {
		out = append(out, view(e))
	}
	return out
}

func (b *WebBackend) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.tmpl", gin.H{
		"entities": b.entityViews(),
		"entries":  b.entryViews(),
	})
}

func (b *WebBackend) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"entities": len(b.cfg.Hub.Entities()),
	})
}

func (b *WebBackend) Entities(c *gin.Context) {
	c.JSON(http.StatusOK, b.entityViews())
}

func (b *WebBackend) Entity(c *gin.Context) {
	e, ok := b.cfg.Hub.Entity(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": hass.ErrEntityNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, view(e))
}

func (b *WebBackend) CallService(c *gin.Context) {
	var call hass.ServiceCall
	if err := c.ShouldBindJSON(&call); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	err := b.cfg.Hub.CallService(c.Request.Context(), id, call)
	switch {
	case err == nil:
		if e, ok := b.cfg.Hub.Entity(id); ok {
			c.JSON(http.StatusOK, view(e))
			return
		}
		c.Status(http.StatusNoContent)
	case errors.Is(err, hass.ErrEntityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, hass.ErrServiceNotSupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		b.l.Warnf("service %s on %s failed: %s", call.Service, id, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// entryViews leaves entry data out, it carries credentials.
func (b *WebBackend) entryViews() []entryView {
	if b.cfg.Entries == nil {
		return nil
	}
	loaded := b.cfg.Entries.Loaded()
	out := make([]entryView, 0, len(loaded))
	for _, e := range loaded {
		out = append(out, entryView{ID: e.ID, Domain: e.Domain, Title: e.Title})
	}
	return out
}

func (b *WebBackend) ConfigEntries(c *gin.Context) {
	c.JSON(http.StatusOK, b.entryViews())
}

func (b *WebBackend) RemoveEntry(c *gin.Context) {
	if b.cfg.Entries == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "config entries disabled"})
		return
	}
	err := b.cfg.Entries.Remove(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, hass.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		b.l.Errorf("removing entry %s: %s", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// VconnexFlow runs the credential step and creates the entry when it passes.
// A failed step answers 400 with the form errors.
func (b *WebBackend) VconnexFlow(c *gin.Context) {
	if b.cfg.Flow == nil || b.cfg.Entries == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "config flow disabled"})
		return
	}
	var in vconnex.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := b.cfg.Flow.StepUser(c.Request.Context(), &in)
	if res.Entry == nil {
		c.JSON(http.StatusBadRequest, res)
		return
	}
	entry := hass.NewConfigEntry(vconnex.Domain, res.Entry.Title, res.Entry.Data)
	if err := b.cfg.Entries.Add(c.Request.Context(), entry); err != nil {
		b.l.Errorf("adding entry %s: %s", entry.Title, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entryView{ID: entry.ID, Domain: entry.Domain, Title: entry.Title})
}

func (b *WebBackend) ListDevices(c *gin.Context) {
	if b.cfg.Devices == nil {
		c.JSON(http.StatusOK, []store.DeviceEntry{})
		return
	}
	devices, err := b.cfg.Devices.Devices(c.Request.Context(), c.Query("entry_id"))
	if err != nil {
		b.l.Errorf("listing devices: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}
