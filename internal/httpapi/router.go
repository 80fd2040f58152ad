package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"reminderd/internal/notifier"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// Reminders is the scheduler surface used by the API.
type Reminders interface {
	Set(ctx context.Context, userID string, intervalMinutes int) (reminder.Status, error)
	Status(ctx context.Context, userID string) (reminder.Status, error)
	Toggle(ctx context.Context, userID string) (reminder.Status, error)
	Remove(ctx context.Context, userID string) error
	RecordManualDrink(ctx context.Context, userID string) (*reminder.Status, error)
}

// Dispatch is the admin surface of the notifier.
type Dispatch interface {
	Channels() []notifier.ChannelStatus
	SetChannel(name string, on bool) (notifier.Flags, error)
	Test(ctx context.Context, userID string) notifier.Report
	History() []notifier.Report
}

type Users interface {
	GetUser(ctx context.Context, userID string) (storage.User, error)
	UpsertUser(ctx context.Context, u storage.User) error
	SetPushEndpoint(ctx context.Context, userID, endpoint string) error
	ListDeliveries(ctx context.Context, userID string, limit int) ([]storage.DeliveryEntry, error)
}

// Devices registers push tokens with the provider.
type Devices interface {
	RegisterDevice(ctx context.Context, token string) (string, error)
	UnregisterDevice(ctx context.Context, endpoint string) error
}

type Realtime interface {
	Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) error
	Count() int
}

type Deps struct {
	Reminders  Reminders
	Dispatch   Dispatch
	Users      Users
	Devices    Devices
	Realtime   Realtime
	Metrics    http.Handler
	JWTSecret  string
	AdminToken string
	Pprof      bool
	// Runtime, when set, backs GET /api/admin/runtime.
	Runtime    func() any
	Log        logx.Logger
}

type api struct {
	Deps
	log logx.Logger
}

// NewRouter builds the gin engine. gin's global mode must be set by the caller.
func NewRouter(d Deps) *gin.Engine {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	a := &api{Deps: d, log: d.Log.With(logx.String("comp", "http"))}

	r := gin.New()
	r.Use(a.recovery(), a.accessLog())

	r.GET("/api/health", a.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	auth := RequireUser([]byte(d.JWTSecret))

	wr := r.Group("/api/water-reminder", auth)
	wr.POST("/set", a.setReminder)
	wr.GET("/status", a.reminderStatus)
	wr.PATCH("/toggle", a.toggleReminder)
	wr.DELETE("/remove", a.removeReminder)
	wr.POST("/drink", a.drink)

	push := r.Group("/api/push", auth)
	push.POST("/subscribe", a.subscribe)
	push.POST("/unsubscribe", a.unsubscribe)

	me := r.Group("/api/me", auth)
	me.PUT("/contact", a.updateContact)
	me.GET("/deliveries", a.deliveries)

	if d.Realtime != nil {
		r.GET("/ws", auth, a.websocket)
	}

	admin := r.Group("/api/admin", RequireAdmin(d.AdminToken))
	admin.GET("/channels", a.listChannels)
	admin.PUT("/channels", a.updateChannels)
	admin.POST("/channels/test", a.testChannels)
	admin.GET("/deliveries", a.recentReports)
	if d.Runtime != nil {
		admin.GET("/runtime", func(c *gin.Context) { c.JSON(http.StatusOK, d.Runtime()) })
	}
	if d.Pprof {
		mountPprof(admin.Group("/debug/pprof"))
	}
	return r
}

func (a *api) health(c *gin.Context) {
	out := gin.H{"status": "ok", "time": time.Now().UTC()}
	if a.Realtime != nil {
		out["connectedUsers"] = a.Realtime.Count()
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, p any) {
		a.log.Error("handler panicked",
			logx.String("path", c.FullPath()),
			logx.Any("panic", p),
			logx.Stack(logx.StackTrace(3, 32)),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	})
}

func (a *api) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", status),
			logx.Duration("took", time.Since(start)),
		}
		if uid := userID(c); uid != "" {
			fields = append(fields, logx.String("user_id", uid))
		}
		if status >= http.StatusInternalServerError {
			a.log.Warn("request failed", fields...)
			return
		}
		a.log.Debug("request", fields...)
	}
}
