package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"reminderd/internal/channel"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func (a *api) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, reminder.ErrInvalidInterval):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid interval. Must be between 1 and 1440 minutes (24 hours)"})
	case errors.Is(err, reminder.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "No water reminder found"})
	default:
		a.log.Error(op+" failed", logx.String("user_id", userID(c)), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	}
}

type setRequest struct {
	IntervalMinutes int `json:"intervalMinutes"`
}

func (a *api) setReminder(c *gin.Context) {
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "intervalMinutes must be a number"})
		return
	}
	st, err := a.Reminders.Set(c.Request.Context(), userID(c), req.IntervalMinutes)
	if err != nil {
		a.fail(c, "set reminder", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Water reminder set successfully", "reminder": st})
}

func (a *api) reminderStatus(c *gin.Context) {
	st, err := a.Reminders.Status(c.Request.Context(), userID(c))
	if errors.Is(err, reminder.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"isActive": false, "message": "No water reminder set"})
		return
	}
	if err != nil {
		a.fail(c, "reminder status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *api) toggleReminder(c *gin.Context) {
	st, err := a.Reminders.Toggle(c.Request.Context(), userID(c))
	if err != nil {
		a.fail(c, "toggle reminder", err)
		return
	}
	msg := "Water reminder paused"
	if st.IsActive {
		msg = "Water reminder resumed"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "isActive": st.IsActive, "nextNotificationTime": st.NextNotificationTime})
}

func (a *api) removeReminder(c *gin.Context) {
	if err := a.Reminders.Remove(c.Request.Context(), userID(c)); err != nil {
		a.fail(c, "remove reminder", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Water reminder removed successfully"})
}

func (a *api) drink(c *gin.Context) {
	st, err := a.Reminders.RecordManualDrink(c.Request.Context(), userID(c))
	if err != nil {
		a.fail(c, "record drink", err)
		return
	}
	out := gin.H{"message": "Water intake logged! Timer reset."}
	if st != nil {
		out["nextNotificationTime"] = st.NextNotificationTime
	}
	c.JSON(http.StatusOK, out)
}

type subscribeRequest struct {
	// Token is the device token from FCM/APNs.
	Token string `json:"token"`
}

func (a *api) subscribe(c *gin.Context) {
	if a.Devices == nil || a.Users == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Push notifications not configured"})
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "token is required"})
		return
	}
	ctx := c.Request.Context()
	endpoint, err := a.Devices.RegisterDevice(ctx, req.Token)
	if errors.Is(err, channel.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Push notifications not configured"})
		return
	}
	if err != nil {
		a.fail(c, "register device", err)
		return
	}
	uid := userID(c)
	err = a.Users.SetPushEndpoint(ctx, uid, endpoint)
	if errors.Is(err, storage.ErrNotFound) {
		err = a.Users.UpsertUser(ctx, storage.User{ID: uid, PushEndpoint: endpoint})
	}
	if err != nil {
		a.fail(c, "save push endpoint", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push subscription saved", "endpoint": endpoint})
}

func (a *api) unsubscribe(c *gin.Context) {
	if a.Users == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Push notifications not configured"})
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)
	u, err := a.Users.GetUser(ctx, uid)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.fail(c, "load user", err)
		return
	}
	if a.Devices != nil && u.PushEndpoint != "" {
		if err := a.Devices.UnregisterDevice(ctx, u.PushEndpoint); err != nil {
			a.log.Warn("push endpoint delete failed", logx.String("user_id", uid), logx.Err(err))
		}
	}
	if err := a.Users.SetPushEndpoint(ctx, uid, ""); err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.fail(c, "clear push endpoint", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push subscription removed"})
}

type contactRequest struct {
	Username       *string `json:"username"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	TelegramChatID *int64  `json:"telegramChatId"`
}

// updateContact patches the fields present in the body.
func (a *api) updateContact(c *gin.Context) {
	if a.Users == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "user directory not configured"})
		return
	}
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)
	u, err := a.Users.GetUser(ctx, uid)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		u = storage.User{ID: uid}
	case err != nil:
		a.fail(c, "load user", err)
		return
	}
	if req.Username != nil {
		u.Username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		e := strings.TrimSpace(*req.Email)
		if e != "" && !strings.Contains(e, "@") {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid email"})
			return
		}
		u.Email = e
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.TelegramChatID != nil {
		u.TelegramChatID = *req.TelegramChatID
	}
	if err := a.Users.UpsertUser(ctx, u); err != nil {
		a.fail(c, "save user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *api) deliveries(c *gin.Context) {
	if a.Users == nil {
		c.JSON(http.StatusOK, []storage.DeliveryEntry{})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	out, err := a.Users.ListDeliveries(c.Request.Context(), userID(c), limit)
	if err != nil {
		a.fail(c, "list deliveries", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) websocket(c *gin.Context) {
	// Serve writes its own handshake error response.
	if err := a.Realtime.Serve(c.Request.Context(), c.Writer, c.Request, userID(c)); err != nil {
		a.log.Debug("websocket upgrade failed", logx.Err(err))
	}
}

func (a *api) listChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": a.Dispatch.Channels()})
}

// updateChannels takes a partial map like {"email": true, "sms": false}.
func (a *api) updateChannels(c *gin.Context) {
	var req map[string]bool
	if err := c.ShouldBindJSON(&req); err != nil || len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "body must map channel names to booleans"})
		return
	}
	for name := range req {
		known := false
		for _, n := range channel.Names {
			if n == name {
				known = true
				break
			}
		}
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"message": "unknown channel " + strconv.Quote(name)})
			return
		}
	}
	for _, name := range channel.Names {
		on, ok := req[name]
		if !ok {
			continue
		}
		if _, err := a.Dispatch.SetChannel(name, on); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"channels": a.Dispatch.Channels()})
}

type testRequest struct {
	UserID string `json:"userId"`
}

func (a *api) testChannels(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "userId is required"})
		return
	}
	c.JSON(http.StatusOK, a.Dispatch.Test(c.Request.Context(), strings.TrimSpace(req.UserID)))
}

func (a *api) recentReports(c *gin.Context) {
	c.JSON(http.StatusOK, a.Dispatch.History())
}
