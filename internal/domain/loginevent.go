package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	LoginEventLogin          = "login"
	LoginEventLogout         = "logout"
	LoginEventFailedLogin    = "failed_login"
	LoginEventPasswordChange = "password_change"
)

// LoginEvent is a flat row in the user activity log.
type LoginEvent struct {
	UID       string
	Email     string
	Role      string
	Event     string
	IPAddress string
	Timestamp time.Time
}

func (e LoginEvent) Validate() error {
	if strings.TrimSpace(e.Email) == "" {
		return errors.New("email is required")
	}
	switch e.Event {
	case LoginEventLogin, LoginEventLogout, LoginEventFailedLogin, LoginEventPasswordChange:
		return nil
	default:
		return fmt.Errorf("unknown login event: %q", e.Event)
	}
}
