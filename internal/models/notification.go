package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Notification is a single validation violation tagged with the field it concerns.
type Notification struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// Notifiable collects notifications produced by validation.
// Embed it in entities that validate themselves.
type Notifiable struct {
	notifications []Notification
}

func (n *Notifiable) AddNotification(key, message string) {
	n.notifications = append(n.notifications, Notification{Key: key, Message: message})
}

func (n *Notifiable) AddNotifications(notifications []Notification) {
	n.notifications = append(n.notifications, notifications...)
}

// Notifications returns a copy of the collected notifications.
func (n *Notifiable) Notifications() []Notification {
	out := make([]Notification, len(n.notifications))
	copy(out, n.notifications)
	return out
}

// IsValid reports whether no notification has been recorded.
func (n *Notifiable) IsValid() bool {
	return len(n.notifications) == 0
}

// Contract accumulates notifications for a set of rules. Every rule is
// evaluated; a failing rule never stops the ones after it.
type Contract struct {
	Notifiable
}

// Requires starts a new contract.
func Requires() *Contract {
	return &Contract{}
}

// IsNotBlank fails when value is empty or whitespace only.
func (c *Contract) IsNotBlank(value, key, message string) *Contract {
	if strings.TrimSpace(value) == "" {
		c.AddNotification(key, message)
	}
	return c
}

func (c *Contract) IsTrue(cond bool, key, message string) *Contract {
	if !cond {
		c.AddNotification(key, message)
	}
	return c
}

// IsGreaterThan fails unless value > comparer.
func (c *Contract) IsGreaterThan(value, comparer decimal.Decimal, key, message string) *Contract {
	if !value.GreaterThan(comparer) {
		c.AddNotification(key, message)
	}
	return c
}

// IsGreaterOrEqual fails unless value >= comparer.
func (c *Contract) IsGreaterOrEqual(value, comparer decimal.Decimal, key, message string) *Contract {
	if !value.GreaterThanOrEqual(comparer) {
		c.AddNotification(key, message)
	}
	return c
}
