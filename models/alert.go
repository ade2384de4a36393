package models

import (
	"time"

	"gorm.io/gorm"
)

// AlertType identifies which quote field an alert watches.
type AlertType string

const (
	AlertTypePrice      AlertType = "price"
	AlertTypePercentage AlertType = "percentage"
	AlertTypeVolume     AlertType = "volume"
)

// Condition is the comparison applied between the current value and the target.
type Condition string

const (
	ConditionAbove        Condition = ">"
	ConditionBelow        Condition = "<"
	ConditionAboveOrEqual Condition = ">="
	ConditionBelowOrEqual Condition = "<="
)

// Alert represents a user-defined rule monitoring one ticker.
//
// Once Triggered flips to true it never reverts: the row is kept for history
// until retention cleanup and a new alert must be created to monitor again.
type Alert struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	User        User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Ticker      string     `gorm:"index;not null" json:"ticker"`
	AlertType   AlertType  `gorm:"not null" json:"alert_type"`
	Condition   Condition  `gorm:"not null" json:"condition"`
	TargetValue float64    `gorm:"not null" json:"target_value"`
	IsActive    bool       `gorm:"default:true" json:"is_active"`
	Triggered   bool       `gorm:"default:false" json:"triggered"`
	CreatedAt   time.Time  `json:"created_at"`
	TriggeredAt *time.Time `json:"triggered_at"`
}

// ValidAlertTypes returns the alert types accepted at creation
func ValidAlertTypes() []AlertType {
	return []AlertType{AlertTypePrice, AlertTypePercentage, AlertTypeVolume}
}

// ValidConditions returns the comparison operators accepted at creation
func ValidConditions() []Condition {
	return []Condition{ConditionAbove, ConditionBelow, ConditionAboveOrEqual, ConditionBelowOrEqual}
}

// Valid checks if the alert type is one of the supported values
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypePrice, AlertTypePercentage, AlertTypeVolume:
		return true
	}
	return false
}

// Label returns the human-readable label used in notifications
func (t AlertType) Label() string {
	switch t {
	case AlertTypePrice:
		return "Preço"
	case AlertTypePercentage:
		return "Variação"
	case AlertTypeVolume:
		return "Volume"
	}
	return string(t)
}

// Valid checks if the condition is one of the supported operators
func (c Condition) Valid() bool {
	switch c {
	case ConditionAbove, ConditionBelow, ConditionAboveOrEqual, ConditionBelowOrEqual:
		return true
	}
	return false
}

// MigrateAlertModels runs database migrations for alert-related models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(&Alert{})
}
