// Package model provides data models for the Compliance-X service.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList is a JSON-encoded list of strings stored in a text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for string list: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// JSONMap is a JSON-encoded map stored in a text column.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for metadata: %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// RuleSet is a named, versionable collection of regulatory rules.
type RuleSet struct {
	ID                  uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name                string    `json:"name" gorm:"size:255;not null;uniqueIndex:uk_rule_set_name"`
	Description         string    `json:"description" gorm:"type:text"`
	CreatedBy           string    `json:"created_by" gorm:"size:64;index:idx_rule_set_creator"`
	IsActive            bool      `json:"is_active" gorm:"default:true;index:idx_rule_set_active"`
	PreprocessingPrompt string    `json:"preprocessing_prompt,omitempty" gorm:"type:text"`
	Metadata            JSONMap   `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt           time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Rules []Rule `json:"rules,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for RuleSet.
func (RuleSet) TableName() string {
	return "rule_sets"
}

// Rule is a single regulatory rule within a rule set.
//
// A rule with a non-nil EffectiveEnd is superseded and excluded from default
// catalog views. For point-in-time queries at date D a rule is in force iff
// (EffectiveStart is nil or <= D) and (EffectiveEnd is nil or > D).
type Rule struct {
	ID               uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RuleSetID        uint64     `json:"rule_set_id" gorm:"not null;index;uniqueIndex:uk_rule_set_rule_number"`
	RuleNumber       string     `json:"rule_number" gorm:"size:64;not null;uniqueIndex:uk_rule_set_rule_number"`
	RuleTitle        string     `json:"rule_title" gorm:"size:255"`
	RuleText         string     `json:"rule_text" gorm:"type:text"`
	OriginalRuleText string     `json:"original_rule_text,omitempty" gorm:"type:text"`
	Summary          string     `json:"summary" gorm:"type:text"`
	Category         string     `json:"category" gorm:"size:64;index:idx_rule_category"`
	Keywords         StringList `json:"keywords,omitempty" gorm:"type:text"`
	Hierarchy        string     `json:"hierarchy,omitempty" gorm:"size:255"`
	EffectiveStart   *time.Time `json:"effective_start" gorm:"index:idx_rule_effective_start"`
	EffectiveEnd     *time.Time `json:"effective_end" gorm:"index:idx_rule_effective_end"`
	IsCurrent        bool       `json:"is_current" gorm:"default:true;index:idx_rule_current"`
	Metadata         JSONMap    `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Rule.
func (Rule) TableName() string {
	return "rules"
}

// InForceAt reports whether the rule is effective at the given date.
func (r *Rule) InForceAt(d time.Time) bool {
	if r.EffectiveStart != nil && r.EffectiveStart.After(d) {
		return false
	}
	if r.EffectiveEnd != nil && !r.EffectiveEnd.After(d) {
		return false
	}
	return true
}

// RuleDigest is the lightweight catalog entry used for paragraph classification.
// It carries just enough for the classification oracle to pick applicable rules
// without shipping full rule texts.
type RuleDigest struct {
	Number         string     `json:"number"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	Category       string     `json:"category"`
	Hierarchy      string     `json:"hierarchy,omitempty"`
	EffectiveStart *time.Time `json:"effective_start,omitempty"`
	EffectiveEnd   *time.Time `json:"effective_end,omitempty"`
	IsCurrent      bool       `json:"is_current"`
}
