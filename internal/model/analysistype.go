// SPDX-License-Identifier: MIT

package model

import (
	"errors"
	"strconv"
)

// AnalysisType is a catalog entry describing a kind of analysis that can be
// attached to occurrences.
type AnalysisType struct {
	ID          int64
	Name        string
	Tag         string
	Description *string
	Metadata    *string
	IsActive    bool
	Icon        string
}

// AnalysisTypeView is the JSON representation of an AnalysisType.
type AnalysisTypeView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Tag         string  `json:"tag"`
	Description *string `json:"description"`
	Metadata    *string `json:"metadata"`
	IsActive    bool    `json:"isActive"`
	Icon        string  `json:"icon"`
}

// View renders the analysis type for the wire.
func (a AnalysisType) View() AnalysisTypeView {
	return AnalysisTypeView{
		ID:          strconv.FormatInt(a.ID, 10),
		Name:        a.Name,
		Tag:         a.Tag,
		Description: a.Description,
		Metadata:    a.Metadata,
		IsActive:    a.IsActive,
		Icon:        a.Icon,
	}
}

// AnalysisTypeCreate is the POST /analysis-type payload.
type AnalysisTypeCreate struct {
	Name        string  `json:"name"`
	Tag         string  `json:"tag"`
	Description *string `json:"description"`
	Metadata    *string `json:"metadata"`
	IsActive    *bool   `json:"isActive"`
	Icon        string  `json:"icon"`
}

// Validate enforces required fields.
func (p AnalysisTypeCreate) Validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if p.Tag == "" {
		errs = append(errs, errors.New("tag is required"))
	}
	if p.Icon == "" {
		errs = append(errs, errors.New("icon is required"))
	}
	return errors.Join(errs...)
}

// AnalysisType materializes the payload into a domain entity.
func (p AnalysisTypeCreate) AnalysisType() AnalysisType {
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return AnalysisType{
		Name:        p.Name,
		Tag:         p.Tag,
		Description: p.Description,
		Metadata:    p.Metadata,
		IsActive:    active,
		Icon:        p.Icon,
	}
}

// AnalysisTypeUpdate is the PUT /analysis-type/{id} payload.
type AnalysisTypeUpdate struct {
	Name        *string `json:"name"`
	Tag         *string `json:"tag"`
	Description *string `json:"description"`
	Metadata    *string `json:"metadata"`
	IsActive    *bool   `json:"isActive"`
	Icon        *string `json:"icon"`
}

// Validate rejects empty updates and blank required fields.
func (p AnalysisTypeUpdate) Validate() error {
	if p.Name == nil && p.Tag == nil && p.Description == nil && p.Metadata == nil && p.IsActive == nil && p.Icon == nil {
		return errors.New("update payload is empty")
	}
	var errs []error
	if p.Name != nil && *p.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if p.Tag != nil && *p.Tag == "" {
		errs = append(errs, errors.New("tag must not be empty"))
	}
	if p.Icon != nil && *p.Icon == "" {
		errs = append(errs, errors.New("icon must not be empty"))
	}
	return errors.Join(errs...)
}

// Apply merges the update into at.
func (p AnalysisTypeUpdate) Apply(at *AnalysisType) {
	if p.Name != nil {
		at.Name = *p.Name
	}
	if p.Tag != nil {
		at.Tag = *p.Tag
	}
	if p.Description != nil {
		at.Description = p.Description
	}
	if p.Metadata != nil {
		at.Metadata = p.Metadata
	}
	if p.IsActive != nil {
		at.IsActive = *p.IsActive
	}
	if p.Icon != nil {
		at.Icon = *p.Icon
	}
}
