// SPDX-License-Identifier: MIT

// Package model defines the domain entities served by the data API and
// their wire representations.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// TimestampFormat is the wire format for registerAt/updateAt. The legacy
// API rendered local time without a zone designator; kept for
// compatibility.
const TimestampFormat = "2006-01-02T15:04:05"

// Point is a WGS84 coordinate stored as a PostGIS geometry(Point,4326).
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks coordinate bounds.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", p.Lon)
	}
	return nil
}

// Occurrence is a registered urban occurrence record.
type Occurrence struct {
	ID          int64
	TypeTag     string
	Description *string
	Resume      string
	Active      bool
	Location    *Point
	RegisterAt  time.Time
	UpdateAt    time.Time
}

// OccurrenceView is the JSON representation of an Occurrence. IDs are
// serialized as strings and timestamps in the configured display zone.
type OccurrenceView struct {
	ID          string  `json:"id"`
	TypeTag     string  `json:"typeTag"`
	Description *string `json:"description"`
	Resume      string  `json:"resume"`
	Active      bool    `json:"active"`
	Location    *Point  `json:"location,omitempty"`
	RegisterAt  string  `json:"registerAt"`
	UpdateAt    string  `json:"updateAt"`
}

// View renders the occurrence for the wire, shifting timestamps into loc.
func (o Occurrence) View(loc *time.Location) OccurrenceView {
	return OccurrenceView{
		ID:          strconv.FormatInt(o.ID, 10),
		TypeTag:     o.TypeTag,
		Description: o.Description,
		Resume:      o.Resume,
		Active:      o.Active,
		Location:    o.Location,
		RegisterAt:  o.RegisterAt.In(loc).Format(TimestampFormat),
		UpdateAt:    o.UpdateAt.In(loc).Format(TimestampFormat),
	}
}

// OccurrenceCreate is the POST /occurrence payload.
type OccurrenceCreate struct {
	TypeTag     string  `json:"typeTag"`
	Description *string `json:"description"`
	Resume      string  `json:"resume"`
	Active      *bool   `json:"active"`
	Location    *Point  `json:"location"`
}

// Validate enforces required fields and coordinate bounds.
func (p OccurrenceCreate) Validate() error {
	var errs []error
	if p.TypeTag == "" {
		errs = append(errs, errors.New("typeTag is required"))
	}
	if p.Resume == "" {
		errs = append(errs, errors.New("resume is required"))
	}
	if p.Location != nil {
		if err := p.Location.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Occurrence materializes the payload into a domain entity. Timestamps are
// set server-side.
func (p OccurrenceCreate) Occurrence(now time.Time) Occurrence {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return Occurrence{
		TypeTag:     p.TypeTag,
		Description: p.Description,
		Resume:      p.Resume,
		Active:      active,
		Location:    p.Location,
		RegisterAt:  now,
		UpdateAt:    now,
	}
}

// OccurrenceUpdate is the PUT /occurrence/{id} payload. Nil fields are left
// unchanged.
type OccurrenceUpdate struct {
	TypeTag     *string `json:"typeTag"`
	Description *string `json:"description"`
	Resume      *string `json:"resume"`
	Active      *bool   `json:"active"`
	Location    *Point  `json:"location"`
}

// Validate rejects empty updates and malformed fields.
func (p OccurrenceUpdate) Validate() error {
	if p.TypeTag == nil && p.Description == nil && p.Resume == nil && p.Active == nil && p.Location == nil {
		return errors.New("update payload is empty")
	}
	var errs []error
	if p.TypeTag != nil && *p.TypeTag == "" {
		errs = append(errs, errors.New("typeTag must not be empty"))
	}
	if p.Resume != nil && *p.Resume == "" {
		errs = append(errs, errors.New("resume must not be empty"))
	}
	if p.Location != nil {
		if err := p.Location.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply merges the update into occ and bumps updateAt.
func (p OccurrenceUpdate) Apply(occ *Occurrence, now time.Time) {
	if p.TypeTag != nil {
		occ.TypeTag = *p.TypeTag
	}
	if p.Description != nil {
		occ.Description = p.Description
	}
	if p.Resume != nil {
		occ.Resume = *p.Resume
	}
	if p.Active != nil {
		occ.Active = *p.Active
	}
	if p.Location != nil {
		occ.Location = p.Location
	}
	occ.UpdateAt = now
}

// OccurrenceFilter narrows list queries.
type OccurrenceFilter struct {
	TypeTag string
	Limit   int
	Offset  int
}
