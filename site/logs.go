package site

import (
	"context"

	"sitemanager/snapshot"
	"sitemanager/store"
	"sitemanager/validation"
)

// Site log categories.
const (
	LogNote     = "NOTE"
	LogProgress = "PROGRESS"
	LogIncident = "INCIDENT"
	LogWeather  = "WEATHER"
)

type SiteLogInput struct {
	Category string `json:"category" validate:"required,oneof=NOTE PROGRESS INCIDENT WEATHER"`
	Content  string `json:"content" validate:"required,max=2000"`
}

// AddSiteLog writes a journal entry for the active project.
func (s *Service) AddSiteLog(ctx context.Context, in SiteLogInput) (*store.SiteLog, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	projectID, err := s.project()
	if err != nil {
		return nil, err
	}
	row, err := s.gw.CreateSiteLog(ctx, projectID, in.Category, in.Content)
	if err != nil {
		return nil, err
	}
	l := snapshot.SiteLog(*row)
	if err := s.db.PutSiteLog(l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Service) SiteLogs(limit int) ([]store.SiteLog, error) {
	projectID, err := s.project()
	if err != nil {
		return nil, err
	}
	return s.db.ListSiteLogs(projectID, limit)
}
