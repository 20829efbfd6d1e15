package views

import (
	"fmt"

	"draftline/internal/config"
	"draftline/internal/domain"
	"draftline/internal/repo"
)

// Tab is a named board view. Tabs are projections only: they filter what the
// workflow produced and never affect what an actor may do.
type Tab string

const (
	TabAll        Tab = "all"
	TabMyTasks    Tab = "my-tasks"
	TabRepository Tab = "repository"
	TabActivity   Tab = "activity-log"
)

func ValidTab(t Tab) bool {
	switch t {
	case TabAll, TabMyTasks, TabRepository, TabActivity:
		return true
	}
	return false
}

// Filters maps a project tab to repo filters for the acting user. The
// activity-log tab lists log entries, not projects; use repo.ListLogs for it.
func Filters(cfg *config.Config, tab Tab, actor domain.Actor) (repo.ProjectFilters, error) {
	var f repo.ProjectFilters
	lead := actor.Role == domain.RoleMarketingLead
	switch tab {
	case TabAll:
		if lead {
			f.ExcludeStatuses = cfg.Views.All.LeadExcludes
		} else {
			f.CreatorID = actor.ID
			f.ExcludeStatuses = cfg.Views.All.ProducerExcludes
		}
	case TabMyTasks:
		if lead {
			f.Statuses = cfg.Views.MyTasks.LeadStatuses
		} else {
			f.CreatorID = actor.ID
			f.Statuses = cfg.Views.MyTasks.ProducerStatuses
		}
	case TabRepository:
		f.Statuses = cfg.Views.Repository.Statuses
	default:
		return f, fmt.Errorf("tab %s does not list projects", tab)
	}
	return f, nil
}
