package team

import (
	"context"

	"github.com/Sternrassler/teamadmin/pkg/client"
)

// Team folder endpoints.
const (
	EndpointTeamFolderCreate       = "team/team_folder/create"
	EndpointTeamFolderActivate     = "team/team_folder/activate"
	EndpointTeamFolderArchive      = "team/team_folder/archive"
	EndpointTeamFolderSyncSettings = "team/team_folder/update_sync_settings"
)

// Team folder sync settings.
const (
	SyncDefault   = "default"
	SyncNotSynced = "not_synced"
)

// CreateTeamFolder creates a team folder named name.
func CreateTeamFolder(ctx context.Context, api API, name string) (TeamFolder, error) {
	if name == "" {
		return TeamFolder{}, client.NewConfigError("team folder name is required")
	}
	var w wireTeamFolder
	if err := api.Call(ctx, EndpointTeamFolderCreate, map[string]string{"name": name}, &w); err != nil {
		return TeamFolder{}, err
	}
	return w.folder(EndpointTeamFolderCreate)
}

// SetTeamFolderStatus activates (active=true) or archives a team folder.
// An archive that the provider runs asynchronously returns the folder with
// Status "archive_in_progress".
func SetTeamFolderStatus(ctx context.Context, api API, folderID string, active bool) (TeamFolder, error) {
	if folderID == "" {
		return TeamFolder{}, client.NewConfigError("team folder id is required")
	}

	if active {
		var w wireTeamFolder
		if err := api.Call(ctx, EndpointTeamFolderActivate, map[string]string{"team_folder_id": folderID}, &w); err != nil {
			return TeamFolder{}, err
		}
		return w.folder(EndpointTeamFolderActivate)
	}

	var w wireArchiveLaunch
	body := map[string]any{"team_folder_id": folderID, "force_async_off": false}
	if err := api.Call(ctx, EndpointTeamFolderArchive, body, &w); err != nil {
		return TeamFolder{}, err
	}
	if w.Tag == "async_job_id" {
		return TeamFolder{ID: folderID, Status: "archive_in_progress"}, nil
	}
	return w.folder(EndpointTeamFolderArchive)
}

// SetTeamFolderSync sets the default sync setting of a team folder: synced
// (SyncDefault) when enabled, SyncNotSynced otherwise.
func SetTeamFolderSync(ctx context.Context, api API, folderID string, enabled bool) (TeamFolder, error) {
	if folderID == "" {
		return TeamFolder{}, client.NewConfigError("team folder id is required")
	}
	setting := SyncNotSynced
	if enabled {
		setting = SyncDefault
	}
	body := map[string]any{
		"team_folder_id": folderID,
		"sync_setting":   tag{Tag: setting},
	}
	var w wireTeamFolder
	if err := api.Call(ctx, EndpointTeamFolderSyncSettings, body, &w); err != nil {
		return TeamFolder{}, err
	}
	return w.folder(EndpointTeamFolderSyncSettings)
}
