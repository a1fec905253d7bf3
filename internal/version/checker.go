package version

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// UpdateAvailableMsg is sent when a new version is available.
type UpdateAvailableMsg struct {
	CurrentVersion string
	LatestVersion  string
	UpdateCommand  string
}

// CheckAsync returns a Bubble Tea command that checks for updates in the
// background. It yields nil when up to date or on error.
func CheckAsync(ctx context.Context, currentVersion string) tea.Cmd {
	return func() tea.Msg {
		result := CachedCheck(func(current string) CheckResult {
			return Check(ctx, current)
		}, currentVersion)
		if !result.HasUpdate {
			return nil
		}
		return UpdateAvailableMsg{
			CurrentVersion: currentVersion,
			LatestVersion:  result.LatestVersion,
			UpdateCommand:  UpdateCommand(result.LatestVersion),
		}
	}
}
