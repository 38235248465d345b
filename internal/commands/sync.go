package commands

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/strideworks/stridesync/internal/app"
	"github.com/strideworks/stridesync/internal/config"
	"github.com/strideworks/stridesync/internal/loggy"
	"github.com/strideworks/stridesync/internal/sync"
	"github.com/strideworks/stridesync/internal/utils"
)

// SyncCommand returns the CLI command for syncing activities to the server
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:        "sync",
		Usage:       "Upload local activities to the StrideWorks server",
		Description: "Uploads every activity that has not yet been confirmed by the server, in batches, resuming safely after failures.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-tui",
				Usage: "Print plain progress lines instead of the interactive view",
				Value: false,
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:        "account",
				Usage:       "Manage server account connection",
				Description: "Link or unlink this device with your StrideWorks account",
				Subcommands: []*cli.Command{
					{
						Name:  "link",
						Usage: "Link to a StrideWorks account",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "token",
								Usage:    "Personal access token from the web interface",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "name",
								Usage: "A name for this device (e.g. 'Work Laptop')",
							},
						},
						Action: linkAccountAction,
					},
					{
						Name:   "unlink",
						Usage:  "Unlink from the StrideWorks account",
						Action: unlinkAccountAction,
					},
					{
						Name:   "status",
						Usage:  "Check account connection status",
						Action: accountStatusAction,
					},
				},
			},
			{
				Name:        "status",
				Usage:       "Show sync status",
				Description: "Display recent sync runs and how many activities are waiting",
				Action:      syncStatusAction,
			},
			{
				Name:        "reset",
				Usage:       "Clear sync bookkeeping",
				Description: "Forgets the cursor and the uploaded-activity set; the next sync re-uploads the full history (the server deduplicates).",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Skip the confirmation prompt",
					},
				},
				Action: syncResetAction,
			},
		},
		Action: syncAction,
	}
}

// syncAction runs one sync pass
func syncAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if application.SyncClient.Token() == "" {
		return fmt.Errorf("not linked to an account. Use 'stridesync sync account link --token <token>' first")
	}

	loggy.Info("Starting manual sync", "no_tui", c.Bool("no-tui"))

	if c.Bool("no-tui") {
		return runPlainSync(c)
	}

	model := NewSyncModel(application)
	p := tea.NewProgram(model)

	// Progress values are pushed into the TUI as they arrive
	go func() {
		ch, err := application.Sync.Run(c.Context)
		if err != nil {
			p.Send(syncDoneMsg{err: err})
			return
		}
		for progress := range ch {
			p.Send(syncProgressMsg{progress: progress})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running sync UI: %w", err)
	}

	return nil
}

// runPlainSync consumes the progress stream without the TUI
func runPlainSync(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ch, err := application.Sync.Run(c.Context)
	if err != nil {
		return err
	}

	for progress := range ch {
		switch progress.Phase {
		case sync.PhaseFetching:
			if progress.TotalToFetch > 0 {
				utils.PrintInfo(fmt.Sprintf("Found %d activities to upload", progress.TotalToFetch))
			}
		case sync.PhaseUploading:
			utils.PrintInfo(fmt.Sprintf("Batch %d/%d, uploaded %d/%d",
				progress.CurrentBatch, progress.TotalBatches,
				progress.UploadedCount, progress.TotalToUpload))
		case sync.PhaseComplete:
			if progress.UploadedCount == 0 {
				utils.PrintSuccess("Nothing to sync, everything is up to date")
			} else {
				utils.PrintSuccess(fmt.Sprintf("Uploaded %d activities", progress.UploadedCount))
			}
		case sync.PhaseFailed:
			return fmt.Errorf("sync failed after %d/%d uploads: %w",
				progress.UploadedCount, progress.TotalToUpload, progress.Err)
		}
	}

	return nil
}

// linkAccountAction connects this device to a StrideWorks account
func linkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	token := c.String("token")
	if token == "" {
		return fmt.Errorf("token is required")
	}

	deviceName := c.String("name")
	if deviceName == "" {
		deviceName = utils.GenerateDeviceName()
	}

	ctx := c.Context
	application.SyncClient.SetToken(token)

	if err := application.SyncClient.VerifyToken(ctx); err != nil {
		if errors.Is(err, sync.ErrCredentialRevoked) {
			return fmt.Errorf("token has been revoked")
		}
		return fmt.Errorf("verifying token: %w", err)
	}

	if err := application.Settings.SetString(ctx, config.KeyServerToken, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := application.Settings.SetString(ctx, config.KeyServerURL, application.Config.Server.URL); err != nil {
		loggy.Warn("Failed to save server URL to settings", "error", err)
	}
	if err := application.Settings.SetString(ctx, config.KeyDeviceName, deviceName); err != nil {
		loggy.Warn("Failed to save device name to settings", "error", err)
	}
	if err := application.Settings.SetBool(ctx, config.KeySyncEnabled, true); err != nil {
		loggy.Warn("Failed to save enabled status to settings", "error", err)
	}

	utils.PrintSuccess("Successfully linked to StrideWorks as " + deviceName)
	return nil
}

// unlinkAccountAction removes the account connection
func unlinkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	application.SyncClient.SetToken("")

	if err := application.Settings.Delete(ctx, config.KeyServerToken); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	if err := application.Settings.SetBool(ctx, config.KeySyncEnabled, false); err != nil {
		loggy.Warn("Failed to save enabled status to settings", "error", err)
	}

	utils.PrintSuccess("Successfully unlinked from StrideWorks")
	return nil
}

// accountStatusAction checks the account connection
func accountStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if application.SyncClient.Token() == "" {
		utils.PrintError("Not linked to a StrideWorks account")
		return nil
	}

	ctx := c.Context
	deviceName, err := application.Settings.GetString(ctx, config.KeyDeviceName, "unknown")
	if err != nil {
		loggy.Warn("Failed to read device name", "error", err)
	}

	if err := application.SyncClient.VerifyToken(ctx); err != nil {
		utils.PrintError("Token is invalid or expired")
		loggy.Warn("Token verification failed", "error", err)
		return nil
	}

	utils.PrintHeading("Account Linked")
	utils.PrintKeyValue("Server URL", application.Config.Server.URL)
	utils.PrintKeyValue("Device Name", deviceName)
	return nil
}

// syncStatusAction shows recent runs and the pending count
func syncStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ctx := c.Context

	cursor, ok, err := application.Sync.Cursor(ctx)
	if err != nil {
		loggy.Warn("Failed to read sync cursor", "error", err)
	} else if ok {
		utils.PrintKeyValue("Last synced", cursor.Local().Format("Jan 02 2006 15:04:05"))
	} else {
		utils.PrintKeyValue("Last synced", "never")
	}

	pending, err := application.Sync.UnsyncedCount(ctx)
	if err != nil {
		utils.PrintWarning(fmt.Sprintf("Could not count pending activities: %v", err))
	} else {
		utils.PrintKeyValue("Pending activities", fmt.Sprintf("%d", pending))
	}

	runs, err := application.Sync.RecentRuns(ctx, 10)
	if err != nil {
		return fmt.Errorf("error getting sync runs: %w", err)
	}

	if len(runs) == 0 {
		utils.PrintInfo("No sync runs recorded yet")
		return nil
	}

	formatTime := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.Format("Jan 02 15:04:05")
	}

	truncate := func(s string, maxLen int) string {
		if len(s) <= maxLen {
			return s
		}
		return s[:maxLen-3] + "..."
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Status,
			fmt.Sprintf("%d/%d", run.UploadedCount, run.TotalCount),
			truncate(run.Error, 48),
			run.StartedAt.Format("Jan 02 15:04:05"),
			formatTime(run.CompletedAt),
		})
	}

	utils.PrintTable("Sync Runs",
		[]string{"ID", "Status", "Uploaded", "Error", "Started", "Completed"},
		rows)
	return nil
}

// syncResetAction clears the cursor and uploaded-ID set
func syncResetAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !c.Bool("yes") {
		utils.PrintWarning("This forgets which activities were already uploaded.")
		color.New(color.FgRed, color.Bold).Print("Type 'yes' to continue: ")
		var answer string
		if _, err := fmt.Scanln(&answer); err != nil || answer != "yes" {
			utils.PrintInfo("Aborted")
			return nil
		}
	}

	if err := application.Sync.Reset(c.Context); err != nil {
		return fmt.Errorf("resetting sync state: %w", err)
	}

	utils.PrintSuccess("Sync state cleared; the next sync uploads the full history")
	return nil
}
