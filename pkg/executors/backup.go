package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/gitwork"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/sshdevice"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/vault"
)

// BackupConfig is the backup job_type's per-template configuration.
type BackupConfig struct {
	RepositoryURL      string `json:"repository_url"`
	Branch             string `json:"branch"`
	PathTemplate       string `json:"path_template"`
	CredentialName     string `json:"credential_name"`
	CredentialSource   string `json:"credential_source"`
	WriteStartupConfig bool   `json:"write_startup_config"`
	WorkingDir         string `json:"working_dir"`
}

type backupResultBlob struct {
	FilePath string `json:"file_path"`
	DeviceID string `json:"device_id"`
}

// BackupDeps are the collaborators the backup executor needs: a credential
// store for SSH auth, a git working-tree manager for the commit/push, and
// the Nautobot client for the post-success custom-field timestamp write.
type BackupDeps struct {
	Credentials *vault.CredentialStore
	Git         *gitwork.Manager
	Nautobot    *nautobot.Client
}

// NewBackupHandler implements the backup contract: per device, SSH in,
// collect running-config (and startup-config when requested), strip
// banners, and write the result to a path rendered from the template. The
// returned Finalizer performs the single commit-and-push per run and the
// optional per-device custom-field timestamp write.
func NewBackupHandler(deps BackupDeps) (Handler, Finalizer) {
	logger := cockpitlog.WithComponent("executors.backup")

	handler := func(ctx context.Context, dc DeviceContext) DeviceOutcome {
		var cfg BackupConfig
		if err := json.Unmarshal(dc.Template.Config, &cfg); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "invalid backup config: " + err.Error()}
		}

		creds, err := resolveSSHCredentials(ctx, deps.Credentials, cfg.CredentialName, cfg.CredentialSource)
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
		}

		host := dc.Device.PrimaryIP4
		if host == "" {
			return DeviceOutcome{Status: models.DeviceResultSkipped, Error: "device has no primary_ip4"}
		}

		client, err := sshdevice.Dial(ctx, host, creds)
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
		}
		defer client.Close()

		running, err := client.RunCommand(ctx, "show running-config")
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "show running-config: " + err.Error()}
		}
		output := sshdevice.StripBanner(running)

		if cfg.WriteStartupConfig {
			if startup, serr := client.RunCommand(ctx, "show startup-config"); serr == nil {
				output += "\n! --- startup-config ---\n" + sshdevice.StripBanner(startup)
			} else {
				logger.WithField("device", dc.Device.Name).Debug("startup-config not supported, skipping")
			}
		}

		relPath := RenderPath(cfg.PathTemplate, dc.Device)
		fullPath := filepath.Join(cfg.WorkingDir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "create backup directory: " + err.Error()}
		}
		if err := os.WriteFile(fullPath, []byte(output), 0o644); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "write backup file: " + err.Error()}
		}

		blob, _ := json.Marshal(backupResultBlob{FilePath: relPath, DeviceID: dc.Device.ID})
		return DeviceOutcome{Status: models.DeviceResultOK, ResultBlob: blob}
	}

	finalizer := func(ctx context.Context, run *models.JobRun, template *models.JobTemplate, outcomes []DeviceOutcome) error {
		var cfg BackupConfig
		if err := json.Unmarshal(template.Config, &cfg); err != nil {
			return fmt.Errorf("executors: backup finalizer: invalid config: %w", err)
		}

		var files []string
		for _, o := range outcomes {
			if o.Status != models.DeviceResultOK || len(o.ResultBlob) == 0 {
				continue
			}
			var blob backupResultBlob
			if err := json.Unmarshal(o.ResultBlob, &blob); err == nil && blob.FilePath != "" {
				files = append(files, blob.FilePath)
			}
		}
		if len(files) == 0 {
			return nil
		}

		tree := deps.Git.Open(cfg.WorkingDir)
		defer tree.Close()

		if err := tree.CloneOrFetch(ctx, cfg.RepositoryURL, cfg.Branch); err != nil {
			return fmt.Errorf("executors: backup finalizer: %w", err)
		}
		message := fmt.Sprintf("backup run %s: %d device(s)", run.ID, len(files))
		if err := tree.CommitAndPush(ctx, files, message); err != nil {
			return fmt.Errorf("executors: backup finalizer: commit/push: %w", err)
		}

		if template.TimestampCustomField != "" {
			writeBackupTimestamps(ctx, deps.Nautobot, template.TimestampCustomField, outcomes, logger)
		}
		return nil
	}

	return handler, finalizer
}

// writeBackupTimestamps patches the configured custom field with the
// current timestamp on every successfully backed-up device. A write
// failure here is logged, not fatal — the backup itself already
// succeeded and committed.
func writeBackupTimestamps(ctx context.Context, nb *nautobot.Client, field string, outcomes []DeviceOutcome, logger *logrus.Entry) {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, o := range outcomes {
		if o.Status != models.DeviceResultOK || len(o.ResultBlob) == 0 {
			continue
		}
		var blob backupResultBlob
		if err := json.Unmarshal(o.ResultBlob, &blob); err != nil || blob.DeviceID == "" {
			continue
		}
		payload, _ := json.Marshal(map[string]any{"custom_fields": map[string]any{field: now}})
		if _, err := nb.Patch(ctx, "/api/dcim/devices/"+blob.DeviceID+"/", payload); err != nil {
			logger.WithField("device_id", blob.DeviceID).Warnf("failed to write backup timestamp: %v", err)
		}
	}
}

// resolveSSHCredentials loads and decrypts the named credential into the
// sshdevice.Credentials shape the SSH client needs.
func resolveSSHCredentials(ctx context.Context, store *vault.CredentialStore, name, source string) (sshdevice.Credentials, error) {
	cred, err := store.GetByName(ctx, name, source)
	if err != nil {
		return sshdevice.Credentials{}, fmt.Errorf("executors: resolve credential %q/%q: %w", name, source, err)
	}
	secrets, err := store.Decrypt(ctx, cred.ID)
	if err != nil {
		return sshdevice.Credentials{}, fmt.Errorf("executors: decrypt credential %q/%q: %w", name, source, err)
	}
	return sshdevice.Credentials{
		Username:   cred.Username,
		Password:   secrets.Password,
		PrivateKey: secrets.SSHKey,
		Passphrase: secrets.Passphrase,
	}, nil
}
