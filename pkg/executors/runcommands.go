package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/sshdevice"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/vault"
)

// RunCommandsConfig is the run_commands job_type's per-template
// configuration. No TextFSM implementation exists anywhere in the
// retrieval pack (Go has no maintained TextFSM port), so ParserTemplate is
// expressed as a Go regexp with named capture groups — each match produces
// one parsed row keyed by group name, the same record-per-match contract
// TextFSM value/record templates provide.
type RunCommandsConfig struct {
	CommandTemplate  string `json:"command_template"`
	ParserTemplate   string `json:"parser_template,omitempty"`
	CredentialName   string `json:"credential_name"`
	CredentialSource string `json:"credential_source"`
}

type runCommandsResultBlob struct {
	Output     string           `json:"output"`
	ParsedRows []map[string]any `json:"parsed_rows,omitempty"`
}

// NewRunCommandsHandler implements the run_commands contract: render the
// command template per device, collect the output, and — when a parser
// template is configured — extract structured rows via its named capture
// groups.
func NewRunCommandsHandler(credentials *vault.CredentialStore) Handler {
	return func(ctx context.Context, dc DeviceContext) DeviceOutcome {
		var cfg RunCommandsConfig
		if err := json.Unmarshal(dc.Template.Config, &cfg); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "invalid run_commands config: " + err.Error()}
		}

		creds, err := resolveSSHCredentials(ctx, credentials, cfg.CredentialName, cfg.CredentialSource)
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

		command := RenderPath(cfg.CommandTemplate, dc.Device)
		output, err := client.RunCommand(ctx, command)
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
		}

		blob := runCommandsResultBlob{Output: sshdevice.StripBanner(output)}
		if cfg.ParserTemplate != "" {
			rows, perr := parseWithTemplate(cfg.ParserTemplate, blob.Output)
			if perr != nil {
				return DeviceOutcome{Status: models.DeviceResultError, Error: "parser template: " + perr.Error()}
			}
			blob.ParsedRows = rows
		}

		encoded, _ := json.Marshal(blob)
		return DeviceOutcome{Status: models.DeviceResultOK, ResultBlob: encoded}
	}
}

func parseWithTemplate(pattern, output string) ([]map[string]any, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	names := re.SubexpNames()
	matches := re.FindAllStringSubmatch(output, -1)

	rows := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		row := map[string]any{}
		for i, name := range names {
			if i == 0 || name == "" {
				continue
			}
			row[name] = m[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
