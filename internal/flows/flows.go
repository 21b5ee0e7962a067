// Package flows holds the SSO login journeys that are checked end to end.
package flows

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
)

// Builder turns configuration into the actions of one flow.
type Builder func(cfg *config.Config) ([]taskstypes.Action, error)

var registry = map[string]Builder{
	"fileroom": Fileroom,
	"scd":      SCD,
}

// Names lists the known flows.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build returns a task running the named flow with the configured
// credentials and MFA provider.
func Build(name string, cfg *config.Config) (*taskstypes.Task, error) {
	builder, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, fmt.Errorf("flow %s: %w", name, err)
	}

	actions, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", name, err)
	}

	creds := &taskstypes.Credentials{Username: cfg.Credentials.Email, Password: cfg.Credentials.Password}
	tfa := taskstypes.TwoFactorAuthInfo{Provider: taskstypes.TFAProvider(cfg.MFA.Provider)}
	return taskstypes.NewTask(strings.ToLower(name), actions, creds, tfa, ""), nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func requireBase(base, key string) error {
	if base == "" {
		return fmt.Errorf("%s is required", key)
	}
	return nil
}

// passcodeSteps answers the PingID web prompt and submits it.
func passcodeSteps() []taskstypes.Action {
	return []taskstypes.Action{
		{Name: "Handle PingID MFA authentication", Type: taskstypes.ActionMFA, Selector: ".passcode-input", Timeout: 30 * time.Second},
		{Name: "Focus page", Type: taskstypes.ActionClick, Selector: "body"},
		{Name: "Click Sign On after MFA", Type: taskstypes.ActionClick, Selector: "input[value='Sign On']"},
	}
}

// credentialSteps covers the shared SSO pages between the email prompt and
// the Sign On button.
func credentialSteps(cfg *config.Config, employeeID, remember taskstypes.Action) []taskstypes.Action {
	employeeID.Name = "Enter employee ID"
	employeeID.Type = taskstypes.ActionFill
	employeeID.Value = cfg.Credentials.EmployeeID
	employeeID.Attach = true

	return []taskstypes.Action{
		employeeID,
		{Name: "Enter password", Type: taskstypes.ActionFill, Selector: "#password", Value: cfg.Credentials.Password, Secret: true},
		remember,
		{Name: "Wait before Sign On", Type: taskstypes.ActionWaitDelay, Value: "1s"},
		{Name: "Click Sign On button", Type: taskstypes.ActionClickForce, Selector: "#signOnButton"},
	}
}

// Fileroom signs in to Fileroom and selects the configured domain.
func Fileroom(cfg *config.Config) ([]taskstypes.Action, error) {
	app := cfg.Apps.Fileroom
	if err := requireBase(app.BaseURL, "apps.fileroom.baseURL"); err != nil {
		return nil, err
	}
	if app.Domain == "" {
		return nil, fmt.Errorf("apps.fileroom.domain is required")
	}

	actions := []taskstypes.Action{
		{Name: "Navigate to Fileroom", Type: taskstypes.ActionNavigate, Value: app.BaseURL, Attach: true},
		{Name: "Click Continue button", Type: taskstypes.ActionClick, Selector: ".Cont-Btn"},
		{Name: "Enter email for SSO authentication", Type: taskstypes.ActionFill, Selector: "#username", Value: cfg.Credentials.Email, Attach: true},
		{Name: "Submit email", Type: taskstypes.ActionClick, Selector: "._button-login-id"},
	}
	actions = append(actions, credentialSteps(cfg,
		taskstypes.Action{Selector: "#username"},
		taskstypes.Action{Name: "Check 'Remember username' option", Type: taskstypes.ActionCheck, Selector: ".remember-username"},
	)...)
	actions = append(actions, passcodeSteps()...)
	actions = append(actions,
		taskstypes.Action{Name: "Select domain", Type: taskstypes.ActionSelect, Selector: "#SelectedDomainID", Value: app.Domain, Attach: true},
		taskstypes.Action{Name: "Submit domain selection", Type: taskstypes.ActionClick, Selector: "#btnSubmit"},
		taskstypes.Action{Name: "Verify Fileroom Listing page", Type: taskstypes.ActionAssertURL, Value: joinURL(app.BaseURL, "Fileroom/Fileroom/Listing"), Attach: true},
		taskstypes.Action{Name: "Fileroom Listing Page", Type: taskstypes.ActionScreenshot, Value: "100"},
	)
	return actions, nil
}

// SCD signs in to the SCD dashboard, walks the main navigation and logs out.
func SCD(cfg *config.Config) ([]taskstypes.Action, error) {
	app := cfg.Apps.SCD
	if err := requireBase(app.BaseURL, "apps.scd.baseURL"); err != nil {
		return nil, err
	}
	if app.Location == "" {
		return nil, fmt.Errorf("apps.scd.location is required")
	}

	xpath := func(name string, t taskstypes.ActionType, selector string) taskstypes.Action {
		return taskstypes.Action{Name: name, Type: t, Selector: selector, By: taskstypes.ByXPath}
	}

	email := xpath("Enter email for SSO authentication", taskstypes.ActionFill, Textbox("Email"))
	email.Value = cfg.Credentials.Email
	email.Attach = true

	actions := []taskstypes.Action{
		{Name: "Navigate to SCD Dashboard", Type: taskstypes.ActionNavigate, Value: app.BaseURL, Attach: true},
		xpath("Click Continue button", taskstypes.ActionClick, Link("CONTINUE")),
		email,
		xpath("Submit email", taskstypes.ActionClick, Button("Sign in")),
	}
	employeeID := xpath("", "", Textbox("ex. 6036943, C603694, X696046"))
	remember := xpath("Check 'Remember my username' option", taskstypes.ActionClick,
		`//label//div[contains(normalize-space(.), "Remember my username")]//div`)
	actions = append(actions, credentialSteps(cfg, employeeID, remember)...)
	actions = append(actions, passcodeSteps()...)

	actions = append(actions,
		taskstypes.Action{Name: "Open location list", Type: taskstypes.ActionClick, Selector: ".k-select"},
		xpath("Select location", taskstypes.ActionClick, Option(app.Location)),
		taskstypes.Action{Name: "Submit location selection", Type: taskstypes.ActionClick, Selector: ".mdl-button__ripple-container"},
		taskstypes.Action{Name: "Wait for dashboard", Type: taskstypes.ActionWaitDelay, Value: "5s"},
		taskstypes.Action{Name: "Navigate to dashboard home", Type: taskstypes.ActionNavigate, Value: joinURL(app.BaseURL, "dashboard/home"), Attach: true},
		xpath("Toggle navigation menu", taskstypes.ActionClick, Button("Toggle navigation")),
		xpath("Navigate to Test Verification", taskstypes.ActionClick, Link("Test Verification")),
		xpath("Navigate to Manager Assignment Queue", taskstypes.ActionClick, Link("Manager Assignment Queue")),
		xpath("Open Settings menu", taskstypes.ActionClick, Button("Settings")),
		xpath("Logout from application", taskstypes.ActionClick, Button("Logout")),
		taskstypes.Action{Name: "After Logout", Type: taskstypes.ActionScreenshot, Value: "100"},
	)
	return actions, nil
}
