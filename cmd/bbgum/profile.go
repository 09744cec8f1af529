// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bbgum/bbgum/internal/profile"
)

var (
	profileCmd = &cobra.Command{
		Use:   "profile",
		Short: "Inspect configuration profiles",
		Long: `Inspect configuration profiles.

Profiles are JSON, CUE, TOML or YAML files in the profiles directory
(~/resources/profiles unless --profiles-dir or BBGUM_PROFILES_DIR say
otherwise). Every format is checked against the same schema.`,
	}

	profileShowCmd = &cobra.Command{
		Use:   "show [name]",
		Short: "Print a profile's path and effective settings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProfileShow,
	}

	profileValidateCmd = &cobra.Command{
		Use:   "validate [name]",
		Short: "Check that a profile loads and matches the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProfileValidate,
	}
)

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileValidateCmd)
}

// profileName returns the positional name, falling back to -c.
func profileName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return rootFlags.profile
}

func loadProfileForCmd(cmd *cobra.Command, args []string) (*profile.Profile, error) {
	loader, err := profile.NewLoader(rootFlags.profilesDir)
	if err != nil {
		return nil, err
	}
	name := profileName(args)
	p, err := loader.Load(cmd.Context(), name)
	if err != nil {
		return nil, profileIssue(err, loader, name).BuildError()
	}
	return p, nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	p, err := loadProfileForCmd(cmd, args)
	if err != nil {
		return err
	}

	settings, err := yaml.Marshal(p.Effective)
	if err != nil {
		return fmt.Errorf("render settings: %w", err)
	}
	document, err := yaml.Marshal(p.Tree)
	if err != nil {
		return fmt.Errorf("render profile: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("Profile: ")+CmdStyle.Render(p.Path))
	fmt.Fprintln(out)
	fmt.Fprintln(out, SubtitleStyle.Render("Effective settings:"))
	fmt.Fprint(out, string(settings))
	fmt.Fprintln(out)
	fmt.Fprintln(out, SubtitleStyle.Render("Document:"))
	fmt.Fprint(out, string(document))
	return nil
}

func runProfileValidate(cmd *cobra.Command, args []string) error {
	p, err := loadProfileForCmd(cmd, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("✓ ")+"profile is valid: "+CmdStyle.Render(p.Path))
	return nil
}
