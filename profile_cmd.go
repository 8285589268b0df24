package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/VNote/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage RAG connection profiles",
		Long: `Manage the profile registry. Each profile owns one object-store bucket
and one pair of RAG datasets; profile "default" is an empty template, and
writing settings while it is active forks a derived profile automatically.`,
	}

	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfileUseCmd())
	cmd.AddCommand(newProfileSetCmd())
	cmd.AddCommand(newProfileAddCmd())
	cmd.AddCommand(newProfileRemoveCmd())
	cmd.AddCommand(newSchemeCmd())

	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry := newProfileRegistry(buildLogger())

			profiles, err := registry.ListProfiles()
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(profiles)
			}

			headers := []string{"", "NAME", "BASE_URL", "DATASET"}
			rows := make([][]string, 0, len(profiles))
			for _, p := range profiles {
				marker := " "
				if p.Active {
					marker = "*"
				}

				rows = append(rows, []string{marker, p.Name, orDash(p.BaseURL), orDash(p.DatasetID)})
			}

			printTable(os.Stdout, headers, rows)

			return nil
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active profile with secrets masked",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry := newProfileRegistry(buildLogger())

			safe, err := registry.GetSafe()
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(safe)
			}

			fmt.Printf("Profile:            %s\n", safe.Profile)
			fmt.Printf("Base URL:           %s\n", orDash(safe.BaseURL))
			fmt.Printf("Dataset:            %s\n", orDash(safe.DatasetID))
			fmt.Printf("Note dataset:       %s\n", orDash(safe.NoteDatasetID))
			fmt.Printf("Transcript dataset: %s\n", orDash(safe.TranscriptDatasetID))
			fmt.Printf("Service API key:    %s\n", orDash(safe.ServiceAPIKeyMasked))
			fmt.Printf("App user:           %s\n", orDash(safe.AppUser))
			fmt.Printf("Active app scheme:  %s\n", orDash(safe.ActiveAppScheme))

			if len(safe.AppSchemes) > 0 {
				names := make([]string, 0, len(safe.AppSchemes))
				for name := range safe.AppSchemes {
					names = append(names, name)
				}
				sort.Strings(names)

				fmt.Println("App schemes:")
				for _, name := range names {
					fmt.Printf("  %-16s %s\n", name, orDash(safe.AppSchemes[name].AppAPIKeyMasked))
				}
			}

			return nil
		},
	}
}

func newProfileUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Switch the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			registry := newProfileRegistry(buildLogger())

			if err := registry.SetActiveProfile(args[0]); err != nil {
				return err
			}

			statusf("Active profile: %s\n", args[0])

			return nil
		},
	}
}

// profilePatchFlags binds the patchable profile fields to cobra flags and
// rebuilds a Patch from whatever the user actually set.
type profilePatchFlags struct {
	baseURL             string
	datasetID           string
	noteDatasetID       string
	transcriptDatasetID string
	serviceAPIKey       string
	appAPIKey           string
	appUser             string
	indexingTechnique   string
	timeoutSeconds      float64
}

func (f *profilePatchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "RAG service base URL")
	cmd.Flags().StringVar(&f.datasetID, "dataset-id", "", "shared dataset id")
	cmd.Flags().StringVar(&f.noteDatasetID, "note-dataset-id", "", "note dataset id")
	cmd.Flags().StringVar(&f.transcriptDatasetID, "transcript-dataset-id", "", "transcript dataset id")
	cmd.Flags().StringVar(&f.serviceAPIKey, "service-api-key", "", "knowledge API key")
	cmd.Flags().StringVar(&f.appAPIKey, "app-api-key", "", "chat app API key")
	cmd.Flags().StringVar(&f.appUser, "app-user", "", "RAG app user id")
	cmd.Flags().StringVar(&f.indexingTechnique, "indexing-technique", "", "indexing technique")
	cmd.Flags().Float64Var(&f.timeoutSeconds, "timeout-seconds", 0, "RAG call timeout in seconds")
}

func (f *profilePatchFlags) patch(cmd *cobra.Command) profile.Patch {
	var p profile.Patch

	set := func(flag string, dst **string, v *string) {
		if cmd.Flags().Changed(flag) {
			*dst = v
		}
	}

	set("base-url", &p.BaseURL, &f.baseURL)
	set("dataset-id", &p.DatasetID, &f.datasetID)
	set("note-dataset-id", &p.NoteDatasetID, &f.noteDatasetID)
	set("transcript-dataset-id", &p.TranscriptDatasetID, &f.transcriptDatasetID)
	set("service-api-key", &p.ServiceAPIKey, &f.serviceAPIKey)
	set("app-api-key", &p.AppAPIKey, &f.appAPIKey)
	set("app-user", &p.AppUser, &f.appUser)
	set("indexing-technique", &p.IndexingTechnique, &f.indexingTechnique)

	if cmd.Flags().Changed("timeout-seconds") {
		p.TimeoutSeconds = &f.timeoutSeconds
	}

	return p
}

func newProfileSetCmd() *cobra.Command {
	var flags profilePatchFlags

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the active profile",
		Long: `Patch the active profile with the given flags. When "default" is
active, the settings land in an automatically derived profile and that
profile becomes active.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := newProfileRegistry(buildLogger())

			name, err := registry.Update(flags.patch(cmd))
			if err != nil {
				return err
			}

			statusf("Updated profile %s\n", name)

			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func newProfileAddCmd() *cobra.Command {
	var (
		flags     profilePatchFlags
		cloneFrom string
		activate  bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or update a named profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := newProfileRegistry(buildLogger())

			if err := registry.UpsertProfile(args[0], flags.patch(cmd), cloneFrom, activate); err != nil {
				return err
			}

			statusf("Profile %s saved\n", args[0])

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&cloneFrom, "clone-from", "", "copy settings from an existing profile")
	cmd.Flags().BoolVar(&activate, "activate", false, "make it the active profile")

	return cmd
}

func newProfileRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			registry := newProfileRegistry(buildLogger())

			if err := registry.DeleteProfile(args[0]); err != nil {
				return err
			}

			statusf("Profile %s deleted\n", args[0])

			return nil
		},
	}
}

func newSchemeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheme",
		Short: "Manage app-key schemes of the active profile",
	}

	var (
		schemeKey      string
		schemeActivate bool
	)

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or update an app-key scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			registry := newProfileRegistry(buildLogger())

			if err := registry.UpsertAppScheme(args[0], schemeKey, schemeActivate); err != nil {
				return err
			}

			statusf("Scheme %s saved\n", args[0])

			return nil
		},
	}
	add.Flags().StringVar(&schemeKey, "app-api-key", "", "chat app API key for this scheme")
	add.Flags().BoolVar(&schemeActivate, "activate", false, "make it the active scheme")

	use := &cobra.Command{
		Use:   "use <name>",
		Short: "Switch the active app-key scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			registry := newProfileRegistry(buildLogger())

			if err := registry.SetActiveAppScheme(args[0]); err != nil {
				return err
			}

			statusf("Active scheme: %s\n", args[0])

			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete an app-key scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			registry := newProfileRegistry(buildLogger())

			if err := registry.DeleteAppScheme(args[0]); err != nil {
				return err
			}

			statusf("Scheme %s deleted\n", args[0])

			return nil
		},
	}

	cmd.AddCommand(add, use, remove)

	return cmd
}
